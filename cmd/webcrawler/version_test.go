package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestReadBuildInfo(t *testing.T) {
	t.Parallel()

	info := readBuildInfo()
	if info.Version == "" || info.Commit == "" || info.Date == "" {
		t.Errorf("readBuildInfo() has empty fields: %+v", info)
	}
	if len(info.Commit) > 7 {
		t.Errorf("commit not shortened: %q", info.Commit)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if getVersion() != info.Version {
		t.Errorf("getVersion() = %q, want %q", getVersion(), info.Version)
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	t.Run("outputs version info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"webcrawler version", "commit:", "built:", "go:"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got %q", want, output)
			}
		}
	})

	t.Run("short prints only the version", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--short"})

		if err := cmd.Execute(); err != nil {
			t.Fatal(err)
		}
		if got := strings.TrimSpace(buf.String()); got != readBuildInfo().Version {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		t.Parallel()

		cmd := NewVersionCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"extra"})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error for extra argument")
		}
	})
}
