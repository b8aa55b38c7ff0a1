package main

import (
	"slices"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "webcrawler" {
			t.Errorf("expected use 'webcrawler', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has verbose flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.PersistentFlags().Lookup("verbose")
		if flag == nil {
			t.Fatal("expected verbose flag")
		}
		if flag.Shorthand != "v" {
			t.Errorf("expected shorthand 'v', got %q", flag.Shorthand)
		}
		if flag.DefValue != "false" {
			t.Errorf("expected default 'false', got %q", flag.DefValue)
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()

		var names []string
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		for _, want := range []string{"crawl", "history", "init", "version"} {
			if !slices.Contains(names, want) {
				t.Errorf("missing subcommand %q in %v", want, names)
			}
		}
	})
}

func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("inherits persistent flag", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
			t.Fatal(err)
		}
		sub, _, err := root.Find([]string{"history"})
		if err != nil {
			t.Fatal(err)
		}
		if !getVerboseFlag(sub) {
			t.Error("expected verbose from root")
		}
	})

	t.Run("defaults to false", func(t *testing.T) {
		t.Parallel()

		if getVerboseFlag(NewCrawlCmd()) {
			t.Error("expected false without a verbose flag")
		}
	})
}
