package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildInfo describes the running binary.
type buildInfo struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

// readBuildInfo fills buildInfo from ldflags first, then from the module and
// VCS data embedded by the Go toolchain.
func readBuildInfo() buildInfo {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.Date == "":
				info.Date = s.Value
			}
		}
	}

	if info.Version == "" {
		info.Version = "(devel)"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	} else if len(info.Commit) > 7 {
		info.Commit = info.Commit[:7]
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// getVersion returns the version string shown by --version.
func getVersion() string {
	return readBuildInfo().Version
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, build date and Go version of webcrawler.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			short, err := cmd.Flags().GetBool("short")
			if err != nil {
				return err
			}

			info := readBuildInfo()
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}

			fmt.Fprintf(out, "webcrawler version %s\n", info.Version)
			fmt.Fprintf(out, "  commit: %s\n", info.Commit)
			fmt.Fprintf(out, "  built:  %s\n", info.Date)
			fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)
			return nil
		},
	}

	cmd.Flags().BoolP("short", "s", false, "Print only the version")

	return cmd
}
