package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewRootCmd creates the root command for webcrawler.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webcrawler",
		Short: "Breadth-first web crawler with per-host concurrency limits",
		Long: `webcrawler downloads web pages breadth-first up to a configured depth.

Downloads and link extraction run on two fixed-size worker pools, and no host
ever sees more than a configured number of concurrent downloads. Every page
that could not be fetched or parsed is reported with its reason.

Traffic goes directly to the sites by default. Use --external-tor to route it
through a running Tor SOCKS proxy, or --tor to start a private Tor daemon.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false,
		"Log every fetch and list downloaded pages in text reports")

	cmd.AddCommand(
		NewCrawlCmd(),
		NewHistoryCmd(),
		NewInitCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs webcrawler and exits with status 1 on error.
func Execute() {
	err := NewRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "webcrawler: %v\n", err)
	os.Exit(1)
}

// getVerboseFlag reports whether -v was given to cmd or to the root
// command. Commands built outside the root tree report false.
func getVerboseFlag(cmd *cobra.Command) bool {
	for _, flags := range []*pflag.FlagSet{cmd.Flags(), cmd.Root().PersistentFlags()} {
		if v, err := flags.GetBool("verbose"); err == nil {
			return v
		}
	}
	return false
}
