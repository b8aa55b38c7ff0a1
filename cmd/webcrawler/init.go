package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/webcrawler.yaml
var configTemplate embed.FS

const templatePath = "templates/webcrawler.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a webcrawler configuration file",
		Long: `Init writes a commented .webcrawler configuration file.

The file documents the per-host settings a crawl picks up: cookies, headers,
crawl depth and allowed hosts.

Examples:
  # Create .webcrawler in current directory
  webcrawler init

  # Create config file at a specific path
  webcrawler init -o ~/.webcrawler

  # Force overwrite existing file
  webcrawler init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd writes the embedded template. Without --force the file is
// created exclusively, so an existing configuration is never replaced.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	path, err := flags.GetString("output")
	if err != nil {
		return err
	}
	force, err := flags.GetBool("force")
	if err != nil {
		return err
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	// The file may hold cookies and tokens.
	f, err := os.OpenFile(filepath.Clean(path), mode, 0600)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `Wrote %s.

Per-host entries under "hosts:" set cookies, headers, crawl depth and the
hosts a crawl of that site may visit.
`, path)
	return nil
}
