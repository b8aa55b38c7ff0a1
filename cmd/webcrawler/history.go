package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/database"
	"github.com/spf13/cobra"
)

// historyDateLayout is the timestamp format of the text listings.
const historyDateLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [URL]",
		Short: "Show stored crawl reports",
		Long: `History reads the reports that 'webcrawler crawl' stored in the history
database.

Without arguments it lists the most recent crawls. With a start URL it lists
the crawls of that URL. A single report is shown with --id, and --page lists
every stored outcome of one page.

Examples:
  # List recent crawls
  webcrawler history

  # List crawls of one start URL
  webcrawler history https://example.com

  # List crawls seeded on a host
  webcrawler history --host example.com

  # Show a stored report as Markdown
  webcrawler history --id 3 --markdown

  # Show how one page fared across crawls
  webcrawler history --page https://example.com/about`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("host", "",
		"Only list crawls whose start URL is on this host")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of crawls listed (0 lists all)")
	cmd.Flags().Int64P("id", "i", 0,
		"Show the stored report with this ID")
	cmd.Flags().StringP("page", "p", "",
		"Show every stored outcome of this page URL")

	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// historyOptions holds the parsed flags of the history command.
type historyOptions struct {
	startURL string
	host     string
	limit    int
	id       int64
	page     string
	json     bool
	markdown bool
	dbDir    string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Reading history never creates the database. The journal mode was
	// set by the crawl that created it.
	db, err := database.Open(opts.dbDir, database.Options{})
	if errors.Is(err, database.ErrDatabaseNotFound) {
		fmt.Fprintln(out, "No crawl history found.")
		fmt.Fprintln(out, "\nUse 'webcrawler crawl <URL>' to crawl a site and store its report.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	switch {
	case opts.id != 0:
		return showReport(ctx, out, db, opts)
	case opts.page != "":
		return showPageHistory(ctx, out, db, opts)
	default:
		return listReports(ctx, out, db, opts)
	}
}

// parseHistoryFlags reads and checks the history flags.
func parseHistoryFlags(cmd *cobra.Command, args []string) (historyOptions, error) {
	var opts historyOptions
	flags := cmd.Flags()

	var err error
	if opts.host, err = flags.GetString("host"); err != nil {
		return opts, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return opts, err
	}
	if opts.id, err = flags.GetInt64("id"); err != nil {
		return opts, err
	}
	if opts.page, err = flags.GetString("page"); err != nil {
		return opts, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return opts, err
	}

	if seeds := normalizeSeeds(args); len(seeds) > 0 {
		opts.startURL = seeds[0]
	}
	if pages := normalizeSeeds([]string{opts.page}); len(pages) > 0 {
		opts.page = pages[0]
	}
	opts.host = strings.ToLower(opts.host)

	if opts.json && opts.markdown {
		return opts, config.ErrConflictingReportFormats
	}
	if opts.id < 0 {
		return opts, fmt.Errorf("invalid report ID: %d", opts.id)
	}
	if opts.limit < 0 {
		return opts, fmt.Errorf("invalid limit: %d", opts.limit)
	}
	if opts.id != 0 && opts.page != "" {
		return opts, errors.New("--id and --page cannot be used together")
	}
	return opts, nil
}

// showReport prints one stored report with the crawl report writers.
func showReport(ctx context.Context, out io.Writer, db *database.CrawlDB, opts historyOptions) error {
	r, err := db.GetReport(ctx, opts.id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("no report with ID %d", opts.id)
	}

	if _, err := newReportWriter(out, opts.json, opts.markdown, true).Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// listReports prints the metadata of stored reports, newest first.
func listReports(ctx context.Context, out io.Writer, db *database.CrawlDB, opts historyOptions) error {
	reports, err := db.ListReports(ctx, database.ListFilter{
		StartURL: opts.startURL,
		Host:     opts.host,
		Limit:    opts.limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	switch {
	case opts.json:
		if reports == nil {
			reports = []database.ReportMetadata{}
		}
		return writeHistoryJSON(out, reports)
	case opts.markdown:
		return writeReportListMarkdown(out, reports)
	}

	if len(reports) == 0 {
		fmt.Fprintln(out, "No crawls found.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history (%d):\n\n", len(reports))
	fmt.Fprintf(out, "  %-6s  %-19s  %-9s  %5s  %10s  %6s  %s\n",
		"ID", "Date", "Status", "Depth", "Downloaded", "Failed", "Start URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))

	for _, meta := range reports {
		fmt.Fprintf(out, "  %-6d  %-19s  %-9s  %5d  %10d  %6d  %s\n",
			meta.ID,
			meta.StartedAt.Local().Format(historyDateLayout),
			meta.Status,
			meta.Depth,
			meta.Downloaded,
			meta.Failed,
			meta.StartURL,
		)
	}

	fmt.Fprintln(out, "\nUse 'webcrawler history --id <id>' to show a stored report.")
	return nil
}

// writeReportListMarkdown renders the report list as a Markdown table.
func writeReportListMarkdown(out io.Writer, reports []database.ReportMetadata) error {
	md := markdown.NewMarkdown(out).H1("Crawl History")

	if len(reports) == 0 {
		return md.PlainText("No crawls found.").Build()
	}

	rows := make([][]string, 0, len(reports))
	for _, meta := range reports {
		rows = append(rows, []string{
			strconv.FormatInt(meta.ID, 10),
			meta.StartedAt.UTC().Format(historyDateLayout),
			"`" + meta.StartURL + "`",
			string(meta.Status),
			strconv.Itoa(meta.Depth),
			strconv.Itoa(meta.Downloaded),
			strconv.Itoa(meta.Failed),
		})
	}

	return md.Table(markdown.TableSet{
		Header: []string{"ID", "Date (UTC)", "Start URL", "Status", "Depth", "Downloaded", "Failed"},
		Rows:   rows,
	}).Build()
}

// showPageHistory prints every stored outcome of one page.
func showPageHistory(ctx context.Context, out io.Writer, db *database.CrawlDB, opts historyOptions) error {
	records, err := db.PageHistory(ctx, opts.page)
	if err != nil {
		return err
	}

	if opts.json {
		if records == nil {
			records = []database.PageRecord{}
		}
		return writeHistoryJSON(out, records)
	}

	if opts.markdown {
		md := markdown.NewMarkdown(out).H1("Page History").
			PlainTextf("Page: `%s`", opts.page)
		if len(records) == 0 {
			return md.PlainText("The page does not appear in any stored crawl.").Build()
		}

		rows := make([][]string, 0, len(records))
		for _, rec := range records {
			rows = append(rows, []string{
				strconv.FormatInt(rec.ReportID, 10),
				rec.CrawledAt.UTC().Format(historyDateLayout),
				pageOutcome(rec),
				strings.ReplaceAll(rec.Message, "|", "\\|"),
			})
		}
		return md.Table(markdown.TableSet{
			Header: []string{"Report ID", "Crawled (UTC)", "Outcome", "Message"},
			Rows:   rows,
		}).Build()
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No stored crawl contains %s\n", opts.page)
		return nil
	}

	fmt.Fprintf(out, "History of %s (%d):\n\n", opts.page, len(records))
	for _, rec := range records {
		fmt.Fprintf(out, "  #%-6d %s  %s\n",
			rec.ReportID,
			rec.CrawledAt.Local().Format(historyDateLayout),
			pageOutcome(rec),
		)
		if rec.Message != "" {
			fmt.Fprintf(out, "          %s\n", rec.Message)
		}
	}
	return nil
}

// pageOutcome names what happened to a page in one crawl.
func pageOutcome(rec database.PageRecord) string {
	if rec.Downloaded() {
		return "downloaded"
	}
	return rec.Kind
}

// writeHistoryJSON writes v as indented JSON.
func writeHistoryJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
