package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/webcrawler/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing. Output is generated with the nao1215/markdown library.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs one report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report")
	md.PlainText("")
	w.writeReport(md, report, md.H2)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteAll outputs an overview table followed by one section per report.
func (w *MarkdownWriter) WriteAll(reports []*model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Reports")
	md.PlainText("")

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		s := r.Summary()
		rows = append(rows, []string{
			code(r.StartURL),
			statusLabel(r.Status),
			strconv.Itoa(s.Downloaded),
			strconv.Itoa(s.Failed),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Start URL", "Status", "Downloaded", "Failed"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range reports {
		md.H2(r.StartURL)
		md.PlainText("")
		w.writeReport(md, r, md.H3)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeReport writes the sections of one report; heading sets their level.
func (w *MarkdownWriter) writeReport(md *markdown.Markdown, report *model.CrawlReport, heading func(string) *markdown.Markdown) {
	w.writeHeader(md, report)
	w.writeSummary(md, report, heading)
	w.writeErrors(md, report, heading)
	w.writeDownloaded(md, report, heading)
}

// writeHeader writes the table of crawl parameters.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	allowed := "any"
	if len(report.AllowedHosts) > 0 {
		allowed = strings.Join(report.AllowedHosts, ", ")
	}
	status := statusLabel(report.Status)
	if report.Error != "" {
		status += " - " + escapeCell(report.Error)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", code(report.StartURL)},
			{"Depth", strconv.Itoa(report.Depth)},
			{"Allowed Hosts", allowed},
			{"Started", report.StartedAt.Format(timeLayout)},
			{"Duration", report.Duration().String()},
			{"Status", status},
		},
	})
	md.PlainText("")
}

// writeSummary writes the counts table, the failure chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport, heading func(string) *markdown.Markdown) {
	heading("Summary")
	md.PlainText("")

	s := report.Summary()
	rows := [][]string{
		{"Downloaded", strconv.Itoa(s.Downloaded)},
	}
	for _, kind := range s.Kinds() {
		rows = append(rows, []string{kind, strconv.Itoa(s.ByKind[kind])})
	}
	rows = append(rows, []string{"**Failed**", "**" + strconv.Itoa(s.Failed) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Failed > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, report, s)
}

// writePieChart writes a mermaid pie chart of failures per kind.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Failures by Kind"),
		piechart.WithShowData(true),
	)
	for _, kind := range s.Kinds() {
		chart.LabelAndIntValue(kind, uint64(s.ByKind[kind])) //nolint:gosec // counts are never negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert describing how the crawl ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport, s model.Summary) {
	switch {
	case report.Status == model.StatusFailed:
		md.Cautionf("The crawl could not start: %s", report.Error)
	case report.Status != model.StatusCompleted:
		md.Warningf("The crawl was interrupted (%s); results are partial.", report.Status)
	case s.Failed > 0:
		md.Note(strconv.Itoa(s.Failed) + " URL(s) could not be crawled.")
	default:
		md.Tip("Every reachable page was downloaded.")
	}
	md.PlainText("")
}

// writeErrors writes the per-URL failures.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *model.CrawlReport, heading func(string) *markdown.Markdown) {
	heading("Errors")
	md.PlainText("")

	if len(report.Errors) == 0 {
		md.PlainText("No errors.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Errors))
	for i, e := range report.Errors {
		rows[i] = []string{code(e.URL), e.Kind, escapeCell(truncateString(e.Message, 80))}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Message"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDownloaded lists the downloaded pages in a collapsible block.
func (w *MarkdownWriter) writeDownloaded(md *markdown.Markdown, report *model.CrawlReport, heading func(string) *markdown.Markdown) {
	heading("Downloaded Pages")
	md.PlainText("")

	if len(report.Downloaded) == 0 {
		md.PlainText("No pages downloaded.")
		md.PlainText("")
		return
	}

	md.Details(strconv.Itoa(len(report.Downloaded))+" page(s)", strings.Join(report.Downloaded, "\n"))
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webcrawler](https://github.com/nao1215/webcrawler)*")
}

func code(s string) string {
	return "`" + s + "`"
}

// escapeCell keeps a value from breaking the table layout.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
