package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/webcrawler/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// Plain ASCII formatting is used so the output can be piped to files.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose lists every downloaded URL instead of only the count.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs one report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeDownloaded(&sb, report)
	w.writeErrors(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteAll outputs every report followed by a one-line total.
func (w *SimpleWriter) WriteAll(reports []*model.CrawlReport) (int, error) {
	var total int
	var downloaded, failed int
	for _, r := range reports {
		n, err := w.Write(r)
		total += n
		if err != nil {
			return total, err
		}
		s := r.Summary()
		downloaded += s.Downloaded
		failed += s.Failed
	}

	n, err := fmt.Fprintf(w.output, "\nCrawled %d seed(s): %d page(s) downloaded, %d failure(s)\n",
		len(reports), downloaded, failed)
	return total + n, err
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:      %s\n", report.StartURL)
	fmt.Fprintf(sb, "Depth:          %d\n", report.Depth)
	if len(report.AllowedHosts) > 0 {
		fmt.Fprintf(sb, "Allowed Hosts:  %s\n", strings.Join(report.AllowedHosts, ", "))
	}
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))

	if report.Error != "" {
		fmt.Fprintf(sb, "Status:         %s - %s\n", statusLabel(report.Status), report.Error)
	} else {
		fmt.Fprintf(sb, "Status:         %s\n", statusLabel(report.Status))
	}

	sb.WriteString("\n")
}

// writeSummary writes the counts section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	writeSection(sb, "SUMMARY")

	s := report.Summary()
	fmt.Fprintf(sb, "  DOWNLOADED: %d\n", s.Downloaded)
	fmt.Fprintf(sb, "  FAILED:     %d\n", s.Failed)
	for _, kind := range s.Kinds() {
		fmt.Fprintf(sb, "    %-14s %d\n", kind+":", s.ByKind[kind])
	}
	sb.WriteString("\n")
}

// writeDownloaded lists the downloaded pages in verbose mode.
func (w *SimpleWriter) writeDownloaded(sb *strings.Builder, report *model.CrawlReport) {
	if !w.verbose || (len(report.Downloaded) == 0 && !w.showEmpty) {
		return
	}

	writeSection(sb, "DOWNLOADED")
	if len(report.Downloaded) == 0 {
		sb.WriteString("  No pages downloaded\n")
	}
	for _, u := range report.Downloaded {
		fmt.Fprintf(sb, "  [+] %s\n", u)
	}
	sb.WriteString("\n")
}

// writeErrors writes the per-URL failures.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Errors) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "ERRORS")
	if len(report.Errors) == 0 {
		sb.WriteString("  No errors\n")
	}
	for _, e := range report.Errors {
		fmt.Fprintf(sb, "  [%s] %s\n", e.Kind, e.URL)
		fmt.Fprintf(sb, "    %s\n", e.Message)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
