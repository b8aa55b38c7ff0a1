package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nao1215/webcrawler/internal/model"
)

// JSONWriter renders reports as JSON for other tools. URLs are written
// as-is, without HTML escaping of '&', '<' and '>'.
type JSONWriter struct {
	baseWriter

	prefix string
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent indents nested values with indent, each line starting with
// prefix.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.prefix, w.indent = prefix, indent
	}
}

// WithPrettyPrint indents by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter returns a JSONWriter writing one compact line per document
// unless an indent option is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// jsonReport adds the summary counts next to the report fields.
type jsonReport struct {
	*model.CrawlReport

	DurationMS int64         `json:"duration_ms"`
	Summary    model.Summary `json:"summary"`
}

func newJSONReport(r *model.CrawlReport) jsonReport {
	return jsonReport{
		CrawlReport: r,
		DurationMS:  r.Duration().Milliseconds(),
		Summary:     r.Summary(),
	}
}

// Write outputs one report as a JSON object.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(newJSONReport(report))
}

// WriteAll outputs the reports as a JSON array.
func (w *JSONWriter) WriteAll(reports []*model.CrawlReport) (int, error) {
	wrapped := make([]jsonReport, 0, len(reports))
	for _, r := range reports {
		wrapped = append(wrapped, newJSONReport(r))
	}
	return w.writeJSON(wrapped)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(w.prefix, w.indent)
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
