package report

import (
	"io"

	"github.com/nao1215/webcrawler/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer renders crawl reports.
type Writer interface {
	// Write renders a single report and returns the bytes written.
	Write(report *model.CrawlReport) (int, error)

	// WriteAll renders the reports of a batch run as one document.
	WriteAll(reports []*model.CrawlReport) (int, error)
}

// MultiWriter fans a report out to several Writers, for example a JSON file
// and the terminal.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter returns a MultiWriter over writers, used in order.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders report with every writer. It stops at the first failure
// and returns the bytes written so far.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.Write(report) })
}

// WriteAll renders reports with every writer.
func (m *MultiWriter) WriteAll(reports []*model.CrawlReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteAll(reports) })
}

func (m *MultiWriter) each(write func(Writer) (int, error)) (int, error) {
	written := 0
	for _, w := range m.writers {
		n, err := write(w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// baseWriter holds the destination shared by the concrete writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// statusLabel returns the display form of a crawl status, "Completed" for
// "completed".
func statusLabel(s model.CrawlStatus) string {
	return titleCaser.String(string(s))
}

const timeLayout = "2006-01-02 15:04:05 MST"
