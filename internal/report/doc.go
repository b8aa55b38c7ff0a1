// Package report writes crawl reports.
//
// Three formats are available:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: structured JSON for other tools
//   - MarkdownWriter: Markdown with a mermaid chart of failure kinds
//
// Report data lives in the model package; this package only formats it.
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
