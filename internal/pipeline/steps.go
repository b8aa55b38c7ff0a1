package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/webcrawler/internal/model"
)

// ReportSaver stores finished reports. database.CrawlDB implements it.
type ReportSaver interface {
	SaveReport(ctx context.Context, report *model.CrawlReport) (int64, error)
}

// CrawlRecorder records finished crawls. metrics.Collector implements it.
type CrawlRecorder interface {
	CrawlFinished(report *model.CrawlReport)
}

// LogStep logs the outcome of a crawl: a summary line, plus one debug line
// per failed URL.
type LogStep struct {
	logger *slog.Logger
}

// NewLogStep creates a LogStep. A nil logger means slog.Default().
func NewLogStep(logger *slog.Logger) *LogStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStep{logger: logger}
}

// Name returns the step name.
func (s *LogStep) Name() string {
	return "log"
}

// Do logs the report.
func (s *LogStep) Do(_ context.Context, report *model.CrawlReport) error {
	summary := report.Summary()
	attrs := []any{
		"url", report.StartURL,
		"status", report.Status,
		"downloaded", summary.Downloaded,
		"failed", summary.Failed,
		"elapsed", report.Duration(),
	}

	switch report.Status {
	case model.StatusCompleted:
		s.logger.Info("crawl completed", attrs...)
	case model.StatusFailed:
		s.logger.Error("crawl failed", append(attrs, "error", report.Error)...)
	default:
		s.logger.Warn("crawl interrupted", append(attrs, "error", report.Error)...)
	}

	for _, e := range report.Errors {
		s.logger.Debug("url failed", "url", e.URL, "kind", e.Kind, "error", e.Message)
	}
	return nil
}

// MetricsStep feeds finished crawls into a CrawlRecorder.
type MetricsStep struct {
	recorder CrawlRecorder
}

// NewMetricsStep creates a MetricsStep.
func NewMetricsStep(recorder CrawlRecorder) *MetricsStep {
	return &MetricsStep{recorder: recorder}
}

// Name returns the step name.
func (s *MetricsStep) Name() string {
	return "metrics"
}

// Do records the report.
func (s *MetricsStep) Do(_ context.Context, report *model.CrawlReport) error {
	s.recorder.CrawlFinished(report)
	return nil
}

// SaveStep stores reports in the crawl history. Reports of crawls that
// never started are skipped.
type SaveStep struct {
	saver  ReportSaver
	logger *slog.Logger
}

// NewSaveStep creates a SaveStep. A nil logger means slog.Default().
func NewSaveStep(saver ReportSaver, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{saver: saver, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do saves the report.
func (s *SaveStep) Do(ctx context.Context, report *model.CrawlReport) error {
	if report.Status == model.StatusFailed {
		return nil
	}

	id, err := s.saver.SaveReport(ctx, report)
	if err != nil {
		return fmt.Errorf("save report for %s: %w", report.StartURL, err)
	}

	s.logger.Debug("report saved", "url", report.StartURL, "id", id)
	return nil
}
