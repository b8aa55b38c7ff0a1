package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/webcrawler/internal/model"
)

// Step processes a finished crawl report.
type Step interface {
	// Do handles one report. Returning an error stops the pipeline unless
	// it was created WithContinueOnError.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name identifies the step in log lines and errors.
	Name() string
}

// Pipeline hands every crawl report to an ordered list of steps.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for step failures. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running the remaining steps after one fails.
// A failed save, for example, should not suppress the metrics of the crawl.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New returns an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends step; steps run in insertion order.
func (p *Pipeline) AddStep(step Step) {
	p.AddSteps(step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute hands report to every step. The returned error is the first
// step failure, wrapped with the step name.
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	var first error
	for _, step := range p.steps {
		err := p.run(ctx, step, report)
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if !p.continueOnError {
			break
		}
	}
	return first
}

func (p *Pipeline) run(ctx context.Context, step Step, report *model.CrawlReport) error {
	log := p.logger.With("step", step.Name(), "url", report.StartURL)
	log.Debug("running report step")

	if err := step.Do(ctx, report); err != nil {
		log.Error("report step failed", "error", err)
		return fmt.Errorf("%s step: %w", step.Name(), err)
	}
	return nil
}

// StepCount is the number of registered steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames lists the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	return names
}
