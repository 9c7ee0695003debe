// Package bench drives models through training and timed forward and
// backward passes, producing one report per model.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/born-bench/internal/dataset"
	"github.com/born-ml/born-bench/internal/model"
	"github.com/born-ml/born-bench/internal/report"
	"github.com/born-ml/born-bench/internal/timing"
	"github.com/born-ml/born-bench/internal/zoo"
)

// Common errors.
var (
	ErrEmptyDataset  = errors.New("dataset produced no batches after reset")
	ErrIteratorReset = errors.New("dataset iterator reset failed")
)

// DefaultProgressEvery is how often the measurement loop logs progress.
const DefaultProgressEvery = 100

// Catalog selects initialized models.
type Catalog interface {
	Select(v model.Variant, shape model.Shape, opts model.Options) (*zoo.Selection, error)
}

// Trainer fits a model once over an iterator.
type Trainer interface {
	Fit(ctx context.Context, m model.TrainableModel, it dataset.Iterator) (model.FitStats, error)
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context, m model.TrainableModel, it dataset.Iterator) (model.FitStats, error)

// Fit calls f.
func (f TrainerFunc) Fit(ctx context.Context, m model.TrainableModel, it dataset.Iterator) (model.FitStats, error) {
	return f(ctx, m, it)
}

// SerialTrainer trains with the model's own Fit.
var SerialTrainer = TrainerFunc(func(ctx context.Context, m model.TrainableModel, it dataset.Iterator) (model.FitStats, error) {
	return m.Fit(ctx, it)
})

// Config selects what a run benchmarks.
type Config struct {
	Variant model.Variant
	Shape   model.Shape
	Options model.Options
}

// Outcome is the result of benchmarking one model. Report is nil when the
// model failed before its report was finalized.
type Outcome struct {
	Variant model.Variant
	Model   string
	Report  *report.Report
	Err     error
}

// Result lists outcomes in selection order.
type Result struct {
	RunID    string
	Outcomes []Outcome
}

// Err joins the errors of every failed model.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Reports returns the finalized reports in order.
func (r *Result) Reports() []*report.Report {
	var out []*report.Report
	for _, o := range r.Outcomes {
		if o.Report != nil && o.Report.Sealed() {
			out = append(out, o.Report)
		}
	}
	return out
}

// Runner benchmarks every model of a selection, one after another.
type Runner struct {
	catalog       Catalog
	trainer       Trainer
	sinks         []report.Sink
	logger        *log.Logger
	now           timing.Clock
	progressEvery int
	newRunID      func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithTrainer replaces the serial trainer, e.g. with a parallel wrapper.
func WithTrainer(t Trainer) Option {
	return func(r *Runner) { r.trainer = t }
}

// WithSinks adds report sinks.
func WithSinks(sinks ...report.Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithLogger sets the progress logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock sets the clock used for phase timing and timestamps.
func WithClock(now timing.Clock) Option {
	return func(r *Runner) { r.now = now }
}

// WithProgressEvery sets the progress logging interval; 0 disables it.
func WithProgressEvery(n int) Option {
	return func(r *Runner) { r.progressEvery = n }
}

// WithRunID fixes the run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) { r.newRunID = func() string { return id } }
}

// New creates a runner over catalog.
func New(catalog Catalog, opts ...Option) *Runner {
	r := &Runner{
		catalog:       catalog,
		trainer:       SerialTrainer,
		logger:        log.New(io.Discard, "", 0),
		now:           time.Now,
		progressEvery: DefaultProgressEvery,
		newRunID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run selects the configured models and benchmarks each against it.
//
// A ConfigurationError aborts the run and is returned. Any other model
// failure is recorded in its Outcome and the run moves on. ctx is checked
// between models only.
func (r *Runner) Run(ctx context.Context, cfg Config, it dataset.Iterator) (*Result, error) {
	sel, err := r.catalog.Select(cfg.Variant, cfg.Shape, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", cfg.Variant, err)
	}
	if sel == nil {
		return nil, &model.ConfigurationError{Field: "selection", Value: cfg.Variant, Err: zoo.ErrNilModel}
	}

	res := &Result{RunID: r.newRunID()}
	r.logger.Printf("run %s: selected %v on %s", res.RunID, sel.Variants(), cfg.Shape.Describe(it.Name()))

	for _, e := range sel.Entries() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.logger.Printf("Selected: %s", e.Variant)
		out := r.benchmark(ctx, res.RunID, cfg.Shape, e, it)
		res.Outcomes = append(res.Outcomes, out)
		if out.Err != nil {
			if model.IsConfigurationError(out.Err) {
				return res, out.Err
			}
			r.logger.Printf("%s: failed: %v", out.Model, out.Err)
		}
	}
	return res, nil
}

func (r *Runner) benchmark(ctx context.Context, runID string, shape model.Shape, e zoo.Entry, it dataset.Iterator) Outcome {
	m := e.Model
	out := Outcome{Variant: e.Variant, Model: m.Name()}
	timer := timing.New(r.now)

	rep := report.New(report.Identity{
		RunID:      runID,
		Model:      m.Name(),
		Variant:    e.Variant.String(),
		Dataset:    shape.Describe(it.Name()),
		Summary:    m.Summary(),
		ParamCount: m.NumParams(),
	}, r.now())

	var stats model.FitStats
	trainTime, err := timer.Time(func() error {
		var err error
		stats, err = r.trainer.Fit(ctx, m, it)
		return err
	})
	if err != nil {
		out.Err = fmt.Errorf("%s: fit: %w", m.Name(), err)
		return out
	}
	if err := rep.SetTraining(report.Training{
		Duration: trainTime,
		Batches:  stats.Batches,
		Steps:    stats.Steps,
		Score:    stats.Score,
	}); err != nil {
		out.Err = err
		return out
	}
	r.logger.Printf("%s: trained %d batches in %s", m.Name(), stats.Batches, trainTime.Round(time.Millisecond))

	if err := it.Reset(); err != nil {
		out.Err = fmt.Errorf("%s: %w: %w", m.Name(), ErrIteratorReset, err)
		return out
	}

	metrics, err := r.measure(m, it, timer)
	if err != nil {
		out.Err = err
		return out
	}
	if err := rep.Finalize(metrics, r.now()); err != nil {
		out.Err = fmt.Errorf("%s: %w", m.Name(), err)
		return out
	}
	out.Report = rep
	r.logger.Printf("%s: forward %.3f ms, backward %.3f ms over %d iterations",
		m.Name(), metrics.AvgForwardMillis, metrics.AvgBackwardMillis, metrics.ForwardCount)

	var errs []error
	for _, s := range r.sinks {
		if err := s.Emit(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		out.Err = fmt.Errorf("%s: emit: %w", m.Name(), err)
	}
	return out
}

// measure times one forward and one backward pass per remaining batch.
func (r *Runner) measure(m model.TrainableModel, it dataset.Iterator, timer *timing.Timer) (report.Metrics, error) {
	var forward, backward timing.Accumulator
	iterations := 0
	for it.HasNext() {
		batch, err := it.Next()
		if errors.Is(err, dataset.ErrExhausted) {
			break
		}
		if err != nil {
			return report.Metrics{}, fmt.Errorf("%s: next batch: %w", m.Name(), err)
		}

		_, d, err := timing.Measure(timer, func() (model.Activations, error) {
			if err := m.SetInput(batch.Features); err != nil {
				return model.Activations{}, err
			}
			if err := m.SetLabels(batch.Labels); err != nil {
				return model.Activations{}, err
			}
			return m.Forward()
		})
		if err != nil {
			return report.Metrics{}, err
		}
		forward.Add(d)

		d, err = timer.Time(m.ComputeGradients)
		if err != nil {
			return report.Metrics{}, err
		}
		backward.Add(d)

		iterations++
		if r.progressEvery > 0 && iterations%r.progressEvery == 0 {
			r.logger.Printf("%s: Completed %d iterations", m.Name(), iterations)
		}
	}

	fwd, err := forward.MeanMillis()
	if errors.Is(err, timing.ErrNoSamples) {
		return report.Metrics{}, fmt.Errorf("%s: %w", m.Name(), ErrEmptyDataset)
	}
	bwd, err := backward.MeanMillis()
	if err != nil {
		return report.Metrics{}, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return report.Metrics{
		AvgForwardMillis:  fwd,
		AvgBackwardMillis: bwd,
		ForwardCount:      forward.Count(),
		BackwardCount:     backward.Count(),
	}, nil
}
