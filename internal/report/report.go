// Package report holds the per-model benchmark record and renders it.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrReportSealed is returned when a finalized report is modified.
var ErrReportSealed = errors.New("report already finalized")

// Identity names what a report is about. It is fixed at creation.
type Identity struct {
	RunID      string
	Model      string
	Variant    string
	Dataset    string // e.g. "synthetic 2x3x224x224"
	Summary    string
	ParamCount int
}

// Training describes the one fit performed before measurement.
// Its duration is informational and never part of the phase averages.
type Training struct {
	Duration time.Duration
	Batches  int
	Steps    int
	Score    float32
}

// Metrics are the measured phase averages.
type Metrics struct {
	AvgForwardMillis  float64
	AvgBackwardMillis float64
	ForwardCount      int
	BackwardCount     int
}

// Report is the write-once result of benchmarking one model.
type Report struct {
	Identity
	Training
	Metrics

	StartedAt  time.Time
	FinishedAt time.Time

	sealed bool
}

// New creates an open report.
func New(id Identity, startedAt time.Time) *Report {
	return &Report{Identity: id, StartedAt: startedAt}
}

// Sealed reports whether Finalize has been called.
func (r *Report) Sealed() bool { return r.sealed }

// SetTraining records the training metrics.
func (r *Report) SetTraining(t Training) error {
	if r.sealed {
		return ErrReportSealed
	}
	r.Training = t
	return nil
}

// Finalize stores the phase averages and seals the report.
func (r *Report) Finalize(m Metrics, finishedAt time.Time) error {
	if r.sealed {
		return ErrReportSealed
	}
	if m.ForwardCount != m.BackwardCount {
		return fmt.Errorf("report %s: forward count %d != backward count %d", r.Model, m.ForwardCount, m.BackwardCount)
	}
	r.Metrics = m
	r.FinishedAt = finishedAt
	r.sealed = true
	return nil
}

// String renders the report as plain text.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "===== Benchmark %s (run %s) =====\n", r.Model, r.RunID)
	fmt.Fprintf(&sb, "Dataset: %s\n", r.Dataset)
	if r.Summary != "" {
		sb.WriteString(strings.TrimRight(r.Summary, "\n"))
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "Training: %d batches, %d steps in %s, final score %.6f\n",
		r.Batches, r.Steps, r.Duration.Round(time.Millisecond), r.Score)
	fmt.Fprintf(&sb, "Avg forward: %.3f ms (%d iterations)\n", r.AvgForwardMillis, r.ForwardCount)
	fmt.Fprintf(&sb, "Avg backward: %.3f ms (%d iterations)\n", r.AvgBackwardMillis, r.BackwardCount)
	return sb.String()
}
