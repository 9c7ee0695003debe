// Package timing measures phases and accumulates their durations.
package timing

import (
	"errors"
	"time"
)

// ErrNoSamples is returned when a mean is requested from an empty accumulator.
var ErrNoSamples = errors.New("no samples recorded")

// Clock returns the current time. time.Now carries a monotonic reading,
// so differences are immune to wall clock adjustments.
type Clock func() time.Time

// Timer measures single invocations.
type Timer struct {
	now Clock
}

// New returns a Timer reading now; nil selects time.Now.
func New(now Clock) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Time runs fn and returns its elapsed time. If fn fails, the error is
// returned unchanged and the elapsed time is zero.
func (t *Timer) Time(fn func() error) (time.Duration, error) {
	start := t.now()
	if err := fn(); err != nil {
		return 0, err
	}
	return t.now().Sub(start), nil
}

// Measure runs fn under t and returns its result with the elapsed time.
// A failed phase contributes no duration.
func Measure[T any](t *Timer, fn func() (T, error)) (T, time.Duration, error) {
	var result T
	elapsed, err := t.Time(func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, elapsed, err
}

// Accumulator sums durations for one phase. The zero value is ready to use.
type Accumulator struct {
	total time.Duration
	count int
}

// Add records one sample.
func (a *Accumulator) Add(d time.Duration) {
	a.total += d
	a.count++
}

// Count returns the number of samples.
func (a *Accumulator) Count() int { return a.count }

// Total returns the summed duration.
func (a *Accumulator) Total() time.Duration { return a.total }

// MeanMillis returns the mean sample in milliseconds.
func (a *Accumulator) MeanMillis() (float64, error) {
	if a.count == 0 {
		return 0, ErrNoSamples
	}
	return (a.total.Seconds() * 1000) / float64(a.count), nil
}

// Reset clears the accumulator.
func (a *Accumulator) Reset() {
	a.total = 0
	a.count = 0
}
