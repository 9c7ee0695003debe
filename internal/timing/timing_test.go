package timing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every reading.
func stepClock(step time.Duration) Clock {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestMeasure(t *testing.T) {
	timer := New(stepClock(3 * time.Millisecond))

	got, elapsed, err := Measure(timer, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3*time.Millisecond, elapsed)
}

func TestMeasureError(t *testing.T) {
	timer := New(stepClock(time.Second))
	boom := errors.New("boom")

	_, elapsed, err := Measure(timer, func() (string, error) { return "", boom })
	assert.Same(t, boom, err)
	assert.Zero(t, elapsed)
}

func TestTimerRealClock(t *testing.T) {
	elapsed, err := New(nil).Time(func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, time.Millisecond)
}

func TestAccumulator(t *testing.T) {
	var acc Accumulator

	_, err := acc.MeanMillis()
	assert.ErrorIs(t, err, ErrNoSamples)

	acc.Add(2 * time.Millisecond)
	acc.Add(4 * time.Millisecond)
	acc.Add(9 * time.Millisecond)

	assert.Equal(t, 3, acc.Count())
	assert.Equal(t, 15*time.Millisecond, acc.Total())
	mean, err := acc.MeanMillis()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, mean, 1e-9)

	acc.Reset()
	assert.Zero(t, acc.Count())
	assert.Zero(t, acc.Total())
}
