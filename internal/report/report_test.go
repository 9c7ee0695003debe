package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return New(Identity{
		RunID:      "run-1",
		Model:      "AlexNet",
		Variant:    "ALEXNET",
		Dataset:    "synthetic 2x3x224x224",
		Summary:    "AlexNet (input 3x224x224)\nTotal parameters: 1234567\n",
		ParamCount: 1234567,
	}, time.Unix(100, 0))
}

func TestFinalizeSeals(t *testing.T) {
	r := sampleReport()
	require.NoError(t, r.SetTraining(Training{Duration: time.Second, Batches: 5, Steps: 5, Score: 6.9}))

	m := Metrics{AvgForwardMillis: 12.5, AvgBackwardMillis: 30, ForwardCount: 5, BackwardCount: 5}
	require.NoError(t, r.Finalize(m, time.Unix(200, 0)))
	assert.True(t, r.Sealed())
	assert.Equal(t, 12.5, r.AvgForwardMillis)

	assert.ErrorIs(t, r.Finalize(m, time.Unix(300, 0)), ErrReportSealed)
	assert.ErrorIs(t, r.SetTraining(Training{}), ErrReportSealed)
	assert.Equal(t, time.Unix(200, 0), r.FinishedAt)
}

func TestFinalizeRejectsUnequalCounts(t *testing.T) {
	r := sampleReport()
	err := r.Finalize(Metrics{ForwardCount: 3, BackwardCount: 2}, time.Now())
	require.Error(t, err)
	assert.False(t, r.Sealed())
}

func TestString(t *testing.T) {
	r := sampleReport()
	require.NoError(t, r.Finalize(Metrics{AvgForwardMillis: 1.25, AvgBackwardMillis: 2.5, ForwardCount: 4, BackwardCount: 4}, time.Unix(200, 0)))

	s := r.String()
	assert.True(t, strings.HasPrefix(s, "===== Benchmark AlexNet (run run-1) ====="))
	assert.Contains(t, s, "Dataset: synthetic 2x3x224x224")
	assert.Contains(t, s, "Total parameters: 1234567")
	assert.Contains(t, s, "Avg forward: 1.250 ms (4 iterations)")
	assert.Contains(t, s, "Avg backward: 2.500 ms (4 iterations)")
}

func TestRenderer(t *testing.T) {
	r := sampleReport()
	require.NoError(t, r.Finalize(Metrics{AvgForwardMillis: 1, AvgBackwardMillis: 2, ForwardCount: 1, BackwardCount: 1}, time.Now()))

	plain := Renderer{}.Render(r)
	assert.Contains(t, plain, "== AlexNet ==")
	assert.Contains(t, plain, "1,234,567")
	assert.Contains(t, plain, "1.000 ms x 1")

	styled := Renderer{Styled: true}.Render(r)
	assert.Contains(t, styled, "Benchmark: AlexNet")
	assert.Contains(t, styled, "1,234,567")
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, Renderer{})
	r := sampleReport()

	assert.Error(t, sink.Emit(context.Background(), r), "open reports are not emitted")

	require.NoError(t, r.Finalize(Metrics{ForwardCount: 1, BackwardCount: 1}, time.Now()))
	require.NoError(t, sink.Emit(context.Background(), r))
	assert.Contains(t, buf.String(), "synthetic 2x3x224x224")
}

func TestSinkFunc(t *testing.T) {
	var got *Report
	sink := SinkFunc(func(_ context.Context, r *Report) error {
		got = r
		return nil
	})
	r := sampleReport()
	require.NoError(t, sink.Emit(context.Background(), r))
	assert.Same(t, r, got)
}
