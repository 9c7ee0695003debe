package bench

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-bench/internal/dataset"
	"github.com/born-ml/born-bench/internal/model"
	"github.com/born-ml/born-bench/internal/zoo"
)

func synthetic(t *testing.T, s model.Shape, n int) *dataset.Synthetic {
	t.Helper()
	it, err := dataset.NewSynthetic(dataset.SyntheticConfig{
		Height:     s.Height,
		Width:      s.Width,
		Channels:   s.Channels,
		NumLabels:  s.NumLabels,
		BatchSize:  s.BatchSize,
		NumBatches: n,
		Seed:       1,
	})
	require.NoError(t, err)
	return it
}

func TestScenarioLeNet(t *testing.T) {
	s := model.Shape{Height: 28, Width: 28, Channels: 1, NumLabels: 10, BatchSize: 2}
	res, err := New(zoo.New(), WithRunID("lenet")).Run(context.Background(),
		Config{Variant: model.LeNet, Shape: s, Options: model.Options{Seed: 1}}, synthetic(t, s, 3))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	rep := res.Reports()[0]
	assert.Equal(t, "LeNet", rep.Model)
	assert.Equal(t, "synthetic 2x1x28x28", rep.Dataset)
	assert.Equal(t, 3, rep.ForwardCount)
	assert.Equal(t, 3, rep.BackwardCount)
	assert.Equal(t, 3, rep.Steps)
	assert.GreaterOrEqual(t, rep.AvgForwardMillis, 0.0)
	assert.GreaterOrEqual(t, rep.AvgBackwardMillis, 0.0)
	assert.Contains(t, rep.Summary, "Total parameters")
}

func TestScenarioRNN(t *testing.T) {
	s := model.Shape{Height: 8, Width: 8, Channels: 1, NumLabels: 4, BatchSize: 3}
	res, err := New(zoo.New()).Run(context.Background(),
		Config{Variant: model.RNN, Shape: s, Options: model.Options{Seed: 1}}, synthetic(t, s, 2))
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 2, res.Reports()[0].ForwardCount)
}

func TestScenarioUnknownVariantProducesNoReports(t *testing.T) {
	s := model.Shape{Height: 28, Width: 28, Channels: 1, NumLabels: 10, BatchSize: 2}
	res, err := New(zoo.New()).Run(context.Background(), Config{Variant: model.Variant(42), Shape: s}, synthetic(t, s, 1))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, model.IsConfigurationError(err))
}

func TestScenarioAlexNet(t *testing.T) {
	if testing.Short() {
		t.Skip("AlexNet at 224x224 is slow on the CPU backend")
	}
	s := model.Shape{Height: 224, Width: 224, Channels: 3, NumLabels: 1000, BatchSize: 2}
	res, err := New(zoo.New()).Run(context.Background(),
		Config{Variant: model.AlexNet, Shape: s, Options: model.Options{Seed: 1}}, synthetic(t, s, 5))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	reports := res.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "AlexNet", reports[0].Model)
	assert.Equal(t, "synthetic 2x3x224x224", reports[0].Dataset)
	assert.Equal(t, 5, reports[0].ForwardCount)
	assert.Equal(t, 5, reports[0].BackwardCount)
	assert.Positive(t, reports[0].AvgForwardMillis)
	assert.Positive(t, reports[0].AvgBackwardMillis)
}
