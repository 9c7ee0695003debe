package model

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-bench/internal/dataset"
)

var tinyShape = Shape{Height: 8, Width: 8, Channels: 1, NumLabels: 3, BatchSize: 2}

func tinyStack() Blueprint {
	return Blueprint{
		Name: "tiny",
		Layers: []LayerSpec{
			ConvLayer("cnn1", 4, 3, 1, 1),
			PoolLayer("maxpool1", 2, 2),
			DenseLayer("ffn1", 8),
			OutputLayer("output"),
		},
		Init: Normal(0, 0.1),
	}
}

func tinyGraph() GraphBlueprint {
	return GraphBlueprint{
		Name: "tiny-rnn",
		Vertices: []Vertex{
			{Name: "rnn", Kind: RecurrentVertex, Inputs: []string{InputVertex}, Units: 5, Activation: Tanh},
			{Name: "last", Kind: LastStepVertex, Inputs: []string{"rnn"}},
			{Name: "output", Kind: LayerVertex, Inputs: []string{"last"}, Layer: OutputLayer("output")},
		},
		Output: "output",
	}
}

func randomBatch(t *testing.T, s Shape, seed int64) dataset.Batch {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	b := dataset.Batch{
		Features: make([]float32, s.BatchSize*s.FeaturesPerExample()),
		Labels:   make([]int32, s.BatchSize),
		Size:     s.BatchSize,
	}
	for i := range b.Features {
		b.Features[i] = rng.Float32()
	}
	for i := range b.Labels {
		b.Labels[i] = int32(rng.Intn(s.NumLabels))
	}
	return b
}

func newTiny(t *testing.T, opts Options) *Network {
	t.Helper()
	m, err := NewStack(tinyStack(), tinyShape, opts)
	require.NoError(t, err)
	require.NoError(t, m.Init())
	return m
}

func stage(t *testing.T, m TrainableModel, b dataset.Batch) {
	t.Helper()
	require.NoError(t, m.SetInput(b.Features))
	require.NoError(t, m.SetLabels(b.Labels))
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in   string
		want Variant
	}{
		{"ALEXNET", AlexNet},
		{"alexnet", AlexNet},
		{"generic-cnn", GenericCNN},
		{"CNN", GenericCNN},
		{" LeNet ", LeNet},
		{"vgg16", VGG16},
		{"RNN", RNN},
		{"all", All},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariant(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseVariant("RESNET")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestVariantText(t *testing.T) {
	var v Variant
	require.NoError(t, v.UnmarshalText([]byte("vgg16")))
	assert.Equal(t, VGG16, v)

	text, err := v.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "VGG16", string(text))

	assert.False(t, All.Concrete())
	assert.Len(t, ConcreteVariants(), 5)
}

func TestShapeValidate(t *testing.T) {
	require.NoError(t, tinyShape.Validate())
	assert.Equal(t, 64, tinyShape.FeaturesPerExample())
	assert.Equal(t, "2x1x8x8", tinyShape.String())
	assert.Equal(t, "synthetic 2x1x8x8", tinyShape.Describe("synthetic"))

	bad := tinyShape
	bad.NumLabels = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestPlanLayers(t *testing.T) {
	plan, err := planLayers(tinyStack().Layers, spatial(1, 8, 8), 3)
	require.NoError(t, err)
	require.Len(t, plan, 4)

	assert.Equal(t, spatial(4, 8, 8), plan[0].out)
	assert.Equal(t, spatial(4, 4, 4), plan[1].out)
	assert.True(t, plan[2].flatten)
	assert.Equal(t, flat(64), plan[2].in)
	assert.Equal(t, flat(3), plan[3].out)

	// 4*1*3*3+4, 64*8+8, 8*3+3
	assert.Equal(t, 40+520+27, plan[0].paramCount()+plan[2].paramCount()+plan[3].paramCount())
}

func TestPlanLayersRejectsSmallInput(t *testing.T) {
	_, err := planLayers([]LayerSpec{ConvLayer("big", 2, 11, 4, 0), OutputLayer("out")}, spatial(3, 8, 8), 10)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrUnsupportedTopo)

	_, err = planLayers([]LayerSpec{DenseLayer("ffn", 4)}, flat(4), 2)
	assert.ErrorIs(t, err, ErrUnsupportedTopo)
}

func TestNetworkRequiresInit(t *testing.T) {
	m, err := NewStack(tinyStack(), tinyShape, Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, m.SetInput(make([]float32, 128)), ErrNotInitialized)
	_, err = m.Forward()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.ComputeGradients(), ErrNotInitialized)
	assert.Equal(t, "tiny", m.Name())
}

func TestNetworkForward(t *testing.T) {
	m := newTiny(t, Options{Seed: 1})
	stage(t, m, randomBatch(t, tinyShape, 7))

	before := m.ParameterValues()
	act, err := m.Forward()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, act.OutputShape)
	assert.Greater(t, act.Loss, float32(0))
	assert.Equal(t, before, m.ParameterValues(), "forward must not update parameters")
}

func TestNetworkForwardWithoutInput(t *testing.T) {
	m := newTiny(t, Options{})
	_, err := m.Forward()
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestComputeGradientsStaleState(t *testing.T) {
	m := newTiny(t, Options{Seed: 1})
	stage(t, m, randomBatch(t, tinyShape, 3))

	assert.ErrorIs(t, m.ComputeGradients(), ErrStaleState)

	_, err := m.Forward()
	require.NoError(t, err)
	require.NoError(t, m.ComputeGradients())

	assert.ErrorIs(t, m.ComputeGradients(), ErrStaleState, "a forward pass is consumed once")

	_, err = m.Forward()
	require.NoError(t, err)
	stage(t, m, randomBatch(t, tinyShape, 4))
	assert.ErrorIs(t, m.ComputeGradients(), ErrStaleState, "new input invalidates the pending pass")
}

func TestSetInputRejectsBadLength(t *testing.T) {
	m := newTiny(t, Options{})
	err := m.SetInput(make([]float32, 65))

	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "set_input", compErr.Phase)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestSetLabelsOutOfRange(t *testing.T) {
	m := newTiny(t, Options{})
	err := m.SetLabels([]int32{0, 3})

	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "tiny", compErr.Model)
}

func TestForwardLabelMismatch(t *testing.T) {
	m := newTiny(t, Options{})
	b := randomBatch(t, tinyShape, 1)
	require.NoError(t, m.SetInput(b.Features))
	require.NoError(t, m.SetLabels(b.Labels[:1]))

	_, err := m.Forward()
	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
}

func TestInitIsSeeded(t *testing.T) {
	a := newTiny(t, Options{Seed: 42})
	b := newTiny(t, Options{Seed: 42})
	c := newTiny(t, Options{Seed: 43})

	assert.Equal(t, a.ParameterValues(), b.ParameterValues())
	assert.NotEqual(t, a.ParameterValues(), c.ParameterValues())
}

func TestBiasInit(t *testing.T) {
	bp := tinyStack()
	bp.Layers[2] = bp.Layers[2].WithBias(1)
	m, err := NewStack(bp, tinyShape, Options{})
	require.NoError(t, err)
	require.NoError(t, m.Init())

	// cnn1 weight, cnn1 bias, ffn1 weight, ffn1 bias, ...
	for _, v := range m.ParameterValues()[3] {
		assert.Equal(t, float32(1), v)
	}
	for _, v := range m.ParameterValues()[1] {
		assert.Equal(t, float32(0), v)
	}
}

func TestFitUpdatesParameters(t *testing.T) {
	var logged []string
	m := newTiny(t, Options{
		Seed:            5,
		TrainIterations: 2,
		ListenerFreq:    2,
		Logf: func(format string, args ...any) {
			logged = append(logged, format)
		},
	})
	before := m.ParameterValues()

	it := dataset.NewSlice("train", randomBatch(t, tinyShape, 1), randomBatch(t, tinyShape, 2))
	stats, err := m.Fit(context.Background(), it)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 4, stats.Steps)
	assert.Len(t, logged, 2)
	assert.NotEqual(t, before, m.ParameterValues())
}

func TestFitCanceled(t *testing.T) {
	m := newTiny(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Fit(ctx, dataset.NewSlice("train", randomBatch(t, tinyShape, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplicaGradients(t *testing.T) {
	m := newTiny(t, Options{Seed: 9})
	r, err := m.Replica()
	require.NoError(t, err)
	assert.Equal(t, m.ParameterValues(), r.ParameterValues())

	_, err = r.Gradients()
	assert.ErrorIs(t, err, ErrStaleState)

	stage(t, r, randomBatch(t, tinyShape, 2))
	_, err = r.Forward()
	require.NoError(t, err)
	require.NoError(t, r.ComputeGradients())

	grads, err := r.Gradients()
	require.NoError(t, err)
	require.Len(t, grads, len(m.ParameterValues()))

	before := m.ParameterValues()
	require.NoError(t, m.ApplyGradients(grads))
	assert.NotEqual(t, before, m.ParameterValues())

	require.NoError(t, r.SyncFrom(m))
	assert.Equal(t, m.ParameterValues(), r.ParameterValues())
}

func TestStackSummary(t *testing.T) {
	m := newTiny(t, Options{})
	summary := m.Summary()

	assert.True(t, strings.HasPrefix(summary, "tiny (input 1x8x8)"))
	assert.Contains(t, summary, "cnn1")
	assert.Contains(t, summary, "MaxPool2D 2x2/2")
	assert.Contains(t, summary, "Total parameters: 587")
	assert.Equal(t, 587, m.NumParams())
}

func TestGraphForward(t *testing.T) {
	shape := Shape{Height: 4, Width: 3, Channels: 2, NumLabels: 5, BatchSize: 3}
	m, err := NewGraph(tinyGraph(), shape, Options{Seed: 2})
	require.NoError(t, err)
	require.NoError(t, m.Init())

	stage(t, m, randomBatch(t, shape, 11))
	act, err := m.Forward()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, act.OutputShape)
	require.NoError(t, m.ComputeGradients())

	// in: 6*5+5, rec: 5*5+5, out: 5*5+5
	assert.Equal(t, 35+30+30, m.NumParams())
	assert.Contains(t, m.Summary(), "Recurrent 5 tanh")
}

func TestGraphStageFrames(t *testing.T) {
	shape := Shape{Height: 2, Width: 2, Channels: 1, NumLabels: 2, BatchSize: 2}
	g := &graph{shape: shape}
	frames, err := g.stage([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, newBackend())
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, []float32{1, 2, 5, 6}, frames[0].Raw().AsFloat32())
	assert.Equal(t, []float32{3, 4, 7, 8}, frames[1].Raw().AsFloat32())
}

func TestGraphValidation(t *testing.T) {
	shape := Shape{Height: 4, Width: 3, Channels: 1, NumLabels: 2, BatchSize: 1}

	forwardRef := tinyGraph()
	forwardRef.Vertices[0].Inputs = []string{"last"}
	_, err := NewGraph(forwardRef, shape, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedTopo)

	noLast := tinyGraph()
	noLast.Vertices[2].Inputs = []string{"rnn"}
	_, err = NewGraph(noLast, shape, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedTopo)

	badAdd := tinyGraph()
	badAdd.Vertices = append([]Vertex{
		{Name: "sum", Kind: AddVertex, Inputs: []string{InputVertex, "missing"}},
	}, badAdd.Vertices...)
	_, err = NewGraph(badAdd, shape, Options{})
	assert.True(t, IsConfigurationError(err))
}

func TestRecoverInto(t *testing.T) {
	run := func() (err error) {
		defer recoverInto("m", "forward", &err)
		panic("Linear.Forward: expected input with 4 features, got 3")
	}
	err := run()

	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "forward", compErr.Phase)
	assert.Contains(t, err.Error(), "expected input with 4 features")

	cause := errors.New("boom")
	run = func() (err error) {
		defer recoverInto("m", "backward", &err)
		panic(cause)
	}
	assert.ErrorIs(t, run(), cause)
}
