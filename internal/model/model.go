package model

import (
	"context"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"

	"github.com/born-ml/born-bench/internal/dataset"
)

// Backend is the autodiff-enabled CPU backend every model computes on.
type Backend = autodiff.Backend[*cpu.Backend]

// newBackend creates a private backend (and gradient tape) for one model.
func newBackend() *Backend {
	return autodiff.New(cpu.New())
}

// TrainableModel is the capability interface the harness drives.
//
// Lifecycle: constructed -> Init -> Fit -> measured with
// SetInput/SetLabels/Forward/ComputeGradients -> discarded.
// Every operation except Name fails with ErrNotInitialized before Init.
type TrainableModel interface {
	// Name returns the model label used in logs and reports.
	Name() string

	// Init allocates parameters from the configured distribution and seed.
	// Calling Init again re-randomizes the parameters.
	Init() error

	// Fit trains on it until exhausted. It does not time itself.
	Fit(ctx context.Context, it dataset.Iterator) (FitStats, error)

	// SetInput stages the features of one batch.
	SetInput(features []float32) error

	// SetLabels stages the labels of one batch.
	SetLabels(labels []int32) error

	// Forward computes activations and loss for the staged batch without
	// touching trainable parameters.
	Forward() (Activations, error)

	// ComputeGradients runs the backward pass for the most recent Forward.
	// It fails with ErrStaleState when no unconsumed Forward exists.
	ComputeGradients() error

	// Summary returns a human-readable description of the layers.
	Summary() string

	// NumParams returns the number of trainable scalars.
	NumParams() int
}

// Replicable is implemented by models that can take part in data-parallel
// training. Replicas share the architecture but own their backend.
type Replicable interface {
	TrainableModel

	// Replica returns an initialized copy of the architecture.
	Replica() (Replicable, error)

	// SyncFrom copies parameter values from src.
	SyncFrom(src Replicable) error

	// Gradients returns the gradients of the last ComputeGradients,
	// one flat slice per parameter in Parameters order.
	Gradients() ([][]float32, error)

	// ApplyGradients performs one optimizer step with the given gradients.
	ApplyGradients(grads [][]float32) error

	// ParameterValues returns the flat parameter values in Parameters order.
	ParameterValues() [][]float32
}

// Activations is the result of a forward pass.
type Activations struct {
	OutputShape []int   // [batch, numLabels]
	Loss        float32 // Mean cross-entropy over the batch
}

// FitStats summarizes one Fit call.
type FitStats struct {
	Batches int     // Batches consumed
	Steps   int     // Optimizer steps taken
	Score   float32 // Loss of the last step
}

// Options configures model construction.
type Options struct {
	Seed            int64   // Parameter initialization seed
	TrainIterations int     // Optimizer steps per minibatch during Fit (>= 1)
	LearningRate    float32 // SGD learning rate
	Momentum        float32 // SGD momentum
	ListenerFreq    int     // Log the score every N steps (0 disables)
	Logf            func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if o.TrainIterations <= 0 {
		o.TrainIterations = 1
	}
	if o.LearningRate == 0 {
		o.LearningRate = 1e-2
	}
	return o
}
