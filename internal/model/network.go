package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/born-bench/internal/dataset"
)

// architecture is what Stack and Graph plug into the shared network core.
type architecture interface {
	// build constructs fresh modules on b, drawing initial weights from rng.
	build(b *Backend, rng *rand.Rand) (forward func(inputs []*Tensor) *Tensor, params []*nn.Parameter[*Backend], err error)

	// stage converts flat BxCxHxW features into the input tensors of forward.
	stage(features []float32, batch int, b *Backend) ([]*Tensor, error)

	summary() string
	numParams() int
}

// Network implements TrainableModel and Replicable on top of an architecture.
//
// Each network owns a private autodiff backend; the gradient tape holds
// the ops of at most one pending forward pass.
type Network struct {
	name      string
	shape     Shape
	opts      Options
	arch      architecture
	backend   *Backend
	forward   func(inputs []*Tensor) *Tensor
	params    []*nn.Parameter[*Backend]
	optimizer *optim.SGD[*Backend]
	criterion *nn.CrossEntropyLoss[*Backend]

	inputs  []*Tensor
	batch   int
	labels  *tensor.Tensor[int32, *Backend]
	nLabels int
	loss    *Tensor // Pending forward, consumed by ComputeGradients
	grads   map[*tensor.RawTensor]*tensor.RawTensor

	initialized bool
}

func newNetwork(name string, shape Shape, opts Options, arch architecture) *Network {
	return &Network{
		name:  name,
		shape: shape,
		opts:  opts.withDefaults(),
		arch:  arch,
	}
}

func (n *Network) Name() string { return n.name }

func (n *Network) Summary() string { return n.arch.summary() }

func (n *Network) NumParams() int { return n.arch.numParams() }

// Init builds the modules on a fresh backend and draws parameters from the
// configured seed. Staged input and pending passes are discarded.
func (n *Network) Init() (err error) {
	defer recoverInto(n.name, "init", &err)

	backend := newBackend()
	rng := rand.New(rand.NewSource(n.opts.Seed))
	forward, params, err := n.arch.build(backend, rng)
	if err != nil {
		return err
	}

	n.backend = backend
	n.forward = forward
	n.params = params
	n.optimizer = optim.NewSGD(params, optim.SGDConfig{
		LR:       n.opts.LearningRate,
		Momentum: n.opts.Momentum,
	}, backend)
	n.criterion = nn.NewCrossEntropyLoss(backend)
	n.inputs, n.batch, n.labels, n.nLabels = nil, 0, nil, 0
	n.loss, n.grads = nil, nil
	n.initialized = true
	return nil
}

func (n *Network) checkInit() error {
	if !n.initialized {
		return fmt.Errorf("%s: %w", n.name, ErrNotInitialized)
	}
	return nil
}

// SetInput stages one batch of features and invalidates any pending pass.
func (n *Network) SetInput(features []float32) (err error) {
	if err := n.checkInit(); err != nil {
		return err
	}
	per := n.shape.FeaturesPerExample()
	if len(features) == 0 || len(features)%per != 0 {
		return &ComputationError{
			Model: n.name,
			Phase: "set_input",
			Err:   fmt.Errorf("%w: %d features is not a multiple of %d", ErrInvalidShape, len(features), per),
		}
	}
	defer recoverInto(n.name, "set_input", &err)

	batch := len(features) / per
	inputs, err := n.arch.stage(features, batch, n.backend)
	if err != nil {
		return &ComputationError{Model: n.name, Phase: "set_input", Err: err}
	}
	n.inputs, n.batch = inputs, batch
	n.discardPending()
	return nil
}

// SetLabels stages the class indices of one batch.
func (n *Network) SetLabels(labels []int32) (err error) {
	if err := n.checkInit(); err != nil {
		return err
	}
	if len(labels) == 0 {
		return &ComputationError{Model: n.name, Phase: "set_labels", Err: fmt.Errorf("%w: empty labels", ErrInvalidShape)}
	}
	for i, l := range labels {
		if l < 0 || int(l) >= n.shape.NumLabels {
			return &ComputationError{
				Model: n.name,
				Phase: "set_labels",
				Err:   fmt.Errorf("%w: label[%d]=%d outside [0,%d)", ErrInvalidShape, i, l, n.shape.NumLabels),
			}
		}
	}
	defer recoverInto(n.name, "set_labels", &err)

	t, err := tensor.FromSlice(append([]int32(nil), labels...), tensor.Shape{len(labels)}, n.backend)
	if err != nil {
		return &ComputationError{Model: n.name, Phase: "set_labels", Err: err}
	}
	n.labels, n.nLabels = t, len(labels)
	n.discardPending()
	return nil
}

// discardPending drops the recorded ops of an unconsumed forward pass.
func (n *Network) discardPending() {
	n.loss = nil
	n.backend.Tape().StopRecording()
	n.backend.Tape().Clear()
}

// Forward records the forward pass of the staged batch on the tape.
func (n *Network) Forward() (act Activations, err error) {
	if err := n.checkInit(); err != nil {
		return Activations{}, err
	}
	if n.inputs == nil || n.labels == nil {
		return Activations{}, fmt.Errorf("%s: %w", n.name, ErrNoInput)
	}
	if n.nLabels != n.batch {
		return Activations{}, &ComputationError{
			Model: n.name,
			Phase: "forward",
			Err:   fmt.Errorf("%w: %d labels for batch of %d", ErrInvalidShape, n.nLabels, n.batch),
		}
	}
	defer func() {
		if err != nil {
			n.discardPending()
		}
	}()
	defer recoverInto(n.name, "forward", &err)

	tape := n.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	n.loss, n.grads = nil, nil

	logits := n.forward(n.inputs)
	loss := n.criterion.Forward(logits, n.labels)
	n.loss = loss

	return Activations{
		OutputShape: append([]int(nil), logits.Shape()...),
		Loss:        loss.Raw().AsFloat32()[0],
	}, nil
}

// ComputeGradients consumes the pending forward pass.
func (n *Network) ComputeGradients() (err error) {
	if err := n.checkInit(); err != nil {
		return err
	}
	if n.loss == nil {
		return fmt.Errorf("%s: %w", n.name, ErrStaleState)
	}
	defer n.discardPending()
	defer recoverInto(n.name, "backward", &err)

	n.grads = autodiff.Backward(n.loss, n.backend)
	return nil
}

// step applies the gradients of the last backward pass.
func (n *Network) step() {
	n.backend.Tape().StopRecording()
	n.optimizer.Step(n.grads)
}

// Fit trains on it until exhausted, running TrainIterations optimizer
// steps per minibatch.
func (n *Network) Fit(ctx context.Context, it dataset.Iterator) (stats FitStats, err error) {
	if err := n.checkInit(); err != nil {
		return FitStats{}, err
	}
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch, err := it.Next()
		if errors.Is(err, dataset.ErrExhausted) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("%s: next batch: %w", n.name, err)
		}
		if err := n.SetInput(batch.Features); err != nil {
			return stats, err
		}
		if err := n.SetLabels(batch.Labels); err != nil {
			return stats, err
		}
		for i := 0; i < n.opts.TrainIterations; i++ {
			score, err := n.trainStep()
			if err != nil {
				return stats, err
			}
			stats.Steps++
			stats.Score = score
			if n.opts.ListenerFreq > 0 && n.opts.Logf != nil && stats.Steps%n.opts.ListenerFreq == 0 {
				n.opts.Logf("%s: score at iteration %d is %.6f", n.name, stats.Steps, score)
			}
		}
		stats.Batches++
	}
	return stats, nil
}

func (n *Network) trainStep() (score float32, err error) {
	act, err := n.Forward()
	if err != nil {
		return 0, err
	}
	if err := n.ComputeGradients(); err != nil {
		return 0, err
	}
	defer recoverInto(n.name, "fit", &err)
	n.step()
	return act.Loss, nil
}

// Replica returns a freshly initialized copy of the architecture with the
// same parameter values.
func (n *Network) Replica() (Replicable, error) {
	if err := n.checkInit(); err != nil {
		return nil, err
	}
	r := newNetwork(n.name, n.shape, n.opts, n.arch)
	r.opts.Logf = nil
	if err := r.Init(); err != nil {
		return nil, err
	}
	if err := r.SyncFrom(n); err != nil {
		return nil, err
	}
	return r, nil
}

// SyncFrom copies parameter values from src.
func (n *Network) SyncFrom(src Replicable) error {
	if err := n.checkInit(); err != nil {
		return err
	}
	values := src.ParameterValues()
	if len(values) != len(n.params) {
		return fmt.Errorf("%s: sync: %d parameters, source has %d", n.name, len(n.params), len(values))
	}
	for i, p := range n.params {
		dst := p.Tensor().Raw().AsFloat32()
		if len(dst) != len(values[i]) {
			return fmt.Errorf("%s: sync: parameter %s has %d values, source has %d", n.name, p.Name(), len(dst), len(values[i]))
		}
		copy(dst, values[i])
	}
	return nil
}

// ParameterValues returns copies of the flat parameter values.
func (n *Network) ParameterValues() [][]float32 {
	out := make([][]float32, len(n.params))
	for i, p := range n.params {
		out[i] = append([]float32(nil), p.Tensor().Raw().AsFloat32()...)
	}
	return out
}

// Gradients returns copies of the gradients of the last backward pass.
// Parameters that took no part in the pass get zeros.
func (n *Network) Gradients() ([][]float32, error) {
	if err := n.checkInit(); err != nil {
		return nil, err
	}
	if n.grads == nil {
		return nil, fmt.Errorf("%s: %w", n.name, ErrStaleState)
	}
	out := make([][]float32, len(n.params))
	for i, p := range n.params {
		raw := p.Tensor().Raw()
		if g, ok := n.grads[raw]; ok {
			out[i] = append([]float32(nil), g.AsFloat32()...)
		} else {
			out[i] = make([]float32, raw.NumElements())
		}
	}
	return out, nil
}

// ApplyGradients performs one optimizer step with externally supplied
// gradients, e.g. averaged over replicas.
func (n *Network) ApplyGradients(grads [][]float32) (err error) {
	if err := n.checkInit(); err != nil {
		return err
	}
	if len(grads) != len(n.params) {
		return fmt.Errorf("%s: apply: %d gradients for %d parameters", n.name, len(grads), len(n.params))
	}
	defer recoverInto(n.name, "apply", &err)

	m := make(map[*tensor.RawTensor]*tensor.RawTensor, len(n.params))
	for i, p := range n.params {
		raw := p.Tensor().Raw()
		g, err := tensor.NewRaw(raw.Shape(), tensor.Float32, raw.Device())
		if err != nil {
			return err
		}
		copy(g.AsFloat32(), grads[i])
		m[raw] = g
	}
	n.grads = m
	n.step()
	return nil
}
