package model

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Tensor is the float tensor type models compute with.
type Tensor = tensor.Tensor[float32, *Backend]

// LayerKind enumerates the layer types a blueprint can declare.
type LayerKind int

// Layer kinds.
const (
	Conv LayerKind = iota + 1
	MaxPool
	Dense
	Output
)

func (k LayerKind) String() string {
	switch k {
	case Conv:
		return "Conv2D"
	case MaxPool:
		return "MaxPool2D"
	case Dense:
		return "Dense"
	case Output:
		return "Output"
	default:
		return fmt.Sprintf("LayerKind(%d)", int(k))
	}
}

// Activation selects the non-linearity applied after a layer.
type Activation int

// Activations. The zero value means ReLU for hidden layers; Output layers
// never get an activation because softmax is folded into the loss.
const (
	ReLU Activation = iota
	Tanh
	Sigmoid
	Identity
)

func (a Activation) String() string {
	switch a {
	case ReLU:
		return "relu"
	case Tanh:
		return "tanh"
	case Sigmoid:
		return "sigmoid"
	default:
		return "identity"
	}
}

// Distribution describes how weights are drawn at Init.
// A zero Std selects Xavier uniform initialization.
type Distribution struct {
	Mean float64
	Std  float64
}

// Normal returns N(mean, std).
func Normal(mean, std float64) Distribution {
	return Distribution{Mean: mean, Std: std}
}

func (d Distribution) String() string {
	if d.Std == 0 {
		return "xavier"
	}
	return fmt.Sprintf("N(%g, %g)", d.Mean, d.Std)
}

func (d Distribution) fill(data []float32, fanIn, fanOut int, rng *rand.Rand) {
	if d.Std == 0 {
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
		for i := range data {
			data[i] = float32((rng.Float64()*2 - 1) * bound)
		}
		return
	}
	for i := range data {
		data[i] = float32(rng.NormFloat64()*d.Std + d.Mean)
	}
}

// LayerSpec declares one layer of an architecture.
type LayerSpec struct {
	Kind       LayerKind
	Name       string
	Units      int // Output channels (Conv) or features (Dense)
	Kernel     int
	Stride     int
	Padding    int
	Activation Activation
	Init       *Distribution // Overrides the blueprint distribution
	BiasInit   float32
}

// ConvLayer declares a square convolution followed by ReLU.
func ConvLayer(name string, filters, kernel, stride, padding int) LayerSpec {
	return LayerSpec{Kind: Conv, Name: name, Units: filters, Kernel: kernel, Stride: stride, Padding: padding}
}

// PoolLayer declares a square max pooling layer.
func PoolLayer(name string, kernel, stride int) LayerSpec {
	return LayerSpec{Kind: MaxPool, Name: name, Kernel: kernel, Stride: stride}
}

// DenseLayer declares a fully connected layer followed by ReLU.
func DenseLayer(name string, units int) LayerSpec {
	return LayerSpec{Kind: Dense, Name: name, Units: units}
}

// OutputLayer declares the classifier; its width is the label count.
func OutputLayer(name string) LayerSpec {
	return LayerSpec{Kind: Output, Name: name, Activation: Identity}
}

// WithBias returns a copy of l with a constant bias initialization.
func (l LayerSpec) WithBias(v float32) LayerSpec {
	l.BiasInit = v
	return l
}

// WithInit returns a copy of l with its own weight distribution.
func (l LayerSpec) WithInit(d Distribution) LayerSpec {
	l.Init = &d
	return l
}

// WithActivation returns a copy of l with a different activation.
func (l LayerSpec) WithActivation(a Activation) LayerSpec {
	l.Activation = a
	return l
}

// dims is the per-example shape flowing between layers.
// Flat tensors use only N.
type dims struct {
	C, H, W int
	N       int
	flat    bool
}

func spatial(c, h, w int) dims { return dims{C: c, H: h, W: w} }
func flat(n int) dims        { return dims{N: n, flat: true} }

func (d dims) size() int {
	if d.flat {
		return d.N
	}
	return d.C * d.H * d.W
}

func (d dims) String() string {
	if d.flat {
		return fmt.Sprintf("%d", d.N)
	}
	return fmt.Sprintf("%dx%dx%d", d.C, d.H, d.W)
}

// plannedLayer is a LayerSpec with its inferred input and output dims.
type plannedLayer struct {
	spec    LayerSpec
	in, out dims
	flatten bool // Insert a flatten before this layer
}

// planLayers infers every layer's dims for input in, the way a layer-stack
// configuration infers nIn from the previous layer.
func planLayers(specs []LayerSpec, in dims, numLabels int) ([]plannedLayer, error) {
	plan := make([]plannedLayer, 0, len(specs))
	cur := in
	for i, spec := range specs {
		p := plannedLayer{spec: spec, in: cur}
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("layer%d", i)
			p.spec.Name = name
		}
		switch spec.Kind {
		case Conv, MaxPool:
			if cur.flat {
				return nil, topoError(name, cur, "spatial layer after flatten")
			}
			k, s, pad := spec.Kernel, spec.Stride, spec.Padding
			if spec.Kind == MaxPool {
				pad = 0
			}
			if k <= 0 || s <= 0 || pad < 0 {
				return nil, topoError(name, cur, fmt.Sprintf("kernel=%d stride=%d padding=%d", k, s, pad))
			}
			if cur.H+2*pad < k || cur.W+2*pad < k {
				return nil, topoError(name, cur, fmt.Sprintf("kernel %d larger than padded input", k))
			}
			outC := cur.C
			if spec.Kind == Conv {
				if spec.Units <= 0 {
					return nil, topoError(name, cur, "conv needs filters > 0")
				}
				outC = spec.Units
			}
			cur = spatial(outC, (cur.H+2*pad-k)/s+1, (cur.W+2*pad-k)/s+1)
		case Dense, Output:
			if !cur.flat {
				p.flatten = true
				cur = flat(cur.size())
				p.in = cur
			}
			units := spec.Units
			if spec.Kind == Output {
				units = numLabels
				p.spec.Units = units
			}
			if units <= 0 {
				return nil, topoError(name, cur, "dense needs units > 0")
			}
			cur = flat(units)
		default:
			return nil, topoError(name, cur, "unknown layer kind "+spec.Kind.String())
		}
		p.out = cur
		plan = append(plan, p)
	}
	if len(plan) == 0 || plan[len(plan)-1].spec.Kind != Output {
		return nil, &ConfigurationError{Field: "layers", Value: len(specs), Err: fmt.Errorf("%w: last layer must be an output layer", ErrUnsupportedTopo)}
	}
	return plan, nil
}

func topoError(layer string, in dims, reason string) error {
	return &ConfigurationError{
		Field: "layer " + layer,
		Value: in.String(),
		Err:   fmt.Errorf("%w: %s", ErrUnsupportedTopo, reason),
	}
}

// paramCount returns the number of trainable scalars of a planned layer.
func (p plannedLayer) paramCount() int {
	switch p.spec.Kind {
	case Conv:
		return p.out.C*p.in.C*p.spec.Kernel*p.spec.Kernel + p.out.C
	case Dense, Output:
		return p.in.N*p.out.N + p.out.N
	default:
		return 0
	}
}

// fanInOut returns the fan-in and fan-out used for Xavier initialization.
func (p plannedLayer) fanInOut() (int, int) {
	switch p.spec.Kind {
	case Conv:
		k2 := p.spec.Kernel * p.spec.Kernel
		return p.in.C * k2, p.out.C * k2
	default:
		return p.in.N, p.out.N
	}
}

// activationModule returns the nn module for a, or nil for Identity.
func activationModule(a Activation) nn.Module[*Backend] {
	switch a {
	case ReLU:
		return nn.NewReLU[*Backend]()
	case Tanh:
		return nn.NewTanh[*Backend]()
	case Sigmoid:
		return nn.NewSigmoid[*Backend]()
	default:
		return nil
	}
}

// initParams fills weights from dist and biases with a constant.
// params must be [weight, bias] as returned by Conv2D and Linear.
func initParams(params []*nn.Parameter[*Backend], dist Distribution, bias float32, fanIn, fanOut int, rng *rand.Rand) {
	for _, p := range params {
		data := p.Tensor().Raw().AsFloat32()
		if strings.HasSuffix(p.Name(), "bias") {
			for i := range data {
				data[i] = bias
			}
			continue
		}
		dist.fill(data, fanIn, fanOut, rng)
	}
}

// flatten reshapes [batch, ...] to [batch, features].
type flatten struct {
	features int
}

func (f *flatten) Forward(input *Tensor) *Tensor {
	return input.Reshape(input.Shape()[0], f.features)
}

func (f *flatten) Parameters() []*nn.Parameter[*Backend] { return nil }

func (f *flatten) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

func (f *flatten) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

func (f *flatten) String() string {
	return fmt.Sprintf("Flatten(features=%d)", f.features)
}
