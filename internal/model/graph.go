package model

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// InputVertex names the implicit vertex holding the input sequence.
// An example of shape CxHxW is read as Height frames of Channels*Width
// features each.
const InputVertex = "input"

// VertexKind enumerates graph vertex types.
type VertexKind int

// Vertex kinds.
const (
	// LayerVertex applies a Dense or Output LayerSpec to every step.
	LayerVertex VertexKind = iota + 1
	// RecurrentVertex is an Elman layer: h_t = act(W x_t + U h_{t-1} + b).
	RecurrentVertex
	// AddVertex sums its inputs step by step.
	AddVertex
	// LastStepVertex keeps only the final step of a sequence.
	LastStepVertex
)

func (k VertexKind) String() string {
	switch k {
	case LayerVertex:
		return "Layer"
	case RecurrentVertex:
		return "Recurrent"
	case AddVertex:
		return "Add"
	case LastStepVertex:
		return "LastStep"
	default:
		return fmt.Sprintf("VertexKind(%d)", int(k))
	}
}

// Vertex is one node of a GraphBlueprint.
type Vertex struct {
	Name       string
	Kind       VertexKind
	Inputs     []string
	Layer      LayerSpec  // LayerVertex only
	Units      int        // RecurrentVertex only
	Activation Activation // RecurrentVertex only
}

// GraphBlueprint is a directed acyclic computation graph. Vertices may only
// consume InputVertex or vertices declared before them, so declaration
// order is a topological order.
type GraphBlueprint struct {
	Name     string
	Vertices []Vertex
	Output   string
	Init     Distribution
}

// seq describes a vertex value: steps tensors of [batch, features].
type seq struct {
	steps    int
	features int
}

func (s seq) String() string { return fmt.Sprintf("%dx%d", s.steps, s.features) }

type plannedVertex struct {
	Vertex
	out     seq
	in      seq
	inputs  []int // Indices into the value table; 0 is the input
	wIn     plannedLayer
	wRec    plannedLayer
	primary plannedLayer
}

type graph struct {
	bp       GraphBlueprint
	shape    Shape
	vertices []plannedVertex
}

// NewGraph validates bp against shape and returns an uninitialized model.
func NewGraph(bp GraphBlueprint, shape Shape, opts Options) (*Network, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	g := &graph{bp: bp, shape: shape}
	if err := g.plan(); err != nil {
		return nil, err
	}
	return newNetwork(bp.Name, shape, opts, g), nil
}

func (g *graph) plan() error {
	index := map[string]int{InputVertex: 0}
	values := []seq{{steps: g.shape.Height, features: g.shape.Channels * g.shape.Width}}

	for _, v := range g.bp.Vertices {
		if _, dup := index[v.Name]; dup || v.Name == "" {
			return graphError(v.Name, "duplicate or empty vertex name")
		}
		pv := plannedVertex{Vertex: v}
		for _, name := range v.Inputs {
			i, ok := index[name]
			if !ok {
				return graphError(v.Name, fmt.Sprintf("input %q is not declared before it", name))
			}
			pv.inputs = append(pv.inputs, i)
		}
		if len(pv.inputs) == 0 {
			return graphError(v.Name, "no inputs")
		}
		in := values[pv.inputs[0]]
		pv.in = in

		switch v.Kind {
		case LayerVertex:
			if len(pv.inputs) != 1 {
				return graphError(v.Name, "layer vertex takes one input")
			}
			if v.Layer.Kind != Dense && v.Layer.Kind != Output {
				return graphError(v.Name, "only dense and output layers apply per step")
			}
			spec := v.Layer
			if spec.Name == "" {
				spec.Name = v.Name
			}
			if spec.Kind == Output {
				spec.Units = g.shape.NumLabels
			}
			if spec.Units <= 0 {
				return graphError(v.Name, "dense needs units > 0")
			}
			pv.primary = plannedLayer{spec: spec, in: flat(in.features), out: flat(spec.Units)}
			pv.out = seq{steps: in.steps, features: spec.Units}
		case RecurrentVertex:
			if len(pv.inputs) != 1 {
				return graphError(v.Name, "recurrent vertex takes one input")
			}
			if v.Units <= 0 {
				return graphError(v.Name, "recurrent vertex needs units > 0")
			}
			pv.wIn = plannedLayer{spec: DenseLayer(v.Name+".in", v.Units), in: flat(in.features), out: flat(v.Units)}
			pv.wRec = plannedLayer{spec: DenseLayer(v.Name+".rec", v.Units), in: flat(v.Units), out: flat(v.Units)}
			pv.out = seq{steps: in.steps, features: v.Units}
		case AddVertex:
			if len(pv.inputs) < 2 {
				return graphError(v.Name, "add vertex needs at least two inputs")
			}
			for _, i := range pv.inputs[1:] {
				if values[i] != in {
					return graphError(v.Name, fmt.Sprintf("cannot add %s and %s", in, values[i]))
				}
			}
			pv.out = in
		case LastStepVertex:
			if len(pv.inputs) != 1 {
				return graphError(v.Name, "last-step vertex takes one input")
			}
			pv.out = seq{steps: 1, features: in.features}
		default:
			return graphError(v.Name, "unknown vertex kind "+v.Kind.String())
		}

		index[v.Name] = len(values)
		values = append(values, pv.out)
		g.vertices = append(g.vertices, pv)
	}

	out, ok := index[g.bp.Output]
	if !ok || out == 0 {
		return graphError(g.bp.Output, "output vertex not declared")
	}
	last := g.vertices[out-1]
	if last.Kind != LayerVertex || last.Layer.Kind != Output || last.out.steps != 1 {
		return graphError(g.bp.Output, "output must be an output layer over a single step")
	}
	return nil
}

func graphError(vertex, reason string) error {
	return &ConfigurationError{Field: "vertex " + vertex, Value: reason, Err: ErrUnsupportedTopo}
}

func (g *graph) distFor(spec LayerSpec) Distribution {
	if spec.Init != nil {
		return *spec.Init
	}
	return g.bp.Init
}

func (g *graph) build(b *Backend, rng *rand.Rand) (func([]*Tensor) *Tensor, []*nn.Parameter[*Backend], error) {
	type step func(values [][]*Tensor) []*Tensor

	var params []*nn.Parameter[*Backend]
	newLinear := func(p plannedLayer) *nn.Linear[*Backend] {
		fc := nn.NewLinear(p.in.N, p.out.N, b)
		fanIn, fanOut := p.fanInOut()
		initParams(fc.Parameters(), g.distFor(p.spec), p.spec.BiasInit, fanIn, fanOut, rng)
		params = append(params, fc.Parameters()...)
		return fc
	}

	steps := make([]step, 0, len(g.vertices))
	for _, pv := range g.vertices {
		switch pv.Kind {
		case LayerVertex:
			fc := newLinear(pv.primary)
			var act nn.Module[*Backend]
			if pv.primary.spec.Kind != Output {
				act = activationModule(pv.primary.spec.Activation)
			}
			steps = append(steps, func(values [][]*Tensor) []*Tensor {
				in := values[pv.inputs[0]]
				out := make([]*Tensor, len(in))
				for t, x := range in {
					y := fc.Forward(x)
					if act != nil {
						y = act.Forward(y)
					}
					out[t] = y
				}
				return out
			})
		case RecurrentVertex:
			wIn := newLinear(pv.wIn)
			wRec := newLinear(pv.wRec)
			act := activationModule(pv.Activation)
			steps = append(steps, func(values [][]*Tensor) []*Tensor {
				in := values[pv.inputs[0]]
				out := make([]*Tensor, len(in))
				var h *Tensor
				for t, x := range in {
					z := wIn.Forward(x)
					if h != nil {
						z = z.Add(wRec.Forward(h))
					}
					if act != nil {
						z = act.Forward(z)
					}
					h = z
					out[t] = h
				}
				return out
			})
		case AddVertex:
			steps = append(steps, func(values [][]*Tensor) []*Tensor {
				first := values[pv.inputs[0]]
				out := make([]*Tensor, len(first))
				for t := range first {
					sum := first[t]
					for _, i := range pv.inputs[1:] {
						sum = sum.Add(values[i][t])
					}
					out[t] = sum
				}
				return out
			})
		case LastStepVertex:
			steps = append(steps, func(values [][]*Tensor) []*Tensor {
				in := values[pv.inputs[0]]
				return in[len(in)-1:]
			})
		}
	}

	output := 0
	for i, pv := range g.vertices {
		if pv.Name == g.bp.Output {
			output = i + 1
		}
	}
	forward := func(inputs []*Tensor) *Tensor {
		values := make([][]*Tensor, 1, len(steps)+1)
		values[0] = inputs
		for _, s := range steps {
			values = append(values, s(values))
		}
		return values[output][0]
	}
	return forward, params, nil
}

// stage splits each example into Height frames of Channels*Width values.
func (g *graph) stage(features []float32, batch int, b *Backend) ([]*Tensor, error) {
	frames := g.shape.Height
	width := g.shape.Channels * g.shape.Width
	per := frames * width

	out := make([]*Tensor, frames)
	for f := 0; f < frames; f++ {
		data := make([]float32, batch*width)
		for e := 0; e < batch; e++ {
			copy(data[e*width:(e+1)*width], features[e*per+f*width:e*per+(f+1)*width])
		}
		t, err := tensor.FromSlice(data, tensor.Shape{batch, width}, b)
		if err != nil {
			return nil, err
		}
		out[f] = t
	}
	return out, nil
}

func (g *graph) numParams() int {
	total := 0
	for _, pv := range g.vertices {
		switch pv.Kind {
		case LayerVertex:
			total += pv.primary.paramCount()
		case RecurrentVertex:
			total += pv.wIn.paramCount() + pv.wRec.paramCount()
		}
	}
	return total
}

func (g *graph) summary() string {
	rows := make([]summaryRow, 0, len(g.vertices))
	for _, pv := range g.vertices {
		row := summaryRow{name: pv.Name, in: pv.in.String(), out: pv.out.String()}
		switch pv.Kind {
		case LayerVertex:
			row.kind = layerLabel(pv.primary.spec)
			row.params = pv.primary.paramCount()
		case RecurrentVertex:
			row.kind = fmt.Sprintf("Recurrent %d %s", pv.Units, pv.Activation)
			row.params = pv.wIn.paramCount() + pv.wRec.paramCount()
		default:
			row.kind = pv.Kind.String()
		}
		rows = append(rows, row)
	}
	input := seq{steps: g.shape.Height, features: g.shape.Channels * g.shape.Width}
	return renderSummary(g.bp.Name, "input "+input.String(), rows)
}
