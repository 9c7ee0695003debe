package model

import (
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Blueprint is a linear layer stack. Input is BxCxHxW; dense layers get an
// implicit flatten when they follow a spatial layer.
type Blueprint struct {
	Name   string
	Layers []LayerSpec
	Init   Distribution // Default weight distribution
}

type stack struct {
	bp    Blueprint
	shape Shape
	plan  []plannedLayer
}

// NewStack validates bp against shape and returns an uninitialized model.
// Layer sizes that cannot be inferred for shape yield a ConfigurationError.
func NewStack(bp Blueprint, shape Shape, opts Options) (*Network, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	plan, err := planLayers(bp.Layers, spatial(shape.Channels, shape.Height, shape.Width), shape.NumLabels)
	if err != nil {
		return nil, err
	}
	return newNetwork(bp.Name, shape, opts, &stack{bp: bp, shape: shape, plan: plan}), nil
}

func (s *stack) build(b *Backend, rng *rand.Rand) (func([]*Tensor) *Tensor, []*nn.Parameter[*Backend], error) {
	mods := make([]nn.Module[*Backend], 0, 2*len(s.plan))
	for _, p := range s.plan {
		if p.flatten {
			mods = append(mods, &flatten{features: p.in.N})
		}
		dist := s.bp.Init
		if p.spec.Init != nil {
			dist = *p.spec.Init
		}
		fanIn, fanOut := p.fanInOut()
		switch p.spec.Kind {
		case Conv:
			conv := nn.NewConv2D(p.in.C, p.out.C, p.spec.Kernel, p.spec.Kernel, p.spec.Stride, p.spec.Padding, true, b)
			initParams(conv.Parameters(), dist, p.spec.BiasInit, fanIn, fanOut, rng)
			mods = append(mods, conv)
		case MaxPool:
			mods = append(mods, nn.NewMaxPool2D(p.spec.Kernel, p.spec.Stride, b))
		case Dense, Output:
			fc := nn.NewLinear(p.in.N, p.out.N, b)
			initParams(fc.Parameters(), dist, p.spec.BiasInit, fanIn, fanOut, rng)
			mods = append(mods, fc)
		}
		if p.spec.Kind == MaxPool || p.spec.Kind == Output {
			continue
		}
		if act := activationModule(p.spec.Activation); act != nil {
			mods = append(mods, act)
		}
	}
	seq := nn.NewSequential(mods...)
	forward := func(inputs []*Tensor) *Tensor {
		return seq.Forward(inputs[0])
	}
	return forward, seq.Parameters(), nil
}

func (s *stack) stage(features []float32, batch int, b *Backend) ([]*Tensor, error) {
	data := append([]float32(nil), features...)
	t, err := tensor.FromSlice(data, tensor.Shape{batch, s.shape.Channels, s.shape.Height, s.shape.Width}, b)
	if err != nil {
		return nil, err
	}
	return []*Tensor{t}, nil
}

func (s *stack) numParams() int {
	total := 0
	for _, p := range s.plan {
		total += p.paramCount()
	}
	return total
}

func (s *stack) summary() string {
	rows := make([]summaryRow, 0, len(s.plan))
	for _, p := range s.plan {
		rows = append(rows, summaryRow{
			name:   p.spec.Name,
			kind:   layerLabel(p.spec),
			in:     p.in.String(),
			out:    p.out.String(),
			params: p.paramCount(),
		})
	}
	return renderSummary(s.bp.Name, "input "+spatial(s.shape.Channels, s.shape.Height, s.shape.Width).String(), rows)
}
