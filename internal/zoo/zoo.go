// Package zoo maps model variants to architectures and builds initialized
// models for a dataset shape.
package zoo

import (
	"errors"
	"fmt"

	"github.com/born-ml/born-bench/internal/model"
)

// ErrNilModel is wrapped by the ConfigurationError returned when a
// selection entry has no model.
var ErrNilModel = errors.New("nil model")

// Builder constructs an uninitialized model for shape. Construction must
// validate the architecture against shape without allocating parameters.
type Builder func(shape model.Shape, opts model.Options) (model.TrainableModel, error)

type entry struct {
	build       Builder
	description string
}

// Catalog maps concrete variants to builders.
type Catalog struct {
	entries map[model.Variant]entry
}

// New returns the catalog of built-in architectures.
func New() *Catalog {
	stack := func(bp func() model.Blueprint) Builder {
		return func(shape model.Shape, opts model.Options) (model.TrainableModel, error) {
			return model.NewStack(bp(), shape, opts)
		}
	}
	return &Catalog{entries: map[model.Variant]entry{
		model.GenericCNN: {stack(GenericCNN), "conv5(20) pool conv5(50) pool dense500"},
		model.AlexNet:    {stack(AlexNet), "conv11/4(64) pool conv5/2(192) pool conv3(384,256,256) pool dense4096x2"},
		model.LeNet:      {stack(LeNet), "conv5(6) pool conv5(16) pool dense120 dense84"},
		model.VGG16:      {stack(VGG16), "13x conv3 in five blocks, dense4096x2"},
		model.RNN: {func(shape model.Shape, opts model.Options) (model.TrainableModel, error) {
			return model.NewGraph(RecurrentNet(), shape, opts)
		}, "Elman recurrent(256, tanh) over image rows, last step"},
	}}
}

// Variants returns the concrete variants in declaration order.
func (c *Catalog) Variants() []model.Variant {
	return model.ConcreteVariants()
}

// Describe returns a one-line description of variant.
func (c *Catalog) Describe(v model.Variant) string {
	if e, ok := c.entries[v]; ok {
		return e.description
	}
	return ""
}

// Select returns one initialized model per variant selected by v; All
// expands to every concrete variant. Every architecture is checked against
// shape before any model is initialized, so a ConfigurationError never
// leaves a partial selection.
func (c *Catalog) Select(v model.Variant, shape model.Shape, opts model.Options) (*Selection, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	var variants []model.Variant
	switch {
	case v == model.All:
		variants = c.Variants()
	case v.Concrete():
		variants = []model.Variant{v}
	default:
		return nil, &model.ConfigurationError{Field: "variant", Value: v, Err: model.ErrUnknownVariant}
	}

	entries := make([]Entry, 0, len(variants))
	for _, variant := range variants {
		e, ok := c.entries[variant]
		if !ok {
			return nil, &model.ConfigurationError{Field: "variant", Value: variant, Err: model.ErrUnknownVariant}
		}
		m, err := e.build(shape, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", variant, err)
		}
		entries = append(entries, Entry{Variant: variant, Model: m})
	}

	for _, e := range entries {
		if err := e.Model.Init(); err != nil {
			return nil, fmt.Errorf("%s: init: %w", e.Variant, err)
		}
	}
	return NewSelection(entries...)
}

// Entry pairs a variant with its model.
type Entry struct {
	Variant model.Variant
	Model   model.TrainableModel
}

// Selection is an ordered variant to model mapping.
type Selection struct {
	entries []Entry
}

// NewSelection builds a selection in the given order.
// A nil model is a ConfigurationError.
func NewSelection(entries ...Entry) (*Selection, error) {
	for _, e := range entries {
		if e.Model == nil {
			return nil, &model.ConfigurationError{Field: "model", Value: e.Variant, Err: ErrNilModel}
		}
	}
	return &Selection{entries: entries}, nil
}

// Len returns the number of models.
func (s *Selection) Len() int { return len(s.entries) }

// Entries returns the entries in selection order.
func (s *Selection) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Variants returns the selected variants in order.
func (s *Selection) Variants() []model.Variant {
	out := make([]model.Variant, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Variant
	}
	return out
}

// Model returns the model for v.
func (s *Selection) Model(v model.Variant) (model.TrainableModel, bool) {
	for _, e := range s.entries {
		if e.Variant == v {
			return e.Model, true
		}
	}
	return nil, false
}
