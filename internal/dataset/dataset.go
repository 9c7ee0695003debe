// Package dataset provides the batch iterators consumed by the benchmark harness.
//
// An Iterator yields batches of (features, labels) until exhausted and can be
// rewound with Reset. Replaying after Reset must reproduce the same sequence
// of batches, which lets the harness train on a dataset and then measure the
// forward/backward passes over exactly the same batches.
//
// Iterators shipped with this package:
//   - Synthetic: seeded uniform image batches in [batch, channels, height, width] layout
//   - Tokens: next-token batches built from a text corpus and a tokenizer
//   - Slice: a fixed in-memory list of batches
package dataset

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned by Next when no batches remain.
var ErrExhausted = errors.New("dataset: iterator exhausted")

// Batch is one unit of work drawn from an iterator.
//
// Features are flattened row-major in [batch, channels, height, width] order.
// Labels hold one class index per example.
type Batch struct {
	Features []float32
	Labels   []int32
	Size     int
}

// Validate checks that features and labels agree with the batch size.
func (b Batch) Validate(featuresPerExample int) error {
	if b.Size <= 0 {
		return fmt.Errorf("dataset: batch size must be > 0 (got %d)", b.Size)
	}
	if len(b.Labels) != b.Size {
		return fmt.Errorf("dataset: %d labels for batch of %d", len(b.Labels), b.Size)
	}
	if len(b.Features) != b.Size*featuresPerExample {
		return fmt.Errorf("dataset: %d features for batch of %d x %d", len(b.Features), b.Size, featuresPerExample)
	}
	return nil
}

// Iterator is the contract between the harness and a dataset.
type Iterator interface {
	// Name identifies the dataset in reports (e.g. "synthetic", "tokens").
	Name() string
	// HasNext reports whether another batch is available.
	HasNext() bool
	// Next returns the next batch or ErrExhausted.
	Next() (Batch, error)
	// Reset rewinds the iterator to its first batch.
	Reset() error
}

// Count drains it and returns the number of batches it produced.
// The iterator is left exhausted.
func Count(it Iterator) (int, error) {
	n := 0
	for it.HasNext() {
		if _, err := it.Next(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Slice iterates over a fixed list of batches.
type Slice struct {
	name    string
	batches []Batch
	pos     int
}

// NewSlice creates an iterator over batches.
func NewSlice(name string, batches ...Batch) *Slice {
	return &Slice{name: name, batches: batches}
}

// Name returns the dataset name.
func (s *Slice) Name() string { return s.name }

// HasNext reports whether batches remain.
func (s *Slice) HasNext() bool { return s.pos < len(s.batches) }

// Next returns the next batch.
func (s *Slice) Next() (Batch, error) {
	if !s.HasNext() {
		return Batch{}, ErrExhausted
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

// Reset rewinds to the first batch.
func (s *Slice) Reset() error {
	s.pos = 0
	return nil
}

// Len returns the total number of batches.
func (s *Slice) Len() int { return len(s.batches) }
