package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

// SyntheticConfig describes the generated image batches.
type SyntheticConfig struct {
	Height     int
	Width      int
	Channels   int
	NumLabels  int
	BatchSize  int
	NumBatches int
	Seed       int64
}

// Synthetic generates seeded uniform image batches.
//
// Every Reset re-seeds the generator, so each pass yields the same batches.
type Synthetic struct {
	cfg  SyntheticConfig
	rng  *rand.Rand
	done int
}

// NewSynthetic creates a synthetic iterator.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Height <= 0 || cfg.Width <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("dataset: invalid image shape %dx%dx%d", cfg.Channels, cfg.Height, cfg.Width)
	}
	if cfg.NumLabels <= 0 {
		return nil, errors.New("dataset: num labels must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("dataset: batch size must be > 0")
	}
	if cfg.NumBatches < 0 {
		return nil, errors.New("dataset: num batches must be >= 0")
	}
	s := &Synthetic{cfg: cfg}
	_ = s.Reset()
	return s, nil
}

// Name returns "synthetic".
func (s *Synthetic) Name() string { return "synthetic" }

// HasNext reports whether batches remain in this pass.
func (s *Synthetic) HasNext() bool { return s.done < s.cfg.NumBatches }

// Next generates the next batch.
func (s *Synthetic) Next() (Batch, error) {
	if !s.HasNext() {
		return Batch{}, ErrExhausted
	}
	perExample := s.cfg.Channels * s.cfg.Height * s.cfg.Width
	b := Batch{
		Features: make([]float32, s.cfg.BatchSize*perExample),
		Labels:   make([]int32, s.cfg.BatchSize),
		Size:     s.cfg.BatchSize,
	}
	for i := range b.Features {
		b.Features[i] = s.rng.Float32()
	}
	for i := range b.Labels {
		b.Labels[i] = int32(s.rng.Intn(s.cfg.NumLabels)) //nolint:gosec // G115: label count fits in int32.
	}
	s.done++
	return b, nil
}

// Reset rewinds the iterator and re-seeds the generator.
func (s *Synthetic) Reset() error {
	s.rng = rand.New(rand.NewSource(s.cfg.Seed)) //nolint:gosec // G404: reproducible data, not crypto.
	s.done = 0
	return nil
}
