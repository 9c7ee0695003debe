package dataset

import (
	"errors"
	"fmt"
)

// TokenConfig lays out token windows as image-shaped examples.
//
// Each example is Frames consecutive tokens. A token becomes a one-hot frame
// of FrameWidth features at index token % FrameWidth, so an example holds
// Frames*FrameWidth features, which matches a [channels, height, width] input
// with height = Frames and channels*width = FrameWidth. The label is the token
// that follows the window, folded into NumLabels classes.
type TokenConfig struct {
	Name       string
	Frames     int
	FrameWidth int
	NumLabels  int
	BatchSize  int
}

// Tokens yields next-token prediction batches from an encoded corpus.
type Tokens struct {
	cfg     TokenConfig
	tokens  []int32
	batches int
	pos     int
}

// NewTokens encodes text with enc and prepares the batches.
// A trailing partial batch is dropped.
func NewTokens(text string, enc Encoder, cfg TokenConfig) (*Tokens, error) {
	if enc == nil {
		return nil, errors.New("dataset: nil encoder")
	}
	if cfg.Frames <= 0 || cfg.FrameWidth <= 0 || cfg.NumLabels <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("dataset: invalid token layout %+v", cfg)
	}
	if cfg.Name == "" {
		cfg.Name = "tokens"
	}
	tokens, err := enc.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("dataset: encode corpus: %w", err)
	}
	examples := 0
	if len(tokens) > 0 {
		examples = (len(tokens) - 1) / cfg.Frames
	}
	return &Tokens{
		cfg:     cfg,
		tokens:  tokens,
		batches: examples / cfg.BatchSize,
	}, nil
}

// Name returns the configured dataset name.
func (t *Tokens) Name() string { return t.cfg.Name }

// HasNext reports whether batches remain.
func (t *Tokens) HasNext() bool { return t.pos < t.batches }

// NumBatches returns the number of batches per pass.
func (t *Tokens) NumBatches() int { return t.batches }

// Next returns the next batch.
func (t *Tokens) Next() (Batch, error) {
	if !t.HasNext() {
		return Batch{}, ErrExhausted
	}
	perExample := t.cfg.Frames * t.cfg.FrameWidth
	b := Batch{
		Features: make([]float32, t.cfg.BatchSize*perExample),
		Labels:   make([]int32, t.cfg.BatchSize),
		Size:     t.cfg.BatchSize,
	}
	for i := 0; i < t.cfg.BatchSize; i++ {
		start := (t.pos*t.cfg.BatchSize + i) * t.cfg.Frames
		window := t.tokens[start : start+t.cfg.Frames]
		example := b.Features[i*perExample : (i+1)*perExample]
		for f, tok := range window {
			example[f*t.cfg.FrameWidth+bucket(tok, t.cfg.FrameWidth)] = 1
		}
		b.Labels[i] = int32(bucket(t.tokens[start+t.cfg.Frames], t.cfg.NumLabels)) //nolint:gosec // G115: bucket < NumLabels.
	}
	t.pos++
	return b, nil
}

// Reset rewinds to the first batch.
func (t *Tokens) Reset() error {
	t.pos = 0
	return nil
}

func bucket(tok int32, n int) int {
	v := int(tok) % n
	if v < 0 {
		v += n
	}
	return v
}
