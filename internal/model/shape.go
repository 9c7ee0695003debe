package model

import "fmt"

// Shape describes the dataset every model under test consumes.
type Shape struct {
	Height    int `toml:"height"`
	Width     int `toml:"width"`
	Channels  int `toml:"channels"`
	NumLabels int `toml:"num_labels"`
	BatchSize int `toml:"batch_size"`
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"height", s.Height},
		{"width", s.Width},
		{"channels", s.Channels},
		{"num_labels", s.NumLabels},
		{"batch_size", s.BatchSize},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return &ConfigurationError{Field: f.name, Value: f.value, Err: ErrInvalidShape}
		}
	}
	return nil
}

// FeaturesPerExample returns channels*height*width.
func (s Shape) FeaturesPerExample() int {
	return s.Channels * s.Height * s.Width
}

// String renders the shape as BxCxHxW.
func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", s.BatchSize, s.Channels, s.Height, s.Width)
}

// Describe renders the dataset descriptor used in reports,
// e.g. "synthetic 2x3x224x224".
func (s Shape) Describe(dataset string) string {
	return dataset + " " + s.String()
}
