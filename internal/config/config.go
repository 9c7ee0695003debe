// Package config loads benchmark settings from TOML and command-line
// overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/born-ml/born-bench/internal/dataset"
	"github.com/born-ml/born-bench/internal/model"
)

// Dataset sources.
const (
	SourceSynthetic = "synthetic"
	SourceTokens    = "tokens"
)

// ErrUnknownKey is wrapped when a config file has keys Config does not define.
var ErrUnknownKey = errors.New("unknown config key")

// Config captures the knobs of one benchmark invocation.
type Config struct {
	Variant string        `toml:"variant"`
	Dataset DatasetConfig `toml:"dataset"`
	Train   TrainConfig   `toml:"train"`
	Bench   BenchConfig   `toml:"bench"`
	Store   StoreConfig   `toml:"store"`
}

// DatasetConfig describes the input every model consumes.
type DatasetConfig struct {
	Source     string `toml:"source"`
	Height     int    `toml:"height"`
	Width      int    `toml:"width"`
	Channels   int    `toml:"channels"`
	NumLabels  int    `toml:"num_labels"`
	BatchSize  int    `toml:"batch_size"`
	NumBatches int    `toml:"num_batches"` // Synthetic only
	Seed       int64  `toml:"seed"`
	TextFile   string `toml:"text_file"` // Tokens only
	Encoding   string `toml:"encoding"`  // Tokens only
}

// TrainConfig configures the fit before measurement.
type TrainConfig struct {
	Seed         int64   `toml:"seed"`
	Iterations   int     `toml:"iterations"`
	LearningRate float64 `toml:"learning_rate"`
	Momentum     float64 `toml:"momentum"`
	ListenerFreq int     `toml:"listener_freq"`
	Workers      int     `toml:"workers"`
}

// BenchConfig configures the measurement loop.
type BenchConfig struct {
	ProgressEvery int  `toml:"progress_every"`
	Styled        bool `toml:"styled"`
}

// StoreConfig configures report persistence. An empty path disables it.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Variant    string
	Source     string
	Height     int
	Width      int
	Channels   int
	NumLabels  int
	BatchSize  int
	NumBatches int
	TextFile   string
	Seed       int64
	Iterations int
	Workers    int
	StorePath  string
}

// Default returns the settings of an AlexNet run on ImageNet-sized
// synthetic data.
func Default() *Config {
	return &Config{
		Variant: model.AlexNet.String(),
		Dataset: DatasetConfig{
			Source:     SourceSynthetic,
			Height:     224,
			Width:      224,
			Channels:   3,
			NumLabels:  1000,
			BatchSize:  2,
			NumBatches: 5,
			Seed:       123,
			Encoding:   dataset.DefaultEncoding,
		},
		Train: TrainConfig{
			Seed:         123,
			Iterations:   1,
			LearningRate: 1e-2,
			Momentum:     0.9,
			ListenerFreq: 1,
			Workers:      1,
		},
		Bench: BenchConfig{ProgressEvery: 100},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &model.ConfigurationError{Field: "file " + path, Value: strings.Join(keys, ","), Err: ErrUnknownKey}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Variant != "" {
		c.Variant = o.Variant
	}
	if o.Source != "" {
		c.Dataset.Source = o.Source
	}
	if o.Height > 0 {
		c.Dataset.Height = o.Height
	}
	if o.Width > 0 {
		c.Dataset.Width = o.Width
	}
	if o.Channels > 0 {
		c.Dataset.Channels = o.Channels
	}
	if o.NumLabels > 0 {
		c.Dataset.NumLabels = o.NumLabels
	}
	if o.BatchSize > 0 {
		c.Dataset.BatchSize = o.BatchSize
	}
	if o.NumBatches > 0 {
		c.Dataset.NumBatches = o.NumBatches
	}
	if o.TextFile != "" {
		c.Dataset.TextFile = o.TextFile
	}
	if o.Seed != 0 {
		c.Train.Seed = o.Seed
		c.Dataset.Seed = o.Seed
	}
	if o.Iterations > 0 {
		c.Train.Iterations = o.Iterations
	}
	if o.Workers > 0 {
		c.Train.Workers = o.Workers
	}
	if o.StorePath != "" {
		c.Store.Path = o.StorePath
	}
}

// Validate verifies the config is runnable. Every failure is a
// model.ConfigurationError.
func (c *Config) Validate() error {
	if c == nil {
		return &model.ConfigurationError{Field: "config", Value: nil, Err: errors.New("config is nil")}
	}
	if _, err := model.ParseVariant(c.Variant); err != nil {
		return err
	}
	if err := c.Shape().Validate(); err != nil {
		return err
	}
	switch c.Dataset.Source {
	case SourceSynthetic:
		if c.Dataset.NumBatches <= 0 {
			return invalid("dataset.num_batches", c.Dataset.NumBatches, "must be > 0")
		}
	case SourceTokens:
		if c.Dataset.TextFile == "" {
			return invalid("dataset.text_file", "", "required for token datasets")
		}
	default:
		return invalid("dataset.source", c.Dataset.Source, "must be synthetic or tokens")
	}
	if c.Train.Iterations <= 0 {
		return invalid("train.iterations", c.Train.Iterations, "must be > 0")
	}
	if c.Train.Workers <= 0 {
		return invalid("train.workers", c.Train.Workers, "must be > 0")
	}
	if c.Train.LearningRate <= 0 {
		return invalid("train.learning_rate", c.Train.LearningRate, "must be > 0")
	}
	if c.Train.Momentum < 0 || c.Train.Momentum >= 1 {
		return invalid("train.momentum", c.Train.Momentum, "must be in [0, 1)")
	}
	if c.Bench.ProgressEvery < 0 {
		return invalid("bench.progress_every", c.Bench.ProgressEvery, "must be >= 0")
	}
	return nil
}

func invalid(field string, value any, reason string) error {
	return &model.ConfigurationError{Field: field, Value: value, Err: errors.New(reason)}
}

// ParsedVariant returns the variant tag. Call after Validate.
func (c *Config) ParsedVariant() model.Variant {
	v, _ := model.ParseVariant(c.Variant)
	return v
}

// Shape returns the dataset shape shared by every model.
func (c *Config) Shape() model.Shape {
	return model.Shape{
		Height:    c.Dataset.Height,
		Width:     c.Dataset.Width,
		Channels:  c.Dataset.Channels,
		NumLabels: c.Dataset.NumLabels,
		BatchSize: c.Dataset.BatchSize,
	}
}

// ModelOptions returns the model construction options.
func (c *Config) ModelOptions(logf func(string, ...any)) model.Options {
	return model.Options{
		Seed:            c.Train.Seed,
		TrainIterations: c.Train.Iterations,
		LearningRate:    float32(c.Train.LearningRate),
		Momentum:        float32(c.Train.Momentum),
		ListenerFreq:    c.Train.ListenerFreq,
		Logf:            logf,
	}
}
