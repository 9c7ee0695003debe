package model

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnknownVariant  = errors.New("unknown model variant")
	ErrInvalidShape    = errors.New("invalid shape")
	ErrUnsupportedTopo = errors.New("architecture cannot consume input shape")
	ErrNotInitialized  = errors.New("model not initialized")
	ErrStaleState      = errors.New("backward requested without a matching forward pass")
	ErrNoInput         = errors.New("input or labels not staged")
)

// ConfigurationError reports a problem detected before any model runs.
// A configuration error aborts the whole benchmark.
type ConfigurationError struct {
	Field string // Offending field (e.g. "variant", "height")
	Value any    // Offending value
	Err   error  // Underlying cause
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s=%v: %v", e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// ComputationError wraps a failure raised inside a model operation.
//
// The engine signals shape mismatches and numeric failures by panicking;
// model operations recover those panics into a ComputationError.
type ComputationError struct {
	Model string // Model name
	Phase string // "fit", "forward", "backward", ...
	Err   error
}

// Error implements the error interface.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Model, e.Phase, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ComputationError) Unwrap() error {
	return e.Err
}

// recoverInto converts a panic into a ComputationError stored in *errp.
// Use as: defer recoverInto(name, phase, &err).
func recoverInto(model, phase string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	*errp = &ComputationError{Model: model, Phase: phase, Err: cause}
}
