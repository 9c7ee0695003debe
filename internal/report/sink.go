package report

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Sink receives finalized reports.
type Sink interface {
	Emit(ctx context.Context, r *Report) error
}

// WriterSink renders reports to an io.Writer.
type WriterSink struct {
	mu       sync.Mutex
	w        io.Writer
	renderer Renderer
}

// NewWriterSink returns a sink writing to w with renderer.
func NewWriterSink(w io.Writer, renderer Renderer) *WriterSink {
	return &WriterSink{w: w, renderer: renderer}
}

// Emit writes the rendered report followed by a blank line.
func (s *WriterSink) Emit(_ context.Context, r *Report) error {
	if !r.Sealed() {
		return fmt.Errorf("emit %s: report not finalized", r.Model)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, s.renderer.Render(r))
	return err
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *Report) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r *Report) error {
	return f(ctx, r)
}
