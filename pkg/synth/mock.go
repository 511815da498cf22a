package synth

import (
	"context"
	"sync"
)

// Mock implements Synthesizer for testing.
type Mock struct {
	// Name is reported by Source. Defaults to "mock".
	Name string

	// SynthesizeFunc is called when Synthesize is invoked.
	SynthesizeFunc func(ctx context.Context, req *Request) (*Result, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock that returns the given audio bytes.
func NewMock(audio []byte) *Mock {
	m := &Mock{Name: "mock"}
	m.SynthesizeFunc = func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{Audio: audio, Source: m.Name, Encoding: EncodingPCM24}, nil
	}
	return m
}

// WithSynthesizeError returns a mock whose Synthesize always fails.
func WithSynthesizeError(err error) *Mock {
	return &Mock{
		Name: "mock-err",
		SynthesizeFunc: func(ctx context.Context, req *Request) (*Result, error) {
			return nil, err
		},
	}
}

// Source identifies this provider.
func (m *Mock) Source() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return &Result{Source: m.Source()}, nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// CallCount returns the number of Synthesize invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Verify Mock implements Synthesizer at compile time.
var _ Synthesizer = (*Mock)(nil)
