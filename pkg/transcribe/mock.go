package transcribe

import (
	"context"
	"sync"
)

// Mock implements Transcriber for testing.
type Mock struct {
	// Name is reported by Source. Defaults to "mock".
	Name string

	// TranscribeFunc is called when Transcribe is invoked.
	TranscribeFunc func(ctx context.Context, req *Request) (*Result, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock that returns the given text.
func NewMock(text string) *Mock {
	m := &Mock{Name: "mock"}
	m.TranscribeFunc = func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{Text: text, Source: m.Name, Confidence: 0.95}, nil
	}
	return m
}

// WithTranscribeError returns a mock whose Transcribe always fails.
func WithTranscribeError(err error) *Mock {
	return &Mock{
		Name: "mock-err",
		TranscribeFunc: func(ctx context.Context, req *Request) (*Result, error) {
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

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
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

// CallCount returns the number of Transcribe invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Verify Mock implements Transcriber at compile time.
var _ Transcriber = (*Mock)(nil)
