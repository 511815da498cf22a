package transcribe_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/voxcart/voxcart/pkg/orchestrator"
	"github.com/voxcart/voxcart/pkg/store"
	"github.com/voxcart/voxcart/pkg/transcribe"
)

func testAudio(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 4096)
}

func newResolver(providers ...transcribe.Transcriber) *transcribe.Resolver {
	orch := orchestrator.New(store.NewMemory(), orchestrator.DefaultConfig())
	return transcribe.NewResolver(orch, transcribe.DefaultResolverConfig(), providers...)
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name  string
		audio []byte
		want  error
	}{
		{"empty audio", nil, transcribe.ErrEmptyAudio},
		{"below minimum", make([]byte, 16), transcribe.ErrAudioTooShort},
		{"oversized", make([]byte, transcribe.MaxAudioBytes+1), transcribe.ErrAudioTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &transcribe.Request{Audio: tt.audio}
			if err := req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("valid audio passes", func(t *testing.T) {
		req := &transcribe.Request{Audio: testAudio(1)}
		if err := req.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestResolverPriorityOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("primary success skips secondary", func(t *testing.T) {
		primary := transcribe.NewMock("hello world")
		primary.Name = "primary"
		secondary := transcribe.NewMock("unused")

		r := newResolver(primary, secondary)
		result, err := r.Resolve(ctx, "u1", &transcribe.Request{Audio: testAudio(1)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "hello world" || result.Source != "primary" {
			t.Errorf("unexpected result %+v", result)
		}
		if secondary.CallCount() != 0 {
			t.Error("secondary should not be called")
		}
	})

	t.Run("secondary result carries its own source tag", func(t *testing.T) {
		primary := transcribe.WithTranscribeError(errors.New("timeout"))
		secondary := transcribe.NewMock("find blue dresses")
		secondary.Name = "gemini"

		r := newResolver(primary, secondary)
		result, err := r.Resolve(ctx, "u1", &transcribe.Request{Audio: testAudio(2)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "find blue dresses" {
			t.Errorf("unexpected text %q", result.Text)
		}
		if result.Source != "gemini" {
			t.Errorf("expected secondary source tag, got %q", result.Source)
		}
	})

	t.Run("all providers failing returns sentinel not error", func(t *testing.T) {
		boom := errors.New("down")
		r := newResolver(transcribe.WithTranscribeError(boom), transcribe.WithTranscribeError(boom))

		result, err := r.Resolve(ctx, "u1", &transcribe.Request{Audio: testAudio(3)})
		if err != nil {
			t.Fatalf("expected degraded result, got error %v", err)
		}
		if !result.Unavailable() {
			t.Errorf("expected fallback sentinel, got %+v", result)
		}
		if result.Text != "" {
			t.Errorf("sentinel must carry no text, got %q", result.Text)
		}
	})

	t.Run("empty provider list degrades to sentinel", func(t *testing.T) {
		r := newResolver()

		result, err := r.Resolve(ctx, "u1", &transcribe.Request{Audio: testAudio(4)})
		if err != nil {
			t.Fatalf("expected degraded result, got error %v", err)
		}
		if result == nil {
			t.Fatal("expected a sentinel result, got nil")
		}
		if !result.Unavailable() {
			t.Errorf("expected fallback sentinel, got %+v", result)
		}
	})

	t.Run("validation rejects before any provider call", func(t *testing.T) {
		primary := transcribe.NewMock("x")
		r := newResolver(primary)

		_, err := r.Resolve(ctx, "u1", &transcribe.Request{Audio: nil})
		if !errors.Is(err, transcribe.ErrEmptyAudio) {
			t.Fatalf("expected ErrEmptyAudio, got %v", err)
		}
		if primary.CallCount() != 0 {
			t.Error("provider must not be called for invalid input")
		}
	})
}

func TestResolverCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("identical audio hits the transcript cache", func(t *testing.T) {
		primary := transcribe.NewMock("cached utterance")
		r := newResolver(primary)

		req := &transcribe.Request{Audio: testAudio(7)}
		first, err := r.Resolve(ctx, "u1", req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := r.Resolve(ctx, "u2", req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if primary.CallCount() != 1 {
			t.Errorf("expected 1 provider call, got %d", primary.CallCount())
		}
		if first.Text != second.Text {
			t.Errorf("cache returned different text: %q vs %q", first.Text, second.Text)
		}
	})

	t.Run("sentinel results are not cached", func(t *testing.T) {
		failing := transcribe.WithTranscribeError(errors.New("down"))
		orch := orchestrator.New(store.NewMemory(), orchestrator.DefaultConfig())
		r := transcribe.NewResolver(orch, transcribe.DefaultResolverConfig(), failing)

		req := &transcribe.Request{Audio: testAudio(9)}
		result, _ := r.Resolve(ctx, "u1", req)
		if !result.Unavailable() {
			t.Fatalf("expected sentinel, got %+v", result)
		}

		// A recovered provider list must get a fresh shot at the same audio.
		r2 := transcribe.NewResolver(orch, transcribe.DefaultResolverConfig(), transcribe.NewMock("recovered"))
		result, err := r2.Resolve(ctx, "u1", req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "recovered" {
			t.Errorf("expected fresh transcription after recovery, got %+v", result)
		}
	})
}
