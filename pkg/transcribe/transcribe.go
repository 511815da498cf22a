// Package transcribe converts spoken audio into text.
//
// Providers implement the Transcriber interface and are tried in a fixed
// priority order by the Resolver, which routes every call through the
// request orchestrator for caching, deduplication, and circuit breaking.
// When every provider fails the Resolver returns a degraded sentinel
// result instead of an error, so a turn can continue without a transcript.
package transcribe

import (
	"context"
	"errors"
)

// Audio size bounds checked before any provider call.
const (
	// MinAudioBytes rejects buffers too small to hold usable speech.
	MinAudioBytes = 128

	// MaxAudioBytes caps uploads at 25 MB, the common provider limit.
	MaxAudioBytes = 25 << 20
)

// Validation errors, surfaced to the caller and never retried.
var (
	ErrEmptyAudio    = errors.New("transcribe: empty audio buffer")
	ErrAudioTooShort = errors.New("transcribe: audio below minimum size")
	ErrAudioTooLarge = errors.New("transcribe: audio exceeds maximum size")
)

// ErrNoProviders is reported when the resolver has an empty provider
// list; the Resolver absorbs it into the sentinel result like any other
// provider failure.
var ErrNoProviders = errors.New("transcribe: no providers configured")

// SourceFallback tags the sentinel result returned when all providers fail.
const SourceFallback = "fallback"

// Transcriber converts an audio buffer into text.
type Transcriber interface {
	// Transcribe converts audio into text.
	Transcribe(ctx context.Context, req *Request) (*Result, error)

	// Source identifies the provider in result tags and logs.
	Source() string

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request carries an audio buffer and recognition hints.
type Request struct {
	// Audio is the raw audio buffer (wav, mp3, webm, ogg).
	Audio []byte

	// Format is the audio container format, used for upload filenames.
	// Defaults to "wav".
	Format string

	// Language is an optional ISO-639-1 language hint.
	Language string

	// Prompt is optional recent conversation text used to bias recognition.
	Prompt string
}

// Validate rejects malformed audio before any provider call.
func (r *Request) Validate() error {
	switch {
	case len(r.Audio) == 0:
		return ErrEmptyAudio
	case len(r.Audio) < MinAudioBytes:
		return ErrAudioTooShort
	case len(r.Audio) > MaxAudioBytes:
		return ErrAudioTooLarge
	}
	return nil
}

// Result is the outcome of a transcription.
type Result struct {
	// Text is the recognized utterance. Empty when Source is "fallback".
	Text string `json:"text"`

	// Confidence is the provider's confidence estimate, 0 when unknown.
	Confidence float64 `json:"confidence,omitempty"`

	// Source tags which provider produced the text.
	Source string `json:"source"`

	// Language is the detected language, if reported.
	Language string `json:"language,omitempty"`

	// LatencyMs is the provider round-trip time in milliseconds.
	LatencyMs int64 `json:"latency_ms,omitempty"`
}

// Unavailable reports whether this is the degraded sentinel result.
func (r *Result) Unavailable() bool {
	return r.Source == SourceFallback
}
