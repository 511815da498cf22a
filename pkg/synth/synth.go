// Package synth converts response text to audio.
//
// Providers implement the Synthesizer interface. The Resolver tries a
// cache, then a local offline synthesizer, then the remote provider's
// HTTP API, then its streaming WebSocket surface as a last resort, and
// memoizes successful audio by (text, voice, parameters). Synthesis
// failure is never fatal to a conversation turn; callers degrade to a
// text-only response.
package synth

import (
	"context"
	"strconv"
)

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize converts text to raw audio bytes.
	Synthesize(ctx context.Context, req *Request) (*Result, error)

	// Source identifies the stage in result tags and logs.
	Source() string

	// Health checks provider availability.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request carries the text and voice parameters for one synthesis.
type Request struct {
	// Text to speak. Must be non-empty.
	Text string

	// Voice overrides the provider's configured voice, optional.
	Voice string

	// Speed is the playback rate multiplier, 0 means provider default.
	Speed float64
}

// Validate rejects unusable input before any provider call.
func (r *Request) Validate() error {
	if r.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// cacheFields returns the request fields that identify identical
// synthesis output, used to build the cache key.
func (r *Request) cacheFields() []string {
	return []string{r.Text, r.Voice, strconv.FormatFloat(r.Speed, 'f', -1, 64)}
}

// Result is synthesized audio plus its provenance.
type Result struct {
	// Audio is the raw audio buffer.
	Audio []byte `json:"audio"`

	// Source tags which stage produced the audio.
	Source string `json:"source"`

	// Encoding of the audio buffer.
	Encoding Encoding `json:"encoding,omitempty"`

	// LatencyMs is the synthesis round-trip time in milliseconds.
	LatencyMs int64 `json:"latency_ms,omitempty"`
}
