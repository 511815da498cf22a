// Package history maintains the per-user conversation transcript and
// keeps turn context bounded regardless of conversation length.
//
// The transcript is an append-only log in the durable profile store. The
// Optimizer compresses long transcripts into a running summary entry plus
// a bounded recent window, using the language-model provider with a
// deterministic truncation fallback.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/store"
)

// Role identifies the speaker of a transcript entry.
type Role string

const (
	// RoleUser is a user utterance.
	RoleUser Role = "user"

	// RoleAssistant is an assistant reply.
	RoleAssistant Role = "assistant"

	// RoleSummary is a synthetic entry that condenses older dialogue.
	// Summary entries are never re-fed as raw dialogue to a future
	// summarization pass.
	RoleSummary Role = "summary"
)

// Entry is one transcript record.
type Entry struct {
	// Role of the speaker.
	Role Role `json:"role"`

	// Text of the utterance or summary.
	Text string `json:"text"`

	// Timestamp of the entry, UTC.
	Timestamp time.Time `json:"timestamp"`

	// Intent detected for user entries, optional.
	Intent intent.Intent `json:"intent,omitempty"`

	// Entities detected for user entries, optional.
	Entities intent.Entities `json:"entities,omitempty"`

	// Source tags the provider that produced the text, optional.
	Source string `json:"source,omitempty"`
}

// IsSummary reports whether this is a synthetic summary entry.
func (e *Entry) IsSummary() bool {
	return e.Role == RoleSummary
}

const keyPrefix = "transcript:"

// Log is the append-only transcript over the durable profile store.
type Log struct {
	durable store.Durable
}

// NewLog creates a transcript log.
func NewLog(durable store.Durable) *Log {
	return &Log{durable: durable}
}

// Append writes one entry to the end of a user's transcript.
func (l *Log) Append(ctx context.Context, userID string, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history: encode entry: %w", err)
	}
	if err := l.durable.Append(ctx, keyPrefix+userID, raw); err != nil {
		return fmt.Errorf("history: append entry: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent entries, oldest first.
// limit <= 0 returns the full transcript.
func (l *Log) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := l.durable.List(ctx, keyPrefix+userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: read transcript: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, raw := range rows {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			// Skip undecodable rows rather than losing the transcript.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
