package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/prefs"
	"github.com/voxcart/voxcart/pkg/store"
)

const statePrefix = "conv:"

// ConversationState is the single source of truth for in-progress
// conversation context. It lives in the fast session cache under an idle
// TTL; expiry is conversation abandonment, not an error. Concurrent
// turns for one conversation resolve last-write-wins.
type ConversationState struct {
	// ID is unique and immutable once created.
	ID string `json:"id"`

	// UserID owns the conversation.
	UserID string `json:"user_id"`

	// CreatedAt is the conversation start time, UTC.
	CreatedAt time.Time `json:"created_at"`

	// Turns counts successfully processed turns, monotonically
	// non-decreasing.
	Turns int `json:"turns"`

	// LastUserText and LastAssistantText from the most recent turn.
	LastUserText      string `json:"last_user_text,omitempty"`
	LastAssistantText string `json:"last_assistant_text,omitempty"`

	// LastIntent and LastEntities from the most recent turn.
	LastIntent   intent.Intent   `json:"last_intent,omitempty"`
	LastEntities intent.Entities `json:"last_entities,omitempty"`

	// LastConfidence of the most recent classification.
	LastConfidence float64 `json:"last_confidence,omitempty"`

	// LastTranscriptionSource tags which provider heard the user.
	LastTranscriptionSource string `json:"last_transcription_source,omitempty"`

	// Voice is the active synthesis voice for this conversation.
	Voice string `json:"voice,omitempty"`

	// Preferences is the merged snapshot as of the last turn.
	Preferences *prefs.Preferences `json:"preferences,omitempty"`
}

// newConversationState creates state for a user's first turn.
func newConversationState(userID, voice string) *ConversationState {
	return &ConversationState{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Voice:     voice,
	}
}

// stateStore reads and writes conversation state in the session cache.
type stateStore struct {
	cache store.Cache
	ttl   time.Duration
}

// load returns the state for a conversation id, or (nil, nil) when it
// has expired or never existed.
func (s *stateStore) load(ctx context.Context, conversationID string) (*ConversationState, error) {
	raw, ok, err := s.cache.Get(ctx, statePrefix+conversationID)
	if err != nil {
		return nil, fmt.Errorf("engine: load state: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var state ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("engine: decode state: %w", err)
	}
	return &state, nil
}

// save writes the state back under the idle TTL.
func (s *stateStore) save(ctx context.Context, state *ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("engine: encode state: %w", err)
	}
	if err := s.cache.Set(ctx, statePrefix+state.ID, raw, s.ttl); err != nil {
		return fmt.Errorf("engine: save state: %w", err)
	}
	return nil
}

// drop removes the state on explicit conversation end.
func (s *stateStore) drop(ctx context.Context, conversationID string) error {
	if err := s.cache.Delete(ctx, statePrefix+conversationID); err != nil {
		return fmt.Errorf("engine: drop state: %w", err)
	}
	return nil
}
