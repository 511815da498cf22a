package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/voxcart/voxcart/pkg/history"
	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/prefs"
	"github.com/voxcart/voxcart/pkg/respond"
	"github.com/voxcart/voxcart/pkg/synth"
	"github.com/voxcart/voxcart/pkg/transcribe"
)

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	// ConversationID identifies the conversation, created on demand.
	ConversationID string `json:"conversation_id"`

	// Turn is the turn number within the conversation.
	Turn int `json:"turn"`

	// Text is the assistant reply, always non-empty on success.
	Text string `json:"text"`

	// Audio is the synthesized reply, absent when synthesis failed.
	Audio []byte `json:"audio,omitempty"`

	// AudioSource tags the synthesis stage that produced the audio.
	AudioSource string `json:"audio_source,omitempty"`

	// Transcript is what the engine heard, empty for degraded turns.
	Transcript string `json:"transcript,omitempty"`

	// TranscriptSource tags the transcription provider.
	TranscriptSource string `json:"transcript_source,omitempty"`

	// Intent and Entities from the extractor.
	Intent   intent.Intent   `json:"intent,omitempty"`
	Entities intent.Entities `json:"entities,omitempty"`

	// PreferencesSaved reports whether this turn changed the profile.
	PreferencesSaved bool `json:"preferences_saved"`

	// Timings holds per-stage latencies for this turn.
	Timings Timings `json:"timings"`
}

// Timings records stage latencies in milliseconds.
type Timings struct {
	TranscribeMs int64 `json:"transcribe_ms,omitempty"`
	IntentMs     int64 `json:"intent_ms"`
	GenerateMs   int64 `json:"generate_ms"`
	SynthesizeMs int64 `json:"synthesize_ms,omitempty"`
	TotalMs      int64 `json:"total_ms"`
}

// ProcessVoiceTurn runs a full voice turn. Transcription failure with no
// prior context is retried with backoff and then surfaced as
// ErrNoUsableInput; every other failure degrades.
func (e *Engine) ProcessVoiceTurn(ctx context.Context, conversationID, userID string, audio []byte, format string) (*TurnResult, error) {
	state, err := e.loadOrCreate(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	req := &transcribe.Request{
		Audio:  audio,
		Format: format,
		Prompt: state.LastAssistantText,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *TurnResult
	backoff := retry.WithMaxRetries(uint64(e.config.TurnRetries),
		retry.NewExponential(e.config.TurnRetryBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		start := time.Now()
		transcript, err := e.transcriber.Resolve(ctx, state.UserID, req)
		if err != nil {
			return err
		}
		transcribeMs := time.Since(start).Milliseconds()

		if transcript.Unavailable() && state.Turns == 0 {
			// No text and nothing to fall back on. Worth another shot;
			// the provider outage may be momentary.
			return retry.RetryableError(ErrNoUsableInput)
		}

		e.publish(Event{
			Type:           EventTurnTranscribed,
			ConversationID: state.ID,
			UserID:         state.UserID,
			Turn:           state.Turns + 1,
			Text:           transcript.Text,
			Source:         transcript.Source,
		})

		result, err = e.processTurn(ctx, state, transcript.Text, transcript.Source, true)
		if result != nil {
			result.Timings.TranscribeMs = transcribeMs
			result.Timings.TotalMs += transcribeMs
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessTextTurn runs a turn from typed text, skipping transcription.
// Audio is synthesized only when requested.
func (e *Engine) ProcessTextTurn(ctx context.Context, conversationID, userID, query string, audioPreferred bool) (*TurnResult, error) {
	state, err := e.loadOrCreate(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if query == "" && state.Turns == 0 {
		return nil, ErrNoUsableInput
	}
	return e.processTurn(ctx, state, query, "text", audioPreferred)
}

// loadOrCreate fetches conversation state, creating it on the first turn
// for a user. An expired conversation id silently gets fresh state.
func (e *Engine) loadOrCreate(ctx context.Context, conversationID, userID string) (*ConversationState, error) {
	if conversationID != "" {
		state, err := e.states.load(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			return state, nil
		}
	}
	if userID == "" {
		return nil, ErrUserRequired
	}
	return e.StartConversation(ctx, userID)
}

// processTurn runs the shared pipeline after transcription: history
// compaction, intent extraction, preference merge, response generation,
// optional synthesis, then state and transcript updates.
func (e *Engine) processTurn(ctx context.Context, state *ConversationState, userText, source string, wantAudio bool) (*TurnResult, error) {
	userID := state.UserID
	turnStart := time.Now()

	entries, err := e.log.Recent(ctx, userID, 0)
	if err != nil {
		e.logger.Warn("transcript read failed, continuing without history",
			"user_id", userID,
			"error", err,
		)
		entries = nil
	}
	compacted, err := e.optimizer.Optimize(ctx, userID, entries)
	if err != nil {
		compacted = entries
	}
	window := renderWindow(compacted)

	profile := profileSummary(state.Preferences)
	intentStart := time.Now()
	classified, err := e.extractor.Extract(ctx, userID, userText, window, profile)
	if err != nil {
		return nil, err
	}
	intentMs := time.Since(intentStart).Milliseconds()

	merged, saved := e.mergePreferences(ctx, userID, userText, classified.Entities)
	if merged != nil {
		state.Preferences = merged
		if merged.Voice != "" {
			state.Voice = merged.Voice
		}
	}

	generateStart := time.Now()
	reply, err := e.generator.Generate(ctx, userID, &respond.Input{
		Text:             userText,
		Intent:           classified.Intent,
		Entities:         classified.Entities,
		History:          window,
		Profile:          profile,
		Preferences:      state.Preferences,
		PreferencesSaved: saved,
	})
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		ConversationID:   state.ID,
		Turn:             state.Turns + 1,
		Text:             reply.Text,
		Transcript:       userText,
		TranscriptSource: source,
		Intent:           classified.Intent,
		Entities:         classified.Entities,
		PreferencesSaved: saved,
		Timings: Timings{
			IntentMs:   intentMs,
			GenerateMs: time.Since(generateStart).Milliseconds(),
		},
	}

	if wantAudio {
		synthStart := time.Now()
		if audio := e.synthesize(ctx, state, reply.Text); audio != nil {
			result.Audio = audio.Audio
			result.AudioSource = audio.Source
		}
		result.Timings.SynthesizeMs = time.Since(synthStart).Milliseconds()
	}

	e.recordTurn(ctx, state, classified, userText, source, reply.Text)
	result.Timings.TotalMs = time.Since(turnStart).Milliseconds()

	e.publish(Event{
		Type:           EventTurnCompleted,
		ConversationID: state.ID,
		UserID:         userID,
		Turn:           result.Turn,
		Text:           reply.Text,
		Source:         reply.Source,
	})
	return result, nil
}

// mergePreferences detects and persists preference statements. Failures
// are logged and absorbed; preference data is advisory.
func (e *Engine) mergePreferences(ctx context.Context, userID, userText string, entities intent.Entities) (*prefs.Preferences, bool) {
	delta := prefs.Detect(userText, entities)
	if delta == nil {
		return nil, false
	}
	merged, changed, err := e.prefs.Apply(ctx, userID, delta)
	if err != nil {
		e.logger.Warn("preference merge failed",
			"user_id", userID,
			"error", err,
		)
		return nil, false
	}
	return merged, changed
}

// synthesize runs the synthesis resolver with bounded exponential
// backoff on transient failures. Returns nil when audio could not be
// produced; the turn continues text-only.
func (e *Engine) synthesize(ctx context.Context, state *ConversationState, text string) *synth.Result {
	req := &synth.Request{Text: text, Voice: state.Voice}

	var result *synth.Result
	backoff := retry.WithMaxRetries(uint64(e.config.SynthRetries),
		retry.NewExponential(e.config.SynthRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		result, err = e.synthesizer.Resolve(ctx, state.UserID, req)
		if err != nil {
			if synth.IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("synthesis failed, continuing text-only",
			"conversation_id", state.ID,
			"voice", state.Voice,
			"error", err,
		)
		return nil
	}
	return result
}

// recordTurn appends transcript entries and saves updated state.
// Bookkeeping failures are logged, never surfaced; the user already has
// their reply.
func (e *Engine) recordTurn(ctx context.Context, state *ConversationState, classified *intent.Result, userText, source, replyText string) {
	if userText != "" {
		err := e.log.Append(ctx, state.UserID, history.Entry{
			Role:     history.RoleUser,
			Text:     userText,
			Intent:   classified.Intent,
			Entities: classified.Entities,
			Source:   source,
		})
		if err != nil {
			e.logger.Warn("transcript append failed", "error", err)
		}
	}
	if err := e.log.Append(ctx, state.UserID, history.Entry{
		Role: history.RoleAssistant,
		Text: replyText,
	}); err != nil {
		e.logger.Warn("transcript append failed", "error", err)
	}

	state.Turns++
	state.LastUserText = userText
	state.LastAssistantText = replyText
	state.LastIntent = classified.Intent
	state.LastEntities = classified.Entities
	state.LastConfidence = classified.Confidence
	state.LastTranscriptionSource = source

	if err := e.states.save(ctx, state); err != nil {
		e.logger.Warn("state save failed",
			"conversation_id", state.ID,
			"error", err,
		)
	}
}

// renderWindow flattens transcript entries into prompt lines.
func renderWindow(entries []history.Entry) []string {
	window := make([]string, 0, len(entries))
	for _, entry := range entries {
		window = append(window, fmt.Sprintf("%s: %s", entry.Role, entry.Text))
	}
	return window
}

// profileSummary renders preferences as a short prompt fragment.
func profileSummary(p *prefs.Preferences) string {
	if p.Empty() {
		return ""
	}
	var summary string
	if len(p.Sizes) > 0 {
		summary += "sizes:"
		for brand, size := range p.Sizes {
			summary += " " + brand + "=" + size
		}
		summary += "; "
	}
	if len(p.Colors) > 0 {
		summary += "likes colors: "
		for i, c := range p.Colors {
			if i > 0 {
				summary += ", "
			}
			summary += c
		}
	}
	return summary
}
