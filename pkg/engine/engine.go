// Package engine coordinates a full conversational turn: audio in,
// transcription, intent extraction, preference detection, response
// generation, speech synthesis, and state/transcript updates.
//
// The engine degrades rather than fails: a turn that could not produce
// audio still returns text, a turn that could not determine intent still
// returns a generic helpful response. Only a turn with no usable text
// and no prior context is reported as an error.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxcart/voxcart/pkg/history"
	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/orchestrator"
	"github.com/voxcart/voxcart/pkg/prefs"
	"github.com/voxcart/voxcart/pkg/respond"
	"github.com/voxcart/voxcart/pkg/store"
	"github.com/voxcart/voxcart/pkg/synth"
	"github.com/voxcart/voxcart/pkg/transcribe"
)

// Engine errors.
var (
	// ErrNoUsableInput is returned when transcription produced no text
	// and no prior conversation context exists to fall back on.
	ErrNoUsableInput = errors.New("engine: no usable input")

	// ErrUserRequired is returned when a turn arrives for an unknown
	// conversation without a user id to start a new one.
	ErrUserRequired = errors.New("engine: user id required")
)

// Config tunes the engine. Retry and TTL values are deployment
// configuration, not contracts.
type Config struct {
	// StateTTL is the conversation idle TTL in the session cache.
	StateTTL time.Duration

	// TurnRetries bounds whole-turn retries on transcription failure.
	TurnRetries int

	// TurnRetryBase is the initial whole-turn backoff delay.
	TurnRetryBase time.Duration

	// SynthRetries bounds synthesis retries per turn.
	SynthRetries int

	// SynthRetryBase is the initial synthesis backoff delay.
	SynthRetryBase time.Duration

	// DefaultVoice for conversations without a voice preference.
	DefaultVoice string

	// Logger for engine events.
	Logger *slog.Logger
}

// DefaultConfig returns engine defaults.
func DefaultConfig() Config {
	return Config{
		StateTTL:       30 * time.Minute,
		TurnRetries:    2,
		TurnRetryBase:  200 * time.Millisecond,
		SynthRetries:   2,
		SynthRetryBase: 250 * time.Millisecond,
		DefaultVoice:   "nova",
		Logger:         slog.Default(),
	}
}

// Engine is the turn-level coordinator.
type Engine struct {
	states      *stateStore
	transcriber *transcribe.Resolver
	extractor   *intent.Extractor
	generator   *respond.Generator
	synthesizer *synth.Resolver
	optimizer   *history.Optimizer
	log         *history.Log
	prefs       *prefs.Manager
	orch        *orchestrator.Orchestrator
	events      EventSink
	config      Config
	logger      *slog.Logger
}

// Deps collects the engine's collaborators.
type Deps struct {
	Cache        store.Cache
	Transcriber  *transcribe.Resolver
	Extractor    *intent.Extractor
	Generator    *respond.Generator
	Synthesizer  *synth.Resolver
	Optimizer    *history.Optimizer
	Log          *history.Log
	Prefs        *prefs.Manager
	Orchestrator *orchestrator.Orchestrator
	Events       EventSink
}

// New creates an engine.
func New(deps Deps, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.StateTTL == 0 {
		cfg.StateTTL = def.StateTTL
	}
	if cfg.TurnRetryBase == 0 {
		cfg.TurnRetryBase = def.TurnRetryBase
	}
	if cfg.SynthRetryBase == 0 {
		cfg.SynthRetryBase = def.SynthRetryBase
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = def.DefaultVoice
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		states:      &stateStore{cache: deps.Cache, ttl: cfg.StateTTL},
		transcriber: deps.Transcriber,
		extractor:   deps.Extractor,
		generator:   deps.Generator,
		synthesizer: deps.Synthesizer,
		optimizer:   deps.Optimizer,
		log:         deps.Log,
		prefs:       deps.Prefs,
		orch:        deps.Orchestrator,
		events:      deps.Events,
		config:      cfg,
		logger:      cfg.Logger.With("component", "engine"),
	}
}

// StartConversation creates fresh conversation state for a user. The
// user's saved voice preference, if any, becomes the active voice.
func (e *Engine) StartConversation(ctx context.Context, userID string) (*ConversationState, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	voice := e.config.DefaultVoice
	snapshot, err := e.prefs.Get(ctx, userID)
	if err != nil {
		e.logger.Warn("preference lookup failed, using default voice",
			"user_id", userID,
			"error", err,
		)
		snapshot = nil
	}
	if snapshot != nil && snapshot.Voice != "" {
		voice = snapshot.Voice
	}

	state := newConversationState(userID, voice)
	state.Preferences = snapshot
	if err := e.states.save(ctx, state); err != nil {
		return nil, err
	}

	e.logger.Info("conversation started",
		"conversation_id", state.ID,
		"user_id", userID,
		"voice", voice,
	)
	e.publish(Event{
		Type:           EventConversationStarted,
		ConversationID: state.ID,
		UserID:         userID,
	})
	return state, nil
}

// EndConversation removes conversation state. Ending an expired or
// unknown conversation is a no-op.
func (e *Engine) EndConversation(ctx context.Context, conversationID string) error {
	state, err := e.states.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := e.states.drop(ctx, conversationID); err != nil {
		return err
	}

	userID := ""
	if state != nil {
		userID = state.UserID
	}
	e.logger.Info("conversation ended", "conversation_id", conversationID)
	e.publish(Event{
		Type:           EventConversationEnded,
		ConversationID: conversationID,
		UserID:         userID,
	})
	return nil
}

// History returns up to limit most recent transcript entries for a user,
// oldest first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]history.Entry, error) {
	return e.log.Recent(ctx, userID, limit)
}

// ProviderHealth probes every configured provider and reports status
// keyed by stage and source name.
func (e *Engine) ProviderHealth(ctx context.Context) map[string]string {
	health := make(map[string]string)
	for source, status := range e.transcriber.Health(ctx) {
		health["stt:"+source] = status
	}
	for source, status := range e.synthesizer.Health(ctx) {
		health["tts:"+source] = status
	}
	if err := e.generator.Health(ctx); err != nil {
		health["llm"] = err.Error()
	} else {
		health["llm"] = "ok"
	}
	return health
}

// BreakerStates exposes circuit-breaker state for the health endpoint.
func (e *Engine) BreakerStates() map[string]string {
	return e.orch.BreakerStates()
}

// InFlight exposes the in-flight request count for the health endpoint.
func (e *Engine) InFlight() int {
	return e.orch.InFlight()
}
