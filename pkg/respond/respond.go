// Package respond produces the next assistant utterance for a turn.
//
// The generator asks a generative language provider for a conversational
// reply given the utterance, intent, history, and preferences, and falls
// back to deterministic per-intent templates when the provider is
// unavailable. Generation failure is never fatal to a turn.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/llm"
	"github.com/voxcart/voxcart/pkg/orchestrator"
	"github.com/voxcart/voxcart/pkg/prefs"
)

// ServiceName is the circuit-breaker service tag for generation calls.
const ServiceName = "generation"

const sourceLLM = "llm"

const persona = `You are a friendly, concise voice shopping assistant.
Reply in one to three short sentences suitable for being read aloud.
Never use markdown, lists, or emoji. Stay on the topic of shopping.`

// Input carries everything the generator needs for one reply.
type Input struct {
	// Text is the user's utterance.
	Text string

	// Intent and Entities come from the extractor.
	Intent   intent.Intent
	Entities intent.Entities

	// History is a bounded window of prior turns, oldest first.
	History []string

	// Profile is a short free-form user profile summary.
	Profile string

	// Preferences is the current merged snapshot, may be nil.
	Preferences *prefs.Preferences

	// PreferencesSaved asks for an acknowledgement clause in the reply.
	PreferencesSaved bool
}

// Output is the generated reply.
type Output struct {
	// Text is the assistant utterance, always non-empty.
	Text string `json:"text"`

	// Source tags which path produced it.
	Source string `json:"source"`
}

// GeneratorConfig tunes the generator.
type GeneratorConfig struct {
	// MaxTokens bounds reply length.
	MaxTokens int

	// Logger for generator events.
	Logger *slog.Logger
}

// DefaultGeneratorConfig returns generator defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxTokens: 200,
		Logger:    slog.Default(),
	}
}

// Generator produces assistant replies.
type Generator struct {
	provider llm.Provider
	orch     *orchestrator.Orchestrator
	config   GeneratorConfig
	logger   *slog.Logger
}

// NewGenerator creates a generator over the given provider.
func NewGenerator(provider llm.Provider, orch *orchestrator.Orchestrator, cfg GeneratorConfig) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultGeneratorConfig().MaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		provider: provider,
		orch:     orch,
		config:   cfg,
		logger:   cfg.Logger.With("component", "respond.generator"),
	}
}

// Generate produces the next reply. Provider failures degrade to the
// template table; the returned text is always non-empty.
func (g *Generator) Generate(ctx context.Context, userID string, in *Input) (*Output, error) {
	env := orchestrator.NewEnvelope(ServiceName, userID)
	opts := orchestrator.Options{Service: ServiceName}

	out, err := orchestrator.Do(ctx, g.orch, env, opts, func(ctx context.Context) (*Output, error) {
		return g.generateLLM(ctx, in)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("generation provider failed, using template",
			"intent", in.Intent,
			"error", err,
		)
		return &Output{Text: Template(in), Source: sourceTemplate}, nil
	}
	return out, nil
}

// Health probes the underlying chat provider.
func (g *Generator) Health(ctx context.Context) error {
	return g.provider.Health(ctx)
}

// generateLLM runs the primary provider path.
func (g *Generator) generateLLM(ctx context.Context, in *Input) (*Output, error) {
	var prompt strings.Builder
	if len(in.History) > 0 {
		prompt.WriteString("Recent conversation:\n")
		for _, turn := range in.History {
			prompt.WriteString(turn)
			prompt.WriteByte('\n')
		}
		prompt.WriteByte('\n')
	}
	if in.Profile != "" {
		prompt.WriteString("User profile: " + in.Profile + "\n")
	}
	if !in.Preferences.Empty() {
		if raw, err := json.Marshal(in.Preferences); err == nil {
			prompt.WriteString("Saved preferences: " + string(raw) + "\n")
		}
	}
	fmt.Fprintf(&prompt, "Detected intent: %s\n", in.Intent)
	if len(in.Entities) > 0 {
		if raw, err := json.Marshal(in.Entities); err == nil {
			prompt.WriteString("Entities: " + string(raw) + "\n")
		}
	}
	if in.PreferencesSaved {
		prompt.WriteString("The user just stated a preference that has been saved; briefly acknowledge it.\n")
	}
	prompt.WriteString("\nUser said: " + in.Text)

	resp, err := g.provider.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(persona),
			llm.NewUserMessage(prompt.String()),
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, llm.ErrEmptyResponse
	}
	return &Output{Text: text, Source: sourceLLM}, nil
}
