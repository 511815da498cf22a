package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxcart/voxcart/pkg/llm"
	"github.com/voxcart/voxcart/pkg/orchestrator"
)

// ServiceName is the circuit-breaker service tag for understanding calls.
const ServiceName = "understanding"

const sourceLLM = "llm"

const systemPrompt = `You classify shopping utterances for a voice commerce assistant.
Respond with a single JSON object:
{"intent": "<label>", "entities": {"color": "...", "category": "...", "size": "...", "brand": "...", "occasion": "...", "max_price": "...", "min_price": "..."}, "confidence": 0.0}
Allowed intent labels: search_product, get_recommendations, ask_about_size, add_to_cart, return_product, track_order, save_preference, general_question.
Include only entities actually present in the utterance. Use lowercase entity values except brand names.`

// ExtractorConfig tunes the extractor.
type ExtractorConfig struct {
	// HistoryWindow bounds how many prior turns are sent for context.
	HistoryWindow int

	// CacheTTL bounds how long a classification is memoized.
	CacheTTL time.Duration

	// Logger for extractor events.
	Logger *slog.Logger
}

// DefaultExtractorConfig returns extractor defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		HistoryWindow: 6,
		CacheTTL:      time.Minute,
		Logger:        slog.Default(),
	}
}

// Extractor classifies utterances with a language-understanding provider,
// falling back to deterministic rules when the provider is unavailable.
type Extractor struct {
	provider llm.Provider
	orch     *orchestrator.Orchestrator
	config   ExtractorConfig
	logger   *slog.Logger
}

// NewExtractor creates an extractor over the given provider.
func NewExtractor(provider llm.Provider, orch *orchestrator.Orchestrator, cfg ExtractorConfig) *Extractor {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultExtractorConfig().HistoryWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{
		provider: provider,
		orch:     orch,
		config:   cfg,
		logger:   cfg.Logger.With("component", "intent.extractor"),
	}
}

// Extract classifies the utterance. Provider failures are absorbed by the
// rule-based fallback; the returned intent is always a member of the
// closed set.
func (e *Extractor) Extract(ctx context.Context, userID, text string, history []string, profile string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classify(text), nil
	}

	window := history
	if len(window) > e.config.HistoryWindow {
		window = window[len(window)-e.config.HistoryWindow:]
	}

	env := orchestrator.NewEnvelope(ServiceName, userID)
	opts := orchestrator.Options{
		CacheKey: "intent:" + orchestrator.FingerprintStrings(append([]string{text, profile}, window...)...),
		CacheTTL: e.config.CacheTTL,
		Service:  ServiceName,
	}

	result, err := orchestrator.Do(ctx, e.orch, env, opts, func(ctx context.Context) (*Result, error) {
		return e.classifyLLM(ctx, text, window, profile)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("understanding provider failed, using rules",
			"error", err,
		)
		return Classify(text), nil
	}
	return result, nil
}

// classifyLLM runs the primary provider path.
func (e *Extractor) classifyLLM(ctx context.Context, text string, history []string, profile string) (*Result, error) {
	var user strings.Builder
	if len(history) > 0 {
		user.WriteString("Recent conversation:\n")
		for _, turn := range history {
			user.WriteString(turn)
			user.WriteByte('\n')
		}
		user.WriteByte('\n')
	}
	if profile != "" {
		user.WriteString("User profile: " + profile + "\n\n")
	}
	user.WriteString("Utterance: " + text)

	resp, err := e.provider.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(systemPrompt),
			llm.NewUserMessage(user.String()),
		},
		MaxTokens:   256,
		Temperature: 0.1,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	result, err := parseClassification(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("intent: parse classification: %w", err)
	}
	return result, nil
}

// parseClassification decodes the provider's JSON defensively. Unknown
// intent labels map to general_question rather than failing the turn.
func parseClassification(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed struct {
		Intent     string            `json:"intent"`
		Entities   map[string]string `json:"entities"`
		Confidence float64           `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}

	label := Intent(strings.ToLower(strings.TrimSpace(parsed.Intent)))
	if !Valid(label) {
		label = GeneralQuestion
	}

	entities := Entities{}
	for k, v := range parsed.Entities {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			entities[k] = v
		}
	}

	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.8
	}

	return &Result{
		Intent:     label,
		Entities:   entities,
		Confidence: confidence,
		Source:     sourceLLM,
	}, nil
}
