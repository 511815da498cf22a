package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxcart/voxcart/pkg/llm"
	"github.com/voxcart/voxcart/pkg/orchestrator"
)

// ServiceName is the circuit-breaker service tag for summarization calls.
const ServiceName = "summarization"

// truncationLimit bounds the deterministic fallback summary length.
const truncationLimit = 600

const summaryPrompt = `Condense the following shopping conversation into a short factual summary.
Keep concrete details: products discussed, stated sizes and preferences, orders mentioned.
Reply with the summary text only, at most four sentences.`

// OptimizerConfig tunes the optimizer.
type OptimizerConfig struct {
	// Window is the number of recent entries kept verbatim.
	Window int

	// Logger for optimizer events.
	Logger *slog.Logger
}

// DefaultOptimizerConfig returns optimizer defaults.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Window: 10,
		Logger: slog.Default(),
	}
}

// Optimizer compresses transcripts that overflow the recent window into
// one summary entry plus the window itself. Output length is always at
// most window+1 entries, and re-optimizing an already-compacted result
// is a no-op.
type Optimizer struct {
	provider llm.Provider
	orch     *orchestrator.Orchestrator
	config   OptimizerConfig
	logger   *slog.Logger
}

// NewOptimizer creates an optimizer over the given provider.
func NewOptimizer(provider llm.Provider, orch *orchestrator.Orchestrator, cfg OptimizerConfig) *Optimizer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultOptimizerConfig().Window
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Optimizer{
		provider: provider,
		orch:     orch,
		config:   cfg,
		logger:   cfg.Logger.With("component", "history.optimizer"),
	}
}

// Window returns the configured recent-window size.
func (o *Optimizer) Window() int {
	return o.config.Window
}

// Optimize returns a bounded view of the transcript: unchanged when it is
// short enough, otherwise [summary] + the most recent window entries.
func (o *Optimizer) Optimize(ctx context.Context, userID string, entries []Entry) ([]Entry, error) {
	window := o.config.Window
	if len(entries) <= window+1 {
		return entries, nil
	}

	head := entries[:len(entries)-window]
	tail := entries[len(entries)-window:]

	summary := o.summarize(ctx, userID, head)

	out := make([]Entry, 0, window+1)
	out = append(out, Entry{
		Role:      RoleSummary,
		Text:      summary,
		Timestamp: time.Now().UTC(),
		Source:    "optimizer",
	})
	out = append(out, tail...)
	return out, nil
}

// summarize condenses the head of the transcript. Provider failures
// degrade to deterministic truncation; summarization never fails a turn.
func (o *Optimizer) summarize(ctx context.Context, userID string, head []Entry) string {
	env := orchestrator.NewEnvelope(ServiceName, userID)
	opts := orchestrator.Options{Service: ServiceName}

	summary, err := orchestrator.Do(ctx, o.orch, env, opts, func(ctx context.Context) (string, error) {
		return o.summarizeLLM(ctx, head)
	})
	if err != nil {
		o.logger.Warn("summarization provider failed, truncating",
			"entries", len(head),
			"error", err,
		)
		return truncate(head)
	}
	return summary
}

func (o *Optimizer) summarizeLLM(ctx context.Context, head []Entry) (string, error) {
	resp, err := o.provider.Chat(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(summaryPrompt),
			llm.NewUserMessage(renderDialogue(head)),
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// renderDialogue flattens entries for the summarization prompt. Prior
// summary entries are labelled as such so they are not treated as raw
// dialogue and compounded by repeated passes.
func renderDialogue(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.IsSummary() {
			fmt.Fprintf(&b, "[earlier summary] %s\n", e.Text)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Text)
	}
	return b.String()
}

// truncate is the deterministic fallback: the flattened dialogue clipped
// to a fixed length.
func truncate(entries []Entry) string {
	text := strings.TrimSpace(renderDialogue(entries))
	if len(text) <= truncationLimit {
		return text
	}
	return text[:truncationLimit] + "..."
}
