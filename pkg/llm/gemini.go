package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// Gemini is a chat provider backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
// An API key is required.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "llm.gemini"),
	}, nil
}

// Chat generates a chat completion.
func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	contents, genCfg := g.buildRequest(req)

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	out := &ChatResponse{
		Content:   text,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// Health verifies connectivity with a minimal generation request.
func (g *Gemini) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := g.client.Models.GenerateContent(ctx, g.config.Model,
		genai.Text("ping"),
		&genai.GenerateContentConfig{MaxOutputTokens: 1},
	)
	if err != nil {
		return WrapError(providerGemini, fmt.Errorf("health check: %w", err))
	}
	return nil
}

// Close releases resources.
func (g *Gemini) Close() error {
	return nil
}

// buildRequest maps messages onto Gemini contents. System messages become
// system instructions, assistant messages map to the "model" role.
func (g *Gemini) buildRequest(req *ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	var contents []*genai.Content

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	temp := req.Temperature
	if temp == 0 {
		temp = g.config.Temperature
	}
	if temp > 0 {
		cfg.Temperature = genai.Ptr(float32(temp))
	}

	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	if req.JSONOnly {
		cfg.ResponseMIMEType = "application/json"
	}

	return contents, cfg
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
