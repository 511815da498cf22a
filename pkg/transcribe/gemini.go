package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/voxcart/voxcart/pkg/llm"
)

const sourceGemini = "gemini"

// Gemini is the secondary transcription provider, backed by Gemini's
// multimodal audio understanding.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini transcription provider.
// An API key is required.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, llm.WrapError(sourceGemini, llm.ErrNoAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llm.WrapError(sourceGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "transcribe.gemini"),
	}, nil
}

// Source identifies this provider.
func (g *Gemini) Source() string { return sourceGemini }

// Transcribe sends the audio inline and asks the model for a verbatim
// transcript.
func (g *Gemini) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	prompt := "Transcribe this audio verbatim. Return only the spoken words, no commentary."
	if req.Language != "" {
		prompt += " The language is " + req.Language + "."
	}
	if req.Prompt != "" {
		prompt += " Conversation context: " + req.Prompt
	}

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(req.Audio, mimeType(req.Format)),
	}, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model,
		[]*genai.Content{content}, nil)
	if err != nil {
		return nil, llm.WrapError(sourceGemini, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, llm.WrapError(sourceGemini, llm.ErrEmptyResponse)
	}

	return &Result{
		Text:      text,
		Source:    sourceGemini,
		Language:  req.Language,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
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
		return llm.WrapError(sourceGemini, fmt.Errorf("health check: %w", err))
	}
	return nil
}

// Close releases resources.
func (g *Gemini) Close() error {
	return nil
}

func mimeType(format string) string {
	switch format {
	case "mp3":
		return "audio/mp3"
	case "ogg":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}

// Verify Gemini implements Transcriber at compile time.
var _ Transcriber = (*Gemini)(nil)
