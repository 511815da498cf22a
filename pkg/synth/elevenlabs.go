package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxcart/voxcart/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs implements Synthesizer over the ElevenLabs HTTP API.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs synthesis provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "synth.elevenlabs"),
		baseURL: baseURL,
	}, nil
}

// Source identifies this stage.
func (e *ElevenLabs) Source() string { return providerElevenLabs }

// Synthesize converts text to audio, returning the complete audio buffer.
func (e *ElevenLabs) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	voice := req.Voice
	if voice == "" {
		voice = e.config.VoiceID
	}
	if voice == "" {
		return nil, WrapError(providerElevenLabs, ErrInvalidVoice)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, voice, e.config.OutputFormat)

	body, err := json.Marshal(e.buildPayload(req))
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := e.doWithRetry(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	return &Result{
		Audio:     audio,
		Source:    providerElevenLabs,
		Encoding:  e.config.OutputFormat,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/user", nil)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return e.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// buildPayload constructs the API request payload.
func (e *ElevenLabs) buildPayload(req *Request) map[string]interface{} {
	settings := map[string]interface{}{
		"stability":         e.config.VoiceSettings.Stability,
		"similarity_boost":  e.config.VoiceSettings.SimilarityBoost,
		"use_speaker_boost": e.config.VoiceSettings.SpeakerBoost,
	}
	if req.Speed > 0 {
		settings["speed"] = req.Speed
	}
	return map[string]interface{}{
		"text":           req.Text,
		"model_id":       e.config.ModelID,
		"voice_settings": settings,
	}
}

// doWithRetry performs the request with retry logic.
func (e *ElevenLabs) doWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("xi-api-key", e.config.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerElevenLabs, err)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = e.parseError(resp)
			resp.Body.Close()
			e.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response. An unknown voice id
// maps to ErrInvalidVoice so the retry policy can skip it.
func (e *ElevenLabs) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	message := string(body)
	status := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
		status = errResp.Detail.Status
	}

	if resp.StatusCode == http.StatusNotFound || status == "voice_not_found" {
		return WrapError(providerElevenLabs, fmt.Errorf("%w: %s", ErrInvalidVoice, message))
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       status,
		Provider:   providerElevenLabs,
	}
}

// Verify ElevenLabs implements Synthesizer at compile time.
var _ Synthesizer = (*ElevenLabs)(nil)
