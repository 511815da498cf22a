package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxcart/voxcart/internal/httpc"
	"github.com/voxcart/voxcart/pkg/llm"
)

const sourceWhisper = "whisper"

// Whisper is the primary transcription provider, backed by the OpenAI
// audio transcription API (or any compatible endpoint).
type Whisper struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewWhisper creates a Whisper transcription provider.
// An API key is required.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, llm.WrapError(sourceWhisper, llm.ErrNoAPIKey)
	}

	return &Whisper{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "transcribe.whisper"),
	}, nil
}

// Source identifies this provider.
func (w *Whisper) Source() string { return sourceWhisper }

// Transcribe uploads the audio buffer and returns the recognized text.
func (w *Whisper) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	body, contentType, err := w.buildForm(req)
	if err != nil {
		return nil, llm.WrapError(sourceWhisper, err)
	}

	resp, err := w.doWithRetry(ctx, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, w.parseError(resp)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, llm.WrapError(sourceWhisper, fmt.Errorf("decode response: %w", err))
	}

	return &Result{
		Text:      strings.TrimSpace(result.Text),
		Source:    sourceWhisper,
		Language:  result.Language,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks API connectivity.
func (w *Whisper) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", w.baseURL+"/models", nil)
	if err != nil {
		return llm.WrapError(sourceWhisper, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.http.Do(req)
	if err != nil {
		return llm.WrapError(sourceWhisper, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return w.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (w *Whisper) Close() error {
	w.http.CloseIdleConnections()
	return nil
}

// buildForm writes the multipart upload body.
func (w *Whisper) buildForm(req *Request) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	format := req.Format
	if format == "" {
		format = "wav"
	}
	part, err := mw.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	mw.WriteField("model", w.config.Model)
	if req.Language != "" {
		mw.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		mw.WriteField("prompt", req.Prompt)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// doWithRetry performs the upload with retry on transient failures.
func (w *Whisper) doWithRetry(ctx context.Context, body []byte, contentType string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST",
			w.baseURL+"/audio/transcriptions", bytes.NewReader(body))
		if err != nil {
			return nil, llm.WrapError(sourceWhisper, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+w.apiKey)

		resp, err := w.http.Do(req)
		if err != nil {
			lastErr = llm.WrapError(sourceWhisper, err)
			w.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = w.parseError(resp)
			resp.Body.Close()
			w.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (w *Whisper) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &llm.APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   sourceWhisper,
	}
}

// Verify Whisper implements Transcriber at compile time.
var _ Transcriber = (*Whisper)(nil)
