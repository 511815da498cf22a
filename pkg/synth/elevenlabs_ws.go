package synth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsWSBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
	providerElevenWS    = "elevenlabs_ws"
	wsHandshakeTimeout  = 10 * time.Second
)

// ElevenLabsWS synthesizes over the ElevenLabs stream-input WebSocket.
// It is the last-resort stage: when the HTTP surface is failing the
// WebSocket endpoint sometimes still accepts work. Each call opens a
// fresh connection, sends the full text, and collects chunks until the
// server marks the stream final.
type ElevenLabsWS struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabsWS creates a WebSocket-based ElevenLabs synthesis provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsWSBaseURL
	}

	return &ElevenLabsWS{
		config:  cfg,
		logger:  cfg.Logger.With("component", "synth.elevenlabs_ws"),
		baseURL: baseURL,
	}, nil
}

// Source identifies this stage.
func (e *ElevenLabsWS) Source() string { return providerElevenWS }

// Synthesize sends the text over a fresh WebSocket connection and
// assembles the audio chunks into one buffer.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	voice := req.Voice
	if voice == "" {
		voice = e.config.VoiceID
	}
	if voice == "" {
		return nil, WrapError(providerElevenWS, ErrInvalidVoice)
	}

	conn, err := e.dial(ctx, voice)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(e.config.Timeout))
		conn.SetWriteDeadline(time.Now().Add(e.config.Timeout))
	}

	if err := e.send(conn, req); err != nil {
		return nil, err
	}

	audio, err := e.collect(conn)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &Result{
		Audio:     audio,
		Source:    providerElevenWS,
		Encoding:  e.config.OutputFormat,
		LatencyMs: latency,
	}, nil
}

// Health dials the endpoint to verify reachability and credentials.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	voice := e.config.VoiceID
	if voice == "" {
		return WrapError(providerElevenWS, ErrInvalidVoice)
	}
	conn, err := e.dial(ctx, voice)
	if err != nil {
		return err
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

// Close releases resources.
func (e *ElevenLabsWS) Close() error { return nil }

// dial opens the stream-input connection for a voice.
func (e *ElevenLabsWS) dial(ctx context.Context, voice string) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.baseURL, voice, e.config.ModelID, e.config.OutputFormat)

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusNotFound {
				return nil, WrapError(providerElevenWS, fmt.Errorf("%w: %s", ErrInvalidVoice, voice))
			}
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    err.Error(),
				Provider:   providerElevenWS,
			}
		}
		return nil, WrapError(providerElevenWS, fmt.Errorf("dial: %w", err))
	}
	return conn, nil
}

// send writes the begin-of-stream message, the text, and end-of-stream.
func (e *ElevenLabsWS) send(conn *websocket.Conn, req *Request) error {
	bos := map[string]interface{}{
		"text": " ",
		"voice_settings": map[string]interface{}{
			"stability":        e.config.VoiceSettings.Stability,
			"similarity_boost": e.config.VoiceSettings.SimilarityBoost,
		},
	}
	if err := conn.WriteJSON(bos); err != nil {
		return WrapError(providerElevenWS, fmt.Errorf("send BOS: %w", err))
	}
	if err := conn.WriteJSON(map[string]string{"text": req.Text + " "}); err != nil {
		return WrapError(providerElevenWS, fmt.Errorf("send text: %w", err))
	}
	if err := conn.WriteJSON(map[string]string{"text": ""}); err != nil {
		return WrapError(providerElevenWS, fmt.Errorf("send EOS: %w", err))
	}
	return nil
}

// collect reads audio chunks until the server marks the stream final.
func (e *ElevenLabsWS) collect(conn *websocket.Conn) ([]byte, error) {
	var audio []byte
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				return audio, nil
			}
			return nil, WrapError(providerElevenWS, fmt.Errorf("read: %w", err))
		}

		var chunk struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(message, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, WrapError(providerElevenWS, fmt.Errorf("server: %s", chunk.Error))
		}

		if chunk.Audio != "" {
			data, err := base64.StdEncoding.DecodeString(chunk.Audio)
			if err != nil {
				e.logger.Warn("failed to decode audio chunk", "error", err)
				continue
			}
			audio = append(audio, data...)
		}

		if chunk.IsFinal {
			if len(audio) == 0 {
				return nil, WrapError(providerElevenWS, fmt.Errorf("no audio produced"))
			}
			return audio, nil
		}
	}
}

// Verify ElevenLabsWS implements Synthesizer at compile time.
var _ Synthesizer = (*ElevenLabsWS)(nil)
