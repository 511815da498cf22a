package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/voxcart/voxcart/pkg/engine"
	"github.com/voxcart/voxcart/pkg/history"
	"github.com/voxcart/voxcart/pkg/hub"
	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/llm"
	"github.com/voxcart/voxcart/pkg/orchestrator"
	"github.com/voxcart/voxcart/pkg/prefs"
	"github.com/voxcart/voxcart/pkg/respond"
	"github.com/voxcart/voxcart/pkg/store"
	"github.com/voxcart/voxcart/pkg/synth"
	"github.com/voxcart/voxcart/pkg/transcribe"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()

	ocfg := orchestrator.DefaultConfig()
	ocfg.Logger = logger
	orch := orchestrator.New(mem, ocfg)

	provider := &llm.Mock{ChatFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if req.JSONOnly {
			return &llm.ChatResponse{
				Content: `{"intent": "search_product", "entities": {"color": "blue"}, "confidence": 0.9}`,
			}, nil
		}
		return &llm.ChatResponse{Content: "Here you go."}, nil
	}}

	events := hub.New("events", logger)
	go events.Run()
	t.Cleanup(events.Stop)

	eng := engine.New(engine.Deps{
		Cache:       mem,
		Transcriber: transcribe.NewResolver(orch, transcribe.ResolverConfig{Logger: logger}, transcribe.NewMock("find blue dresses")),
		Extractor:   intent.NewExtractor(provider, orch, intent.ExtractorConfig{Logger: logger}),
		Generator:   respond.NewGenerator(provider, orch, respond.GeneratorConfig{Logger: logger}),
		Synthesizer: synth.NewResolver(orch, synth.ResolverConfig{Logger: logger}, synth.NewMock([]byte("pcm"))),
		Optimizer:   history.NewOptimizer(provider, orch, history.OptimizerConfig{Window: 10, Logger: logger}),
		Log:         history.NewLog(mem.AsDurable()),
		Prefs: prefs.NewManager(mem.AsDurable(), mem, prefs.ManagerConfig{
			Logger: logger,
		}),
		Orchestrator: orch,
		Events:       events,
	}, engine.Config{Logger: logger})

	return NewServer(eng, events, Config{Logger: logger})
}

func decodeBody(t *testing.T, body io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("undecodable body: %v", err)
	}
}

func TestConversationEndpoints(t *testing.T) {
	t.Run("start conversation", func(t *testing.T) {
		s := newTestServer(t)

		req := httptest.NewRequest("POST", "/api/conversations",
			bytes.NewReader([]byte(`{"user_id": "user-1"}`)))
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.App().Test(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != 201 {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}

		var body map[string]any
		decodeBody(t, resp.Body, &body)
		if id, _ := body["conversation_id"].(string); id == "" {
			t.Error("expected a conversation id")
		}
	})

	t.Run("start without user is rejected", func(t *testing.T) {
		s := newTestServer(t)

		req := httptest.NewRequest("POST", "/api/conversations",
			bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := s.App().Test(req)
		if resp.StatusCode != 400 {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("end conversation", func(t *testing.T) {
		s := newTestServer(t)

		req := httptest.NewRequest("DELETE", "/api/conversations/whatever", nil)
		resp, _ := s.App().Test(req)
		if resp.StatusCode != 204 {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}
	})
}

func TestVoiceTurnEndpoint(t *testing.T) {
	t.Run("voice turn round trip", func(t *testing.T) {
		s := newTestServer(t)

		audio := bytes.Repeat([]byte{0x01}, 512)
		req := httptest.NewRequest("POST", "/api/conversations/new/voice?user_id=user-1&format=wav",
			bytes.NewReader(audio))
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := s.App().Test(req, 10000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var result engine.TurnResult
		decodeBody(t, resp.Body, &result)
		if result.Transcript != "find blue dresses" {
			t.Errorf("unexpected transcript %q", result.Transcript)
		}
		if result.Intent != intent.SearchProduct {
			t.Errorf("unexpected intent %q", result.Intent)
		}
		if string(result.Audio) != "pcm" {
			t.Errorf("unexpected audio %q", result.Audio)
		}
	})

	t.Run("short audio is rejected", func(t *testing.T) {
		s := newTestServer(t)

		req := httptest.NewRequest("POST", "/api/conversations/new/voice?user_id=user-1",
			bytes.NewReader([]byte{0x01, 0x02}))
		resp, _ := s.App().Test(req)
		if resp.StatusCode != 400 {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown conversation without user", func(t *testing.T) {
		s := newTestServer(t)

		audio := bytes.Repeat([]byte{0x01}, 512)
		req := httptest.NewRequest("POST", "/api/conversations/gone/voice",
			bytes.NewReader(audio))
		resp, _ := s.App().Test(req)
		if resp.StatusCode != 400 {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestTextTurnEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/text",
		bytes.NewReader([]byte(`{"user_id": "user-1", "query": "find blue dresses"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result engine.TurnResult
	decodeBody(t, resp.Body, &result)
	if result.Text == "" {
		t.Error("expected a reply")
	}
	if result.Audio != nil {
		t.Error("expected no audio when not requested")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	s := newTestServer(t)

	turn := httptest.NewRequest("POST", "/api/text",
		bytes.NewReader([]byte(`{"user_id": "user-1", "query": "hello"}`)))
	turn.Header.Set("Content-Type", "application/json")
	if _, err := s.App().Test(turn, 10000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/users/user-1/history", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		UserID  string          `json:"user_id"`
		Entries []history.Entry `json:"entries"`
	}
	decodeBody(t, resp.Body, &body)
	if body.UserID != "user-1" || len(body.Entries) != 2 {
		t.Errorf("unexpected history %+v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp.Body, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
}
