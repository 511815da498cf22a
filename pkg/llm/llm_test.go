package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"bad gateway", 502, true},
		{"unauthorized", 401, false},
		{"bad request", 400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.status, Message: "x", Provider: "test"}
			if got := err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		if WrapError("p", nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wrapped error unwraps to sentinel", func(t *testing.T) {
		err := WrapError("p", ErrNoAPIKey)
		if !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestClientChat(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header %q", got)
			}

			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["model"] != "test-model" {
				t.Errorf("unexpected model %v", payload["model"])
			}

			json.NewEncoder(w).Encode(map[string]any{
				"model": "test-model",
				"choices": []map[string]any{{
					"message":       map[string]any{"role": "assistant", "content": "hello there"},
					"finish_reason": "stop",
				}},
				"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
			})
		}))
		defer srv.Close()

		client, err := NewClient(
			WithBaseURL(srv.URL),
			WithAPIKey("test-key"),
			WithModel("test-model"),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer client.Close()

		resp, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "hello there" {
			t.Errorf("unexpected content %q", resp.Content)
		}
		if resp.Usage.TotalTokens != 10 {
			t.Errorf("unexpected usage %+v", resp.Usage)
		}
	})

	t.Run("retries on server error", func(t *testing.T) {
		var attempts int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{"role": "assistant", "content": "ok"},
				}},
			})
		}))
		defer srv.Close()

		client, _ := NewClient(
			WithBaseURL(srv.URL),
			WithRetry(3, time.Millisecond),
		)
		defer client.Close()

		resp, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "ok" || attempts != 3 {
			t.Errorf("content=%q attempts=%d", resp.Content, attempts)
		}
	})

	t.Run("non-retryable error surfaces as APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "bad key", "code": "invalid_api_key"},
			})
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL), WithAPIKey("wrong"))
		defer client.Close()

		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" {
			t.Errorf("unexpected APIError %+v", apiErr)
		}
	})

	t.Run("json mode sets response format", func(t *testing.T) {
		var payload map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&payload)
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{"role": "assistant", "content": "{}"},
				}},
			})
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL))
		defer client.Close()

		client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
			JSONOnly: true,
		})

		rf, ok := payload["response_format"].(map[string]any)
		if !ok || rf["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", payload["response_format"])
		}
	})
}

func TestMockCallTracking(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	m.Chat(ctx, &ChatRequest{})
	m.Chat(ctx, &ChatRequest{})
	m.Health(ctx)

	if got := m.CallCount("Chat"); got != 2 {
		t.Errorf("CallCount(Chat) = %d, want 2", got)
	}
	if got := len(m.Calls()); got != 3 {
		t.Errorf("total calls = %d, want 3", got)
	}

	m.Reset()
	if got := len(m.Calls()); got != 0 {
		t.Errorf("expected cleared calls, got %d", got)
	}
}
