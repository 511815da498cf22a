package llm

import (
	"context"
	"errors"
	"testing"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("requires at least one provider", func(t *testing.T) {
		_, err := NewChain()
		if !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("first provider success short-circuits", func(t *testing.T) {
		primary := NewMock()
		secondary := NewMock()

		chain, err := NewChain(primary, secondary)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := chain.Chat(ctx, &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "Mock response" {
			t.Errorf("unexpected content: %q", resp.Content)
		}
		if secondary.CallCount("Chat") != 0 {
			t.Error("secondary should not be called when primary succeeds")
		}
	})

	t.Run("falls back to next provider on failure", func(t *testing.T) {
		boom := errors.New("primary down")
		primary := WithChatError(boom)
		secondary := NewMock()
		secondary.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Content: "fallback"}, nil
		}

		chain, _ := NewChain(primary, secondary)
		resp, err := chain.Chat(ctx, &ChatRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "fallback" {
			t.Errorf("unexpected content: %q", resp.Content)
		}
	})

	t.Run("all providers failing returns ChainError", func(t *testing.T) {
		boom := errors.New("down")
		chain, _ := NewChain(WithChatError(boom), WithChatError(boom))

		_, err := chain.Chat(ctx, &ChatRequest{})
		var chainErr *ChainError
		if !errors.As(err, &chainErr) {
			t.Fatalf("expected ChainError, got %v", err)
		}
		if len(chainErr.Errors) != 2 {
			t.Errorf("expected 2 recorded errors, got %d", len(chainErr.Errors))
		}
		if !errors.Is(err, boom) {
			t.Errorf("expected unwrap to reach the last error, got %v", err)
		}
	})

	t.Run("cancelled context stops the chain", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		primary := NewMock()
		primary.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			cancel()
			return nil, errors.New("down")
		}
		secondary := NewMock()

		chain, _ := NewChain(primary, secondary)
		_, err := chain.Chat(ctx, &ChatRequest{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if secondary.CallCount("Chat") != 0 {
			t.Error("secondary should not run after cancellation")
		}
	})
}

func TestChainHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy when any provider is up", func(t *testing.T) {
		chain, _ := NewChain(WithChatError(errors.New("down")), NewMock())
		if err := chain.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unhealthy when all providers are down", func(t *testing.T) {
		boom := errors.New("down")
		chain, _ := NewChain(WithChatError(boom), WithChatError(boom))
		if err := chain.Health(ctx); err == nil {
			t.Error("expected error")
		}
	})
}
