// Package llm provides a unified interface for language-model providers.
//
// The package abstracts chat completions behind a single Provider interface,
// enabling seamless switching between Gemini and any OpenAI-compatible API
// (OpenAI, Ollama, vLLM, Together, Groq, etc.). Providers compose into an
// ordered fallback Chain; callers build prompts, providers move text.
//
// Example usage:
//
//	gemini, _ := llm.NewGemini(ctx,
//	    llm.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	    llm.WithModel("gemini-2.0-flash"),
//	)
//	defer gemini.Close()
//
//	resp, _ := gemini.Chat(ctx, &llm.ChatRequest{
//	    Messages: []llm.Message{llm.NewUserMessage("Hello!")},
//	})
package llm

import "context"

// Provider is the unified chat inference interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Role defines message roles in a conversation.
type Role string

const (
	// RoleSystem is for system instructions.
	RoleSystem Role = "system"

	// RoleUser is for user messages.
	RoleUser Role = "user"

	// RoleAssistant is for assistant responses.
	RoleAssistant Role = "assistant"
)

// Message represents a chat message in a conversation.
type Message struct {
	// Role identifies the message sender.
	Role Role

	// Content is the text content of the message.
	Content string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// JSONOnly asks the provider for a bare JSON object response,
	// used by structured extraction prompts.
	JSONOnly bool
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Content is the assistant's response text.
	Content string

	// Model used for generation.
	Model string

	// Usage tracks token consumption.
	Usage Usage

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Unavailable is a Provider with no upstream. Every call fails with
// ErrProviderUnavailable, which pushes callers onto their rule-based
// fallback paths. Used when no API key is configured.
type Unavailable struct{}

// Chat always fails.
func (Unavailable) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return nil, ErrProviderUnavailable
}

// Health always fails.
func (Unavailable) Health(ctx context.Context) error {
	return ErrProviderUnavailable
}

// Close is a no-op.
func (Unavailable) Close() error { return nil }

// Verify Unavailable implements Provider at compile time.
var _ Provider = Unavailable{}
