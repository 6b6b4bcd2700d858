package llm

import (
	"context"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message of a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-agnostic chat-completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResult is the completed response of a chat call. Token counts are
// zero when the provider does not report usage; callers fall back to the
// tokenizer estimate.
type ChatResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// DeltaFunc receives incremental content chunks during streaming. It may
// be nil for non-streaming calls.
type DeltaFunc func(text string)

// ChatClient is the contract the LLM workflow node consumes. When
// req.Stream is set, implementations invoke onDelta for each content chunk
// before returning the assembled result.
type ChatClient interface {
	Chat(ctx context.Context, req *ChatRequest, onDelta DeltaFunc) (*ChatResult, error)
}

// StaticClient returns a fixed response, streamed rune by rune. Used by
// the CLI's offline mode and by tests.
type StaticClient struct {
	Response string
}

// Chat implements ChatClient.
func (c *StaticClient) Chat(ctx context.Context, req *ChatRequest, onDelta DeltaFunc) (*ChatResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Stream && onDelta != nil {
		for _, r := range c.Response {
			onDelta(string(r))
		}
	}
	return &ChatResult{Content: c.Response, FinishReason: "stop"}, nil
}
