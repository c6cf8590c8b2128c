// Package llm holds the language-model clients, the provider cascade and
// the reply synthesizer that turns retrieved context into a safe answer.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a provider-neutral chat turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a single completion call. A negative Temperature leaves the
// provider default in place.
type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client completes chat requests against one provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
