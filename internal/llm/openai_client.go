package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient speaks the OpenAI chat completions protocol. The Hugging
// Face router exposes the same protocol, so both tiers share it.
type OpenAIClient struct {
	client chatClient
	name   string
}

func NewOpenAIClient(client chatClient, name string) *OpenAIClient {
	if client == nil {
		panic("llm: chat client cannot be nil")
	}
	return &OpenAIClient{client: client, name: name}
}

// NewOpenAIClientFromKey builds a client for api.openai.com or any
// compatible base URL.
func NewOpenAIClientFromKey(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIClient(openai.NewClientWithConfig(cfg), "openai")
}

// NewHuggingFaceClient builds a client for the Hugging Face inference router.
func NewHuggingFaceClient(token, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return NewOpenAIClient(openai.NewClientWithConfig(cfg), "huggingface")
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, fmt.Errorf("llm: %s model is required", c.name)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, s := range req.System {
		if strings.TrimSpace(s) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	ccr := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: int(req.MaxTokens),
		TopP:      req.TopP,
	}
	if req.Temperature >= 0 {
		ccr.Temperature = req.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return Response{}, fmt.Errorf("llm: %s completion failed: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("llm: " + c.name + " returned no choices")
	}
	return Response{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
