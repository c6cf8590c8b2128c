package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatClient struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestOpenAIClientComplete(t *testing.T) {
	stub := &stubChatClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: " hi "}, FinishReason: openai.FinishReasonStop}},
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}}
	c := NewOpenAIClient(stub, "huggingface")

	resp, err := c.Complete(context.Background(), Request{
		Model:       "Qwen/Qwen2.5-7B-Instruct",
		System:      []string{"rules", " "},
		Messages:    []ChatMessage{{Role: RoleUser, Content: "q1"}, {Role: RoleAssistant, Content: "a1"}, {Role: RoleUser, Content: "q2"}},
		MaxTokens:   260,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, int32(12), resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.StopReason)

	require.Len(t, stub.req.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, stub.req.Messages[2].Role)
	assert.Equal(t, 260, stub.req.MaxTokens)
	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", stub.req.Model)
}

func TestOpenAIClientErrors(t *testing.T) {
	c := NewOpenAIClient(&stubChatClient{}, "openai")
	_, err := c.Complete(context.Background(), Request{})
	assert.ErrorContains(t, err, "model is required")

	_, err = c.Complete(context.Background(), Request{Model: "m"})
	assert.ErrorContains(t, err, "no choices")

	failing := NewOpenAIClient(&stubChatClient{err: errors.New("429")}, "openai")
	_, err = failing.Complete(context.Background(), Request{Model: "m"})
	assert.ErrorContains(t, err, "429")
}

type stubConverse struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
}

func (s *stubConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.in = in
	return s.out, nil
}

func TestBedrockClientComplete(t *testing.T) {
	stub := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Rest and fluids. "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(5), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(8)},
	}}
	c := NewBedrockClient(stub)

	resp, err := c.Complete(context.Background(), Request{
		Model:       "anthropic.claude-3-haiku",
		System:      []string{"rules"},
		Messages:    []ChatMessage{{Role: RoleSystem, Content: "context"}, {Role: RoleUser, Content: "flu?"}},
		MaxTokens:   260,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Rest and fluids.", resp.Text)
	assert.Equal(t, int32(8), resp.Usage.TotalTokens)
	assert.Len(t, stub.in.System, 2)
	assert.Len(t, stub.in.Messages, 1)
	assert.Equal(t, int32(260), aws.ToInt32(stub.in.InferenceConfig.MaxTokens))
}

func TestBedrockClientRejectsUnknownRole(t *testing.T) {
	c := NewBedrockClient(&stubConverse{})
	_, err := c.Complete(context.Background(), Request{Model: "m", Messages: []ChatMessage{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")
}
