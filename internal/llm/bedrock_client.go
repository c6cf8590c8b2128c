package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client over the Bedrock Converse API.
type BedrockClient struct {
	api converseAPI
}

func NewBedrockClient(api converseAPI) *BedrockClient {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api}
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, errors.New("llm: bedrock model id is required")
	}

	var system []brtypes.SystemContentBlock
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: block})
		}
	}
	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch msg.Role {
		case RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: content})
			continue
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}

	var inference *brtypes.InferenceConfiguration
	if req.MaxTokens > 0 || req.Temperature >= 0 || req.TopP != 0 {
		inference = &brtypes.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			inference.MaxTokens = aws.Int32(req.MaxTokens)
		}
		if req.Temperature >= 0 {
			inference.Temperature = aws.Float32(req.Temperature)
		}
		if req.TopP != 0 {
			inference.TopP = aws.Float32(req.TopP)
		}
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          system,
		Messages:        messages,
		InferenceConfig: inference,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("llm: bedrock returned no message")
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text.WriteString(tb.Value)
		}
	}
	resp := Response{Text: strings.TrimSpace(text.String()), StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  aws.ToInt32(out.Usage.InputTokens),
			OutputTokens: aws.ToInt32(out.Usage.OutputTokens),
			TotalTokens:  aws.ToInt32(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}
