package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("llm: gemini requires at least one message")
	}
	modelID := req.Model
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	model := c.client.GenerativeModel(modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}

	system := append([]string(nil), req.System...)
	cs := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			system = append(system, content)
			continue
		case RoleAssistant:
			cs.History = append(cs.History, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(content)}})
		default:
			cs.History = append(cs.History, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(content)}})
		}
	}
	if text := strings.TrimSpace(strings.Join(system, "\n\n")); text != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(text))
	}

	last := req.Messages[len(req.Messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, errors.New("llm: gemini returned no content")
	}

	candidate := resp.Candidates[0]
	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	result := Response{
		Text:       strings.TrimSpace(out.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
