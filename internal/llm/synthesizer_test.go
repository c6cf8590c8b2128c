package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medibot/internal/safety"
)

func TestGenerateEmergency(t *testing.T) {
	client := &stubClient{text: "should not be called"}
	s := NewSynthesizer(NewCascade([]Tier{{Name: "hf", Client: client}}, nil, nil), nil, nil)

	reply := s.Generate(context.Background(), SynthesisRequest{Message: "help", Emergency: true, Trigger: "chest pain"})
	assert.True(t, strings.HasPrefix(reply.Text, "⚠️ Chest Pain can be a medical emergency."))
	assert.Equal(t, 0.95, reply.Confidence)
	assert.Equal(t, ModeOffline, reply.Mode)
	assert.Equal(t, safety.RiskRed, reply.RiskLevel)
	assert.Empty(t, client.reqs)
}

func TestGenerateDetectsEmergencyItself(t *testing.T) {
	s := NewSynthesizer(nil, nil, nil)
	reply := s.Generate(context.Background(), SynthesisRequest{Message: "I can't breathe"})
	assert.True(t, reply.Emergency)
	assert.Contains(t, reply.Text, "Can'T Breathe")
}

func TestGenerateDefaultTrigger(t *testing.T) {
	reply := NewSynthesizer(nil, nil, nil).Generate(context.Background(), SynthesisRequest{Message: "x", Emergency: true})
	assert.True(t, strings.HasPrefix(reply.Text, "⚠️ These Symptoms can be a medical emergency."))
}

func TestGenerateHighSeverityInformational(t *testing.T) {
	s := NewSynthesizer(nil, nil, nil)

	stroke := s.Generate(context.Background(), SynthesisRequest{Message: "What are the warning signs of a stroke?"})
	assert.Equal(t, strokeWarningSigns, stroke.Text)
	assert.Equal(t, 0.75, stroke.Confidence)
	assert.Equal(t, ReasoningHighSeverityInfo, stroke.Reasoning)

	heart := s.Generate(context.Background(), SynthesisRequest{Message: "symptoms of heart attack"})
	assert.Equal(t, genericWarningSigns, heart.Text)
}

func TestGenerateOnlineTier(t *testing.T) {
	client := &stubClient{text: "  Grounded answer.  "}
	cascade := NewCascade([]Tier{{
		Name: "huggingface", Client: client, Model: "qwen",
		GroundedConfidence: 0.85, UngroundedConfidence: 0.6,
		Reasoning: "Response generated using Hugging Face Inference API (model=qwen).",
	}}, nil, nil)
	s := NewSynthesizer(cascade, nil, nil)

	history := []ChatMessage{
		{Role: RoleUser, Content: "1"}, {Role: RoleAssistant, Content: "2"},
		{Role: RoleUser, Content: "3"}, {Role: RoleAssistant, Content: "4"},
		{Role: RoleUser, Content: "5"}, {Role: RoleAssistant, Content: "6"},
		{Role: RoleUser, Content: "7"}, {Role: "tool", Content: "8"},
	}
	reply := s.Generate(context.Background(), SynthesisRequest{
		Message: "how is migraine treated",
		History: history,
		Context: []string{"a", "", "b", "c", "d", "e"},
	})
	assert.Equal(t, "Grounded answer.", reply.Text)
	assert.Equal(t, 0.85, reply.Confidence)
	assert.Equal(t, ModeOnline, reply.Mode)
	assert.Equal(t, "huggingface", reply.Tier)

	require.Len(t, client.reqs, 1)
	req := client.reqs[0]
	require.Len(t, req.System, 2)
	assert.True(t, strings.HasPrefix(req.System[0], "You are an AI medical assistant."))
	assert.Equal(t, contextHeader+"a\n\n---\n\nb\n\n---\n\nc\n\n---\n\nd", req.System[1])
	assert.Equal(t, int32(260), req.MaxTokens)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)

	// last six history turns, minus the non-chat role, then the user message
	var contents []string
	for _, m := range req.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"3", "4", "5", "6", "7", "how is migraine treated"}, contents)
}

func TestGenerateEmptyProviderTextIsReplaced(t *testing.T) {
	cascade := NewCascade([]Tier{{Name: "openai", Client: &stubClient{text: " "}, UngroundedConfidence: 0.55}}, nil, nil)
	reply := NewSynthesizer(cascade, nil, nil).Generate(context.Background(), SynthesisRequest{Message: "rash on arm"})
	assert.Equal(t, notEnoughInformation, reply.Text)
	assert.Equal(t, 0.55, reply.Confidence)
}

func TestGenerateOfflineGrounded(t *testing.T) {
	cascade := NewCascade([]Tier{{Name: "openai", Client: &stubClient{err: errors.New("quota")}}}, nil, nil)
	s := NewSynthesizer(cascade, nil, nil)

	reply := s.Generate(context.Background(), SynthesisRequest{
		Message: "what is asthma",
		Context: []string{
			"Question: What is asthma?\nAnswer: Asthma is a chronic lung disease. It inflames airways. It is common.",
			"Asthma is a chronic lung disease. It inflames airways",
		},
	})
	assert.Equal(t, ModeOffline, reply.Mode)
	assert.Equal(t, 0.75, reply.Confidence)
	assert.Equal(t, "Here’s what trusted medical sources say:\n\n"+
		"- Asthma is a chronic lung disease. It inflames airways."+
		"\n\nIf symptoms are severe or worsening, seek medical care.", reply.Text)
}

func TestGenerateOfflineMedication(t *testing.T) {
	reply := NewSynthesizer(nil, nil, nil).Generate(context.Background(), SynthesisRequest{
		Message: "can i take ibuprofen with warfarin",
		Context: []string{"Warfarin raises bleeding risk. NSAIDs add to it. Ask first."},
	})
	assert.True(t, strings.HasPrefix(reply.Text, "Medication safety information from trusted sources:\n\n- Warfarin raises bleeding risk. NSAIDs add to it."))
	assert.True(t, strings.HasSuffix(reply.Text, "confirm with your doctor/pharmacist."))
}

func TestGenerateOfflineNoBullets(t *testing.T) {
	reply := NewSynthesizer(nil, nil, nil).Generate(context.Background(), SynthesisRequest{
		Message: "what is this",
		Context: []string{"..."},
	})
	assert.Equal(t, offlineNoBullets, reply.Text)
}

func TestGenerateOfflineUngrounded(t *testing.T) {
	reply := NewSynthesizer(nil, nil, nil).Generate(context.Background(), SynthesisRequest{Message: "my elbow hurts"})
	assert.Equal(t, offlineUngrounded, reply.Text)
	assert.Equal(t, 0.5, reply.Confidence)
	assert.Equal(t, ReasoningOfflineFallback, reply.Reasoning)
}

func TestTokenBudgetFit(t *testing.T) {
	b := &TokenBudget{max: 5}
	assert.Equal(t, []string{"abcd", "efgh"}, b.Fit([]string{"abcd", "efgh", "ijklmnopqrstuvwxyz0123", "z"}))
	assert.Equal(t, []string{strings.Repeat("x", 20)}, b.Fit([]string{strings.Repeat("x", 40)}))

	var unlimited *TokenBudget
	assert.Equal(t, []string{"a"}, unlimited.Fit([]string{"a"}))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Chest Pain", titleCase("chest pain"))
	assert.Equal(t, "Can'T Breathe", titleCase("can't breathe"))
}
