package llm

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medibot/internal/safety"
	"github.com/wolfman30/medibot/pkg/logging"
)

// Reply modes.
const (
	ModeOnline  = "online"
	ModeOffline = "offline"
)

const (
	maxContextPassages = 4
	maxHistoryTurns    = 6
	replyTemperature   = 0.2
	replyMaxTokens     = 260
)

// Reasoning strings for replies that never reach a provider.
const (
	ReasoningEmergency        = "Emergency override rule triggered by safety detection."
	ReasoningHighSeverityInfo = "High-severity informational UX response template used."
	ReasoningOfflineGrounded  = "Offline mode: grounded response generated from retrieved medical context."
	ReasoningOfflineFallback  = "No cloud model available (HF/OpenAI); deterministic fallback response used."
)

var synthTracer = otel.Tracer("medibot/llm")

// SynthesisRequest is everything the synthesizer needs for one reply.
type SynthesisRequest struct {
	Message string
	// History is the prior conversation, oldest first.
	History []ChatMessage
	// Context holds retrieved passages, best first.
	Context   []string
	Emergency bool
	Trigger   string
}

// Reply is a synthesized answer with its self-reported confidence.
type Reply struct {
	Text       string
	Emergency  bool
	RiskLevel  safety.RiskLevel
	Confidence float64
	Reasoning  string
	Mode       string
	Tier       string
}

// Synthesizer produces replies: fixed templates for emergencies and
// high-severity informational questions, then the provider cascade, then
// a deterministic offline answer.
type Synthesizer struct {
	cascade *Cascade
	budget  *TokenBudget
	logger  *logging.Logger
}

func NewSynthesizer(cascade *Cascade, budget *TokenBudget, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Synthesizer{cascade: cascade, budget: budget, logger: logger}
}

func (s *Synthesizer) Generate(ctx context.Context, req SynthesisRequest) Reply {
	ctx, span := synthTracer.Start(ctx, "llm.generate")
	defer span.End()

	emergency := req.Emergency
	trigger := req.Trigger
	if !emergency {
		if sig := safety.Assess(req.Message); sig.Emergency() {
			emergency = true
			trigger = sig.Trigger
		}
	}
	if emergency {
		span.SetAttributes(attribute.String("llm.branch", "emergency"))
		return Reply{
			Text:       emergencyMessage(trigger),
			Emergency:  true,
			RiskLevel:  safety.RiskRed,
			Confidence: 0.95,
			Reasoning:  ReasoningEmergency,
			Mode:       ModeOffline,
		}
	}

	if isHighSeverityInformational(req.Message) {
		span.SetAttributes(attribute.String("llm.branch", "high_severity_info"))
		return Reply{
			Text:       highSeverityInformationalReply(req.Message),
			RiskLevel:  safety.RiskAmber,
			Confidence: 0.75,
			Reasoning:  ReasoningHighSeverityInfo,
			Mode:       ModeOffline,
		}
	}

	passages := s.contextPassages(req.Context)
	grounded := len(passages) > 0

	if resp, tier, err := s.cascade.Complete(ctx, s.buildRequest(req, passages)); err == nil {
		span.SetAttributes(attribute.String("llm.tier", tier.Name))
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			text = notEnoughInformation
		}
		return Reply{
			Text:       text,
			RiskLevel:  safety.RiskGreen,
			Confidence: tier.Confidence(grounded),
			Reasoning:  tier.Reasoning,
			Mode:       ModeOnline,
			Tier:       tier.Name,
		}
	} else if !errors.Is(err, ErrNoTiers) {
		s.logger.Warn("reply cascade exhausted, using offline reply", "error", err)
	}

	span.SetAttributes(attribute.String("llm.branch", "offline"))
	if grounded {
		return Reply{
			Text:       offlineGroundedReply(req.Message, req.Context),
			RiskLevel:  safety.RiskGreen,
			Confidence: 0.75,
			Reasoning:  ReasoningOfflineGrounded,
			Mode:       ModeOffline,
		}
	}
	return Reply{
		Text:       offlineUngrounded,
		RiskLevel:  safety.RiskGreen,
		Confidence: 0.5,
		Reasoning:  ReasoningOfflineFallback,
		Mode:       ModeOffline,
	}
}

// contextPassages keeps the first non-empty passages that fit the budget.
func (s *Synthesizer) contextPassages(context []string) []string {
	var out []string
	for _, c := range context {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
		if len(out) == maxContextPassages {
			break
		}
	}
	if s.budget != nil {
		out = s.budget.Fit(out)
	}
	return out
}

func (s *Synthesizer) buildRequest(req SynthesisRequest, passages []string) Request {
	system := []string{systemPrompt + "\n\n" + groundingRules + structuredFormatRules + "\n"}
	if len(passages) > 0 {
		system = append(system, contextHeader+strings.Join(passages, "\n\n---\n\n"))
	}

	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" || (m.Role != RoleUser && m.Role != RoleAssistant) {
			continue
		}
		messages = append(messages, ChatMessage{Role: m.Role, Content: content})
	}
	messages = append(messages, ChatMessage{Role: RoleUser, Content: req.Message})

	return Request{
		System:      system,
		Messages:    messages,
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	}
}
