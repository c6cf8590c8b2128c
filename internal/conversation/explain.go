package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medibot/internal/retrieval"
)

// RiskAssessment is the safety read shown in an explanation.
type RiskAssessment struct {
	Level             string `json:"level"`
	Reason            string `json:"reason"`
	Trigger           string `json:"trigger"`
	EmergencyDetected bool   `json:"emergency_detected"`
}

type RAGExplanation struct {
	CitationsReturned bool                 `json:"citations_returned"`
	SuppressionReason string               `json:"suppression_reason"`
	RetrievedSources  []retrieval.Citation `json:"retrieved_sources"`
	RAGConfidence     *float64             `json:"rag_confidence"`
}

// Explanation describes why a turn was answered the way it was.
type Explanation struct {
	MessageID             int64          `json:"message_id"`
	ResolvedUserMessageID int64          `json:"resolved_user_message_id"`
	RiskAssessment        RiskAssessment `json:"risk_assessment"`
	MedicalDomain         string         `json:"medical_domain"`
	AllDomains            []string       `json:"all_domains"`
	ConfidenceScore       float64        `json:"confidence_score"`
	ModelName             string         `json:"model_name"`
	CreatedAt             time.Time      `json:"created_at"`
	RAG                   RAGExplanation `json:"rag"`
	WhyThisAnswer         string         `json:"why_this_answer"`
}

type RAGTrace struct {
	ChatMessageID int64    `json:"chat_message_id"`
	Role          Role     `json:"role"`
	RAG           *RAGMeta `json:"rag"`
}

func (s *Service) ownedMessage(ctx context.Context, userID string, id int64) (Message, error) {
	msg, err := s.repo.Message(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if msg.UserID != userID {
		return Message{}, ErrForbidden
	}
	return msg, nil
}

// Explain returns the decision trace for a message. Assistant messages are
// explained through the user message they answered.
func (s *Service) Explain(ctx context.Context, userID string, messageID int64) (Explanation, error) {
	ctx, span := tracer.Start(ctx, "conversation.explain")
	defer span.End()

	msg, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return Explanation{}, err
	}

	userMsg := msg
	if msg.Role == RoleAssistant {
		if userMsg, err = s.repo.PreviousUserMessage(ctx, msg.ConversationID, msg.ID); err != nil {
			return Explanation{}, err
		}
	}

	mi, err := s.repo.InteractionForMessage(ctx, userMsg.ID)
	if err != nil {
		return Explanation{}, err
	}

	var meta *RAGMeta
	if msg.Role == RoleAssistant {
		meta = msg.Meta.RAG
	} else {
		reply, err := s.repo.NextAssistantMessage(ctx, msg.ConversationID, msg.ID)
		switch {
		case err == nil:
			meta = reply.Meta.RAG
		case !errors.Is(err, ErrNotFound):
			return Explanation{}, err
		}
	}

	rag := RAGExplanation{RetrievedSources: []retrieval.Citation{}}
	if meta != nil {
		conf := meta.RAGConfidence
		rag.CitationsReturned = meta.CitationsReturned
		rag.SuppressionReason = meta.SuppressionReason
		rag.RAGConfidence = &conf
		if meta.RetrievedChunks != nil {
			rag.RetrievedSources = meta.RetrievedChunks
		}
	}

	domains := mi.AllDomains
	if domains == nil {
		domains = []string{}
	}

	return Explanation{
		MessageID:             msg.ID,
		ResolvedUserMessageID: userMsg.ID,
		RiskAssessment: RiskAssessment{
			Level:             string(mi.RiskLevel),
			Reason:            mi.RiskReason,
			Trigger:           mi.RiskTrigger,
			EmergencyDetected: mi.EmergencyDetected,
		},
		MedicalDomain:   mi.PrimaryDomain,
		AllDomains:      domains,
		ConfidenceScore: mi.ConfidenceScore,
		ModelName:       mi.ModelName,
		CreatedAt:       mi.CreatedAt,
		RAG:             rag,
		WhyThisAnswer:   whyThisAnswer(mi, rag),
	}, nil
}

func whyThisAnswer(mi Interaction, rag RAGExplanation) string {
	reasons := []string{
		fmt.Sprintf("risk level was assessed as %s", strings.ToLower(string(mi.RiskLevel))),
	}
	if mi.PrimaryDomain != "" {
		reasons = append(reasons, fmt.Sprintf("the medical domain '%s' was inferred", mi.PrimaryDomain))
	}
	if rag.SuppressionReason != "" {
		reasons = append(reasons, fmt.Sprintf("citations were intentionally suppressed due to '%s'", rag.SuppressionReason))
	} else if n := len(rag.RetrievedSources); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d trusted medical sources were retrieved", n))
	}
	reasons = append(reasons, fmt.Sprintf("confidence score was %.2f", mi.ConfidenceScore))
	return "The response was generated because " + strings.Join(reasons, ", and ") + "."
}

// ExplainRAG returns the raw retrieval metadata stored on a message.
func (s *Service) ExplainRAG(ctx context.Context, userID string, messageID int64) (RAGTrace, error) {
	msg, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return RAGTrace{}, err
	}
	return RAGTrace{ChatMessageID: msg.ID, Role: msg.Role, RAG: msg.Meta.RAG}, nil
}
