package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medibot/internal/citation"
	"github.com/wolfman30/medibot/internal/compliance"
	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/intent"
	"github.com/wolfman30/medibot/internal/llm"
	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/internal/routing"
	"github.com/wolfman30/medibot/internal/safety"
	"github.com/wolfman30/medibot/pkg/logging"
)

var tracer = otel.Tracer("medibot/conversation")

const (
	historyWindow          = 10
	clarificationConfident = 0.9
	defaultConfidence      = 0.5
	modeDeterministic      = "deterministic"
)

// Canned replies for turns that need no medical reasoning.
const (
	greetingReply   = "Hi 👋 I’m AI Medibot.\n\nHow can I help you today?"
	thanksReply     = "You’re welcome 🙂 Tell me your symptoms if you need help."
	goodbyeReply    = "Take care 👋 If symptoms worsen, consult a doctor."
	capabilityReply = "I can help with symptoms, conditions, and medication safety."
)

// Retriever finds evidence for a query.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (retrieval.Result, error)
}

// ReplyGenerator turns a message and its evidence into a reply. It never
// fails; provider errors degrade to templates.
type ReplyGenerator interface {
	Generate(ctx context.Context, req llm.SynthesisRequest) llm.Reply
}

type EscalationNotifier interface {
	Notify(ctx context.Context, e escalation.Escalation) error
}

// PipelineObserver receives per-turn metrics.
type PipelineObserver interface {
	ObserveTurn(riskLevel, phase string)
	ObserveSuppression(reason string)
	ObserveEscalation(reason string)
	ObserveRetrievalConfidence(v float64)
}

type SafetyAuditor interface {
	RecordTurn(ctx context.Context, turn compliance.TurnAudit) error
}

// Service runs chat turns and serves conversation history.
type Service struct {
	repo      Repository
	retriever Retriever
	generator ReplyGenerator
	notifier  EscalationNotifier
	observer  PipelineObserver
	auditor   SafetyAuditor
	logger    *logging.Logger
}

type ServiceOption func(*Service)

func WithNotifier(n EscalationNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithObserver(o PipelineObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

func WithAuditor(a SafetyAuditor) ServiceOption {
	return func(s *Service) { s.auditor = a }
}

func NewService(repo Repository, retriever Retriever, generator ReplyGenerator, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("conversation: repository cannot be nil")
	}
	if retriever == nil {
		panic("conversation: retriever cannot be nil")
	}
	if generator == nil {
		panic("conversation: reply generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, retriever: retriever, generator: generator, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// replyOutcome is what the reply stage of a turn produced.
type replyOutcome struct {
	text              string
	citations         []retrieval.Citation
	retrieved         []retrieval.Citation
	suppressionReason string
	ragConfidence     float64
	modelConfidence   float64
	reasoning         string
	mode              string
	retrievalRan      bool
}

// turnEffects carries what must happen after the turn commits.
type turnEffects struct {
	escalation *escalation.Escalation
	reply      replyOutcome
	trigger    string
	riskReason string
	domain     string
}

// ProcessMessage runs one chat turn inside a single transaction.
func (s *Service) ProcessMessage(ctx context.Context, req ChatRequest) (ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatResult{}, ErrEmptyMessage
	}

	ctx, span := tracer.Start(ctx, "conversation.process_turn")
	defer span.End()

	var (
		result  ChatResult
		effects turnEffects
	)
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		result, effects, err = s.runTurn(ctx, tx, req.UserID, req.ConversationID, message)
		return err
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error("chat turn failed", "user_id", req.UserID, "error", err)
		return ChatResult{}, err
	}

	span.SetAttributes(
		attribute.String("risk.level", string(result.RiskLevel)),
		attribute.String("domain", result.Analysis.PrimaryDomain),
		attribute.String("phase", string(result.Phase)),
		attribute.String("suppression_reason", result.SuppressionReason),
	)
	s.afterCommit(ctx, req.UserID, result, effects)
	return result, nil
}

func (s *Service) resolveConversation(ctx context.Context, tx Tx, userID string, id *int64) (Conversation, error) {
	if id != nil && *id > 0 {
		conv, err := tx.ConversationForUser(ctx, userID, *id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Conversation{}, err
		}
	}
	return tx.CreateConversation(ctx, userID)
}

func (s *Service) runTurn(ctx context.Context, tx Tx, userID string, convID *int64, message string) (ChatResult, turnEffects, error) {
	var effects turnEffects

	conv, err := s.resolveConversation(ctx, tx, userID, convID)
	if err != nil {
		return ChatResult{}, effects, err
	}
	userMsg, err := tx.InsertMessage(ctx, Message{ConversationID: conv.ID, UserID: userID, Role: RoleUser, Content: message})
	if err != nil {
		return ChatResult{}, effects, err
	}
	if conv.Title == "" {
		if err := tx.SetConversationTitle(ctx, conv.ID, GenerateTitle(message)); err != nil {
			return ChatResult{}, effects, err
		}
	}

	prior, err := tx.ConversationInteractions(ctx, conv.ID)
	if err != nil {
		return ChatResult{}, effects, err
	}
	thread := foldThread(prior)

	analysis := Analyze(message)
	informational := intent.IsInformational(message)
	if thread.lockedDomain != "" && !informational {
		analysis.PrimaryDomain = thread.lockedDomain
	}

	current := ExtractSlots(message)
	if !routing.IsGeneral(analysis.PrimaryDomain) && !informational {
		current.Mark(SlotSymptom)
	}
	slots := thread.slots.Merge(current)
	missing := MissingSlots(slots)

	if informational && analysis.RiskLevel != safety.RiskRed {
		analysis.EmergencyDetected = false
		analysis.RequiresEscalation = false
	}

	phase := RatchetPhase(NextPhase(message, analysis, false), thread.clarificationAsked)

	mi, err := tx.InsertInteraction(ctx, Interaction{
		ConversationID:    conv.ID,
		ChatMessageID:     userMsg.ID,
		UserID:            userID,
		RiskLevel:         analysis.RiskLevel,
		RiskReason:        analysis.RiskReason,
		RiskTrigger:       analysis.RiskTrigger,
		EmergencyDetected: analysis.RequiresEscalation,
		PrimaryDomain:     analysis.PrimaryDomain,
		DomainReason:      analysis.DomainReason,
		AllDomains:        analysis.AllDomains,
		Phase:             phase,
		Slots:             slots,
		MissingSlots:      missing,
		ConfidenceScore:   defaultConfidence,
		ModelName:         ModelName,
		DisclaimerShown:   true,
	})
	if err != nil {
		return ChatResult{}, effects, err
	}

	history, err := tx.RecentMessages(ctx, conv.ID, userMsg.ID, historyWindow)
	if err != nil {
		return ChatResult{}, effects, err
	}

	vague := intent.IsVagueFollowup(message)
	result := ChatResult{
		ConversationID:    conv.ID,
		ChatMessageID:     userMsg.ID,
		RiskLevel:         analysis.RiskLevel,
		EmergencyDetected: analysis.EmergencyDetected,
		Phase:             phase,
		Analysis:          analysis,
	}

	shouldClarify := (phase == PhaseInfoGathering || phase == PhaseClarification) &&
		!analysis.EmergencyDetected &&
		!vague && !informational &&
		len(missing) > 0 &&
		!thread.clarificationAsked
	if shouldClarify {
		return s.clarify(ctx, tx, result, mi, userID, missing)
	}

	if analysis.EmergencyDetected || analysis.RiskLevel == safety.RiskRed {
		esc, err := s.escalate(ctx, tx, conv.ID, userID, analysis, mi.ID)
		if err != nil {
			return ChatResult{}, effects, err
		}
		effects.escalation = &esc
		result.Phase = PhaseEscalated
		result.Escalated = true
	}

	out, err := s.reply(ctx, message, analysis, history, thread, vague)
	if err != nil {
		return ChatResult{}, effects, err
	}

	final := out.modelConfidence
	if !strings.HasPrefix(out.suppressionReason, "non_medical_") && !vague && out.retrievalRan {
		final = math.Min(out.modelConfidence, out.ragConfidence)
	}

	if err := tx.UpdateInteractionOutcome(ctx, mi.ID, final, out.reasoning); err != nil {
		return ChatResult{}, effects, err
	}

	assistant, err := tx.InsertMessage(ctx, Message{
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           RoleAssistant,
		Content:        out.text,
		Meta: MessageMeta{RAG: &RAGMeta{
			RAGConfidence:     out.ragConfidence,
			ModelConfidence:   out.modelConfidence,
			FinalConfidence:   final,
			CitationsReturned: len(out.citations) > 0,
			SuppressionReason: out.suppressionReason,
			ModelMode:         out.mode,
			RetrievedChunks:   nonNilCitations(out.retrieved),
		}},
	})
	if err != nil {
		return ChatResult{}, effects, err
	}

	result.AssistantMessageID = assistant.ID
	result.Reply = out.text
	result.Citations = nonNilCitations(out.citations)
	result.ConfidenceScore = final
	result.SuppressionReason = out.suppressionReason
	result.ModelMode = out.mode

	effects.reply = out
	effects.trigger = analysis.RiskTrigger
	effects.riskReason = analysis.RiskReason
	effects.domain = analysis.PrimaryDomain
	return result, effects, nil
}

// clarify records the clarification turn and answers with a deterministic
// follow-up question.
func (s *Service) clarify(ctx context.Context, tx Tx, result ChatResult, mi Interaction, userID string, missing []string) (ChatResult, turnEffects, error) {
	question := ClarificationQuestion(missing)

	if err := tx.UpdateInteractionPhase(ctx, mi.ID, PhaseClarification); err != nil {
		return ChatResult{}, turnEffects{}, err
	}
	if err := tx.UpdateInteractionOutcome(ctx, mi.ID, clarificationConfident, ""); err != nil {
		return ChatResult{}, turnEffects{}, err
	}
	assistant, err := tx.InsertMessage(ctx, Message{
		ConversationID: result.ConversationID,
		UserID:         userID,
		Role:           RoleAssistant,
		Content:        question,
		Meta: MessageMeta{RAG: &RAGMeta{
			ModelConfidence:   clarificationConfident,
			FinalConfidence:   clarificationConfident,
			SuppressionReason: ReasonClarificationRequired,
			ModelMode:         modeDeterministic,
			RetrievedChunks:   []retrieval.Citation{},
		}},
	})
	if err != nil {
		return ChatResult{}, turnEffects{}, err
	}

	result.AssistantMessageID = assistant.ID
	result.Reply = question
	result.Citations = []retrieval.Citation{}
	result.ConfidenceScore = clarificationConfident
	result.SuppressionReason = ReasonClarificationRequired
	result.ModelMode = modeDeterministic
	result.Phase = PhaseClarification
	return result, turnEffects{reply: replyOutcome{suppressionReason: ReasonClarificationRequired}}, nil
}

func (s *Service) escalate(ctx context.Context, tx Tx, convID int64, userID string, analysis Analysis, interactionID int64) (escalation.Escalation, error) {
	ctx, span := tracer.Start(ctx, "escalation.create")
	defer span.End()

	reason := escalation.ReasonHighRisk
	if analysis.EmergencyDetected {
		reason = escalation.ReasonEmergency
	}
	span.SetAttributes(attribute.String("escalation.reason", reason))

	esc, err := tx.InsertEscalation(ctx, escalation.Escalation{
		UserID:         userID,
		ConversationID: convID,
		Reason:         reason,
		Notes:          analysis.RiskReason,
	})
	if err != nil {
		span.RecordError(err)
		return escalation.Escalation{}, err
	}
	if err := tx.EndConversation(ctx, convID); err != nil {
		return escalation.Escalation{}, err
	}
	if err := tx.UpdateInteractionPhase(ctx, interactionID, PhaseEscalated); err != nil {
		return escalation.Escalation{}, err
	}
	return esc, nil
}

// reply picks the reply path. Emergencies take precedence over the
// conversational intents.
func (s *Service) reply(ctx context.Context, message string, analysis Analysis, history []Message, thread threadState, vague bool) (replyOutcome, error) {
	switch {
	case analysis.EmergencyDetected:
		r := s.generator.Generate(ctx, llm.SynthesisRequest{
			Message:   message,
			History:   llmHistory(history),
			Emergency: true,
			Trigger:   analysis.RiskTrigger,
		})
		return replyOutcome{
			text:              r.Text,
			suppressionReason: citation.ReasonEmergencyOverride,
			modelConfidence:   r.Confidence,
			reasoning:         r.Reasoning,
			mode:              r.Mode,
		}, nil
	case intent.IsGreeting(message):
		return cannedReply(greetingReply, ReasonGreeting, 0.9), nil
	case intent.IsThanks(message):
		return cannedReply(thanksReply, ReasonThanks, 0.85), nil
	case intent.IsGoodbye(message):
		return cannedReply(goodbyeReply, ReasonGoodbye, 0.85), nil
	case intent.IsCapabilityQuery(message):
		return cannedReply(capabilityReply, ReasonCapability, 0.9), nil
	}
	return s.groundedReply(ctx, message, analysis, history, thread, vague)
}

func cannedReply(text, reason string, confidence float64) replyOutcome {
	return replyOutcome{
		text:              text,
		suppressionReason: reason,
		modelConfidence:   confidence,
		mode:              modeDeterministic,
	}
}

func (s *Service) groundedReply(ctx context.Context, message string, analysis Analysis, history []Message, thread threadState, vague bool) (replyOutcome, error) {
	domain := analysis.PrimaryDomain
	if routing.IsGeneral(domain) && thread.lastDomain != "" {
		domain = thread.lastDomain
	}

	query := message
	if vague {
		if last := lastUserContent(history); last != "" {
			query = last + "\n\nFollow-up question: " + message
		}
	}

	q := retrieval.Query{Text: query}
	if !routing.IsGeneral(domain) {
		q.Domain = domain
	}
	res, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return replyOutcome{}, fmt.Errorf("conversation: retrieve: %w", err)
	}

	retrieved := res.Citations()
	passages := res.Passages()
	citations := retrieved
	var reason string
	if citation.BelowConfidenceGate(res.Confidence) {
		passages = nil
		citations = nil
		reason = citation.ReasonLowRetrievalSignal
	} else if reason = citation.SuppressionReason(message, analysis.EmergencyDetected, len(res.Chunks)); reason != "" {
		citations = nil
	}

	r := s.generator.Generate(ctx, llm.SynthesisRequest{
		Message: message,
		History: llmHistory(history),
		Context: passages,
		Trigger: analysis.RiskTrigger,
	})

	return replyOutcome{
		text:              r.Text,
		citations:         citations,
		retrieved:         retrieved,
		suppressionReason: reason,
		ragConfidence:     res.Confidence,
		modelConfidence:   r.Confidence,
		reasoning:         r.Reasoning,
		mode:              r.Mode,
		retrievalRan:      true,
	}, nil
}

func lastUserContent(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser && strings.TrimSpace(history[i].Content) != "" {
			return history[i].Content
		}
	}
	return ""
}

func llmHistory(history []Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func nonNilCitations(c []retrieval.Citation) []retrieval.Citation {
	if c == nil {
		return []retrieval.Citation{}
	}
	return c
}

// afterCommit runs side effects that must not fail a committed turn.
func (s *Service) afterCommit(ctx context.Context, userID string, result ChatResult, effects turnEffects) {
	if s.observer != nil {
		s.observer.ObserveTurn(string(result.RiskLevel), string(result.Phase))
		s.observer.ObserveSuppression(result.SuppressionReason)
		if effects.reply.retrievalRan {
			s.observer.ObserveRetrievalConfidence(effects.reply.ragConfidence)
		}
	}

	audit := compliance.TurnAudit{
		UserID:            userID,
		ConversationID:    result.ConversationID,
		MessageID:         result.ChatMessageID,
		RiskLevel:         string(result.RiskLevel),
		RiskReason:        effects.riskReason,
		Trigger:           effects.trigger,
		Domain:            effects.domain,
		Emergency:         result.EmergencyDetected,
		SuppressionReason: result.SuppressionReason,
		RAGConfidence:     effects.reply.ragConfidence,
		RetrievedChunks:   len(effects.reply.retrieved),
	}

	if esc := effects.escalation; esc != nil {
		audit.EscalationID = esc.ID
		audit.EscalationReason = esc.Reason
		s.notifyEscalation(ctx, *esc)
	}

	if s.auditor != nil {
		if err := s.auditor.RecordTurn(ctx, audit); err != nil {
			s.logger.Warn("safety audit failed", "conversation_id", result.ConversationID, "error", err)
		}
	}
}

func (s *Service) notifyEscalation(ctx context.Context, esc escalation.Escalation) {
	if s.observer != nil {
		s.observer.ObserveEscalation(esc.Reason)
	}
	s.logger.Info("doctor escalation created",
		"escalation_id", esc.ID,
		"conversation_id", esc.ConversationID,
		"reason", esc.Reason,
	)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, esc); err != nil {
		s.logger.Warn("escalation notification failed", "escalation_id", esc.ID, "error", err)
	}
}

// ManualEscalate records a user-requested doctor escalation for the
// conversation that owns messageID.
func (s *Service) ManualEscalate(ctx context.Context, userID string, messageID int64) (escalation.Escalation, error) {
	ctx, span := tracer.Start(ctx, "escalation.create")
	defer span.End()

	msg, err := s.repo.Message(ctx, messageID)
	if err != nil {
		return escalation.Escalation{}, err
	}
	if msg.UserID != userID {
		return escalation.Escalation{}, ErrForbidden
	}

	esc, err := s.repo.InsertEscalation(ctx, escalation.Escalation{
		UserID:         userID,
		ConversationID: msg.ConversationID,
		Reason:         escalation.ReasonManual,
		Notes:          escalation.ManualNotes,
	})
	if err != nil {
		span.RecordError(err)
		return escalation.Escalation{}, err
	}

	s.notifyEscalation(ctx, esc)
	if s.auditor != nil {
		err := s.auditor.RecordTurn(ctx, compliance.TurnAudit{
			UserID:           userID,
			ConversationID:   msg.ConversationID,
			MessageID:        msg.ID,
			EscalationID:     esc.ID,
			EscalationReason: esc.Reason,
		})
		if err != nil {
			s.logger.Warn("safety audit failed", "conversation_id", msg.ConversationID, "error", err)
		}
	}
	return esc, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// HydratedMessage is a chat message with the safety read of its turn.
type HydratedMessage struct {
	ID                int64             `json:"id"`
	Role              Role              `json:"role"`
	Content           string            `json:"content"`
	CreatedAt         time.Time         `json:"created_at"`
	RiskLevel         *safety.RiskLevel `json:"risk_level"`
	EmergencyDetected *bool             `json:"emergency_detected"`
	ConfidenceScore   *float64          `json:"confidence_score"`
	ModelName         *string           `json:"model_name"`
}

type ConversationDetail struct {
	Conversation Conversation      `json:"conversation"`
	Messages     []HydratedMessage `json:"messages"`
}

// GetConversation returns a conversation with its messages in order.
// User messages carry the risk fields of their interaction.
func (s *Service) GetConversation(ctx context.Context, userID string, id int64) (ConversationDetail, error) {
	conv, err := s.repo.ConversationForUser(ctx, userID, id)
	if err != nil {
		return ConversationDetail{}, err
	}
	msgs, err := s.repo.ConversationMessages(ctx, conv.ID)
	if err != nil {
		return ConversationDetail{}, err
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	byMessage, err := s.repo.InteractionsForMessages(ctx, ids)
	if err != nil {
		return ConversationDetail{}, err
	}

	out := ConversationDetail{Conversation: conv, Messages: make([]HydratedMessage, 0, len(msgs))}
	for _, m := range msgs {
		hm := HydratedMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if mi, ok := byMessage[m.ID]; ok {
			risk, emergency, conf, model := mi.RiskLevel, mi.EmergencyDetected, mi.ConfidenceScore, mi.ModelName
			hm.RiskLevel = &risk
			hm.EmergencyDetected = &emergency
			hm.ConfidenceScore = &conf
			hm.ModelName = &model
		}
		out.Messages = append(out.Messages, hm)
	}
	return out, nil
}

// MedicalAudit returns the conversation's interactions, oldest first.
func (s *Service) MedicalAudit(ctx context.Context, userID string, conversationID int64) ([]Interaction, error) {
	if _, err := s.repo.ConversationForUser(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ConversationInteractions(ctx, conversationID)
}
