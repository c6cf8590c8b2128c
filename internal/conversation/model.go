package conversation

import (
	"errors"
	"time"

	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/internal/safety"
)

var (
	// ErrNotFound is returned when a conversation, message or interaction
	// does not exist for the requesting user.
	ErrNotFound = errors.New("conversation: not found")
	// ErrForbidden is returned when a record belongs to another user.
	ErrForbidden = errors.New("conversation: forbidden")
	// ErrEmptyMessage rejects blank chat input.
	ErrEmptyMessage = errors.New("conversation: message is empty")
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the conversation phase recorded on each interaction.
type Phase string

const (
	PhaseOpening        Phase = "opening"
	PhaseInfoGathering  Phase = "info_gathering"
	PhaseClarification  Phase = "clarification"
	PhaseAnswering      Phase = "answering"
	PhaseRiskAssessment Phase = "risk_assessment"
	PhaseEscalated      Phase = "escalated"
	PhaseClosed         Phase = "closed"
)

// ModelName is stored on every interaction produced by the pipeline.
const ModelName = "deterministic-safety+rag"

// Reply classifications stored in suppression_reason for turns that never
// reach retrieval.
const (
	ReasonGreeting              = "non_medical_greeting"
	ReasonThanks                = "non_medical_thanks"
	ReasonGoodbye               = "non_medical_goodbye"
	ReasonCapability            = "non_medical_capability"
	ReasonClarificationRequired = "clarification_required"
)

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Message is one chat message. Meta carries retrieval metadata on
// assistant replies.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	Meta           MessageMeta `json:"meta"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MessageMeta is persisted as JSONB alongside the message.
type MessageMeta struct {
	RAG *RAGMeta `json:"rag,omitempty"`
}

// RAGMeta records how an assistant reply was grounded.
type RAGMeta struct {
	RAGConfidence     float64              `json:"rag_confidence"`
	ModelConfidence   float64              `json:"model_confidence"`
	FinalConfidence   float64              `json:"final_confidence"`
	CitationsReturned bool                 `json:"citations_returned"`
	SuppressionReason string               `json:"suppression_reason,omitempty"`
	ModelMode         string               `json:"model_mode,omitempty"`
	RetrievedChunks   []retrieval.Citation `json:"retrieved_chunks"`
}

// Interaction is the per-turn safety audit record for a user message.
type Interaction struct {
	ID                int64            `json:"id"`
	ConversationID    int64            `json:"conversation_id"`
	ChatMessageID     int64            `json:"chat_message_id"`
	UserID            string           `json:"user_id"`
	RiskLevel         safety.RiskLevel `json:"risk_level"`
	RiskReason        string           `json:"risk_reason"`
	RiskTrigger       string           `json:"risk_trigger,omitempty"`
	EmergencyDetected bool             `json:"emergency_detected"`
	PrimaryDomain     string           `json:"primary_domain"`
	DomainReason      string           `json:"domain_reason"`
	AllDomains        []string         `json:"all_domains"`
	Phase             Phase            `json:"conversation_phase"`
	Slots             Slots            `json:"extracted_slots"`
	MissingSlots      []string         `json:"missing_slots"`
	ConfidenceScore   float64          `json:"confidence_score"`
	ReasoningSummary  string           `json:"reasoning_summary,omitempty"`
	ModelName         string           `json:"model_name"`
	DisclaimerShown   bool             `json:"disclaimer_shown"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Analysis is the deterministic read of a single user message.
type Analysis struct {
	RiskLevel          safety.RiskLevel `json:"risk_level"`
	RiskReason         string           `json:"risk_reason"`
	RiskTrigger        string           `json:"risk_trigger,omitempty"`
	PrimaryDomain      string           `json:"primary_domain"`
	DomainReason       string           `json:"domain_reason"`
	AllDomains         []string         `json:"all_domains"`
	EmergencyDetected  bool             `json:"emergency_detected"`
	RequiresEscalation bool             `json:"requires_escalation"`
}

// ChatRequest is a single user turn.
type ChatRequest struct {
	UserID         string
	Message        string
	ConversationID *int64
}

// ChatResult is what a processed turn returns to the caller.
type ChatResult struct {
	ConversationID     int64                `json:"conversation_id"`
	ChatMessageID      int64                `json:"chat_message_id"`
	AssistantMessageID int64                `json:"assistant_message_id"`
	Reply              string               `json:"reply"`
	Citations          []retrieval.Citation `json:"citations"`
	RiskLevel          safety.RiskLevel     `json:"risk_level"`
	EmergencyDetected  bool                 `json:"emergency_detected"`
	ConfidenceScore    float64              `json:"confidence_score"`
	SuppressionReason  string               `json:"suppression_reason,omitempty"`
	ModelMode          string               `json:"model_mode"`
	Phase              Phase                `json:"conversation_phase"`
	Escalated          bool                 `json:"escalated"`
	Analysis           Analysis             `json:"analysis"`
}
