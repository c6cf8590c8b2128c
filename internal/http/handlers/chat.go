package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/medibot/internal/conversation"
	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/internal/safety"
	"github.com/wolfman30/medibot/pkg/logging"
)

// ChatService is the conversation surface the HTTP layer needs.
type ChatService interface {
	ProcessMessage(ctx context.Context, req conversation.ChatRequest) (conversation.ChatResult, error)
	ManualEscalate(ctx context.Context, userID string, messageID int64) (escalation.Escalation, error)
	Explain(ctx context.Context, userID string, messageID int64) (conversation.Explanation, error)
	ExplainRAG(ctx context.Context, userID string, messageID int64) (conversation.RAGTrace, error)
	ListConversations(ctx context.Context, userID string) ([]conversation.Conversation, error)
	GetConversation(ctx context.Context, userID string, id int64) (conversation.ConversationDetail, error)
	MedicalAudit(ctx context.Context, userID string, conversationID int64) ([]conversation.Interaction, error)
}

type ChatHandler struct {
	chat   ChatService
	logger *logging.Logger
}

func NewChatHandler(chat ChatService, logger *logging.Logger) *ChatHandler {
	if chat == nil {
		panic("handlers: chat service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

// ChatResponse is the public shape of a processed turn. ChatMessageID is
// the assistant reply, which is what explain and escalate take.
type ChatResponse struct {
	ConversationID    int64                `json:"conversation_id"`
	ChatMessageID     int64                `json:"chat_message_id"`
	Reply             string               `json:"reply"`
	Citations         []retrieval.Citation `json:"citations"`
	RiskLevel         safety.RiskLevel     `json:"risk_level"`
	EmergencyDetected bool                 `json:"emergency_detected"`
	ConfidenceScore   float64              `json:"confidence_score"`
	SuppressionReason *string              `json:"suppression_reason"`
	ModelMode         string               `json:"model_mode"`
}

// NewChatResponse shapes a turn result for the wire.
func NewChatResponse(res conversation.ChatResult) ChatResponse {
	out := ChatResponse{
		ConversationID:    res.ConversationID,
		ChatMessageID:     res.AssistantMessageID,
		Reply:             res.Reply,
		Citations:         res.Citations,
		RiskLevel:         res.RiskLevel,
		EmergencyDetected: res.EmergencyDetected,
		ConfidenceScore:   res.ConfidenceScore,
		ModelMode:         res.ModelMode,
	}
	if out.Citations == nil {
		out.Citations = []retrieval.Citation{}
	}
	if res.SuppressionReason != "" {
		reason := res.SuppressionReason
		out.SuppressionReason = &reason
	}
	return out
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		jsonError(w, "message is required", http.StatusBadRequest)
		return
	}

	res, err := h.chat.ProcessMessage(r.Context(), conversation.ChatRequest{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "chat turn", err)
		return
	}
	writeJSON(w, http.StatusOK, NewChatResponse(res))
}

// Escalate handles POST /api/v1/chat/{id}/escalate.
func (h *ChatHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid message id", http.StatusBadRequest)
		return
	}
	esc, err := h.chat.ManualEscalate(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, "manual escalation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "escalated", "escalation_id": esc.ID})
}

// Explain handles GET /api/v1/chat/{id}/explain.
func (h *ChatHandler) Explain(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid message id", http.StatusBadRequest)
		return
	}
	exp, err := h.chat.Explain(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, "explain", err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// ExplainRAG handles GET /api/v1/chat/{id}/explain-rag.
func (h *ChatHandler) ExplainRAG(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid message id", http.StatusBadRequest)
		return
	}
	trace, err := h.chat.ExplainRAG(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, "explain rag", err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// ListConversations handles GET /api/v1/conversations.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	convs, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	detail, err := h.chat.GetConversation(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, "get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// MedicalAudit handles GET /api/v1/conversations/{id}/medical-audit.
func (h *ChatHandler) MedicalAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	records, err := h.chat.MedicalAudit(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, "medical audit", err)
		return
	}
	if records == nil {
		records = []conversation.Interaction{}
	}
	writeJSON(w, http.StatusOK, records)
}
