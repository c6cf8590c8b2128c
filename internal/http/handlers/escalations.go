package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/pkg/logging"
)

type EscalationService interface {
	List(ctx context.Context, userID string) ([]escalation.Escalation, error)
	Resolve(ctx context.Context, userID string, id int64) (escalation.Escalation, error)
}

type EscalationHandler struct {
	svc    EscalationService
	logger *logging.Logger
}

func NewEscalationHandler(svc EscalationService, logger *logging.Logger) *EscalationHandler {
	if svc == nil {
		panic("handlers: escalation service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationHandler{svc: svc, logger: logger}
}

type EscalationItem struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Reason         string    `json:"reason"`
	Notes          *string   `json:"notes"`
	Resolved       bool      `json:"resolved"`
	CreatedAt      time.Time `json:"created_at"`
}

// List handles GET /api/v1/escalations.
func (h *EscalationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "list escalations", err)
		return
	}
	out := make([]EscalationItem, 0, len(list))
	for _, e := range list {
		item := EscalationItem{
			ID:             e.ID,
			ConversationID: e.ConversationID,
			Reason:         e.Reason,
			Resolved:       e.Resolved,
			CreatedAt:      e.CreatedAt,
		}
		if e.Notes != "" {
			notes := e.Notes
			item.Notes = &notes
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

// Resolve handles PATCH /api/v1/escalations/{id}/resolve.
func (h *EscalationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, "invalid escalation id", http.StatusBadRequest)
		return
	}
	esc, err := h.svc.Resolve(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, "resolve escalation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": esc.ID, "resolved": esc.Resolved})
}
