package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/medibot/internal/compliance"
	"github.com/wolfman30/medibot/internal/observability/metrics"
	"github.com/wolfman30/medibot/pkg/logging"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

type AuditQuerier interface {
	QueryEvents(ctx context.Context, filter compliance.AuditFilter) ([]compliance.AuditEvent, error)
}

// AdminHandler serves operator views: pipeline stats and the safety audit
// trail.
type AdminHandler struct {
	gatherer prometheus.Gatherer
	audit    AuditQuerier
	logger   *logging.Logger
}

func NewAdminHandler(gatherer prometheus.Gatherer, audit AuditQuerier, logger *logging.Logger) *AdminHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{gatherer: gatherer, audit: audit, logger: logger}
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.TakeSnapshot(h.gatherer))
}

// AuditEvents handles GET /admin/audit-events.
func (h *AdminHandler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		jsonError(w, "audit trail not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	filter := compliance.AuditFilter{
		UserID:    q.Get("user_id"),
		EventType: compliance.AuditEventType(q.Get("event_type")),
		Limit:     defaultAuditLimit,
	}
	if v := q.Get("conversation_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, "invalid conversation_id", http.StatusBadRequest)
			return
		}
		filter.ConversationID = id
	}
	for name, dst := range map[string]*time.Time{"from": &filter.StartTime, "to": &filter.EndTime} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				jsonError(w, "invalid "+name+" timestamp", http.StatusBadRequest)
				return
			}
			*dst = t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxAuditLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}

	events, err := h.audit.QueryEvents(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "query audit events", err)
		return
	}
	if events == nil {
		events = []compliance.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
