package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medibot/internal/citation"
	"github.com/wolfman30/medibot/internal/compliance"
	"github.com/wolfman30/medibot/internal/conversation"
	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/http/middleware"
	"github.com/wolfman30/medibot/internal/observability/metrics"
	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/internal/safety"
	"github.com/wolfman30/medibot/pkg/logging"
)

type fakeChat struct {
	lastReq conversation.ChatRequest
	result  conversation.ChatResult
	err     error
}

func (f *fakeChat) ProcessMessage(_ context.Context, req conversation.ChatRequest) (conversation.ChatResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeChat) ManualEscalate(_ context.Context, userID string, id int64) (escalation.Escalation, error) {
	switch {
	case id == 404:
		return escalation.Escalation{}, conversation.ErrNotFound
	case userID != "user-1":
		return escalation.Escalation{}, conversation.ErrForbidden
	}
	return escalation.Escalation{ID: 77, Reason: escalation.ReasonManual}, nil
}

func (f *fakeChat) Explain(_ context.Context, _ string, id int64) (conversation.Explanation, error) {
	if id == 404 {
		return conversation.Explanation{}, conversation.ErrNotFound
	}
	return conversation.Explanation{MessageID: id, ResolvedUserMessageID: id - 1, WhyThisAnswer: "because"}, nil
}

func (f *fakeChat) ExplainRAG(_ context.Context, _ string, id int64) (conversation.RAGTrace, error) {
	return conversation.RAGTrace{ChatMessageID: id, Role: conversation.RoleAssistant}, nil
}

func (f *fakeChat) ListConversations(context.Context, string) ([]conversation.Conversation, error) {
	return nil, f.err
}

func (f *fakeChat) GetConversation(_ context.Context, _ string, id int64) (conversation.ConversationDetail, error) {
	return conversation.ConversationDetail{Conversation: conversation.Conversation{ID: id}}, nil
}

func (f *fakeChat) MedicalAudit(context.Context, string, int64) ([]conversation.Interaction, error) {
	return []conversation.Interaction{{ID: 1, RiskLevel: safety.RiskAmber}}, nil
}

func newTestRouter(chat ChatService) http.Handler {
	h := NewChatHandler(chat, logging.Default())
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Post("/chat/{id}/escalate", h.Escalate)
	r.Get("/chat/{id}/explain", h.Explain)
	r.Get("/chat/{id}/explain-rag", h.ExplainRAG)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{id}", h.GetConversation)
	r.Get("/conversations/{id}/medical-audit", h.MedicalAudit)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body, user string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	chat := &fakeChat{result: conversation.ChatResult{
		ConversationID:     3,
		ChatMessageID:      10,
		AssistantMessageID: 11,
		Reply:              "Call emergency services now.",
		RiskLevel:          safety.RiskRed,
		EmergencyDetected:  true,
		ConfidenceScore:    0.95,
		SuppressionReason:  citation.ReasonEmergencyOverride,
		ModelMode:          "offline",
	}}
	router := newTestRouter(chat)

	rec := do(t, router, http.MethodPost, "/chat", `{"message":"I have chest pain","conversation_id":3}`, "user-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(11), resp.ChatMessageID)
	assert.Equal(t, safety.RiskRed, resp.RiskLevel)
	require.NotNil(t, resp.SuppressionReason)
	assert.Equal(t, citation.ReasonEmergencyOverride, *resp.SuppressionReason)
	assert.Contains(t, rec.Body.String(), `"citations":[]`)

	assert.Equal(t, "user-1", chat.lastReq.UserID)
	require.NotNil(t, chat.lastReq.ConversationID)
	assert.Equal(t, int64(3), *chat.lastReq.ConversationID)
}

func TestChatRejectsBadInput(t *testing.T) {
	router := newTestRouter(&fakeChat{})

	tests := []struct {
		name string
		body string
		user string
		want int
	}{
		{"no user", `{"message":"hi"}`, "", http.StatusUnauthorized},
		{"malformed", `{"message":`, "user-1", http.StatusBadRequest},
		{"blank message", `{"message":"   "}`, "user-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/chat", tt.body, tt.user)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestChatHidesInternalErrors(t *testing.T) {
	router := newTestRouter(&fakeChat{err: errors.New("pq: connection refused")})

	rec := do(t, router, http.MethodPost, "/chat", `{"message":"what is asthma"}`, "user-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestEscalateAndExplainStatusCodes(t *testing.T) {
	router := newTestRouter(&fakeChat{})

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		want   int
	}{
		{"escalate ok", http.MethodPost, "/chat/11/escalate", "user-1", http.StatusOK},
		{"escalate missing", http.MethodPost, "/chat/404/escalate", "user-1", http.StatusNotFound},
		{"escalate foreign", http.MethodPost, "/chat/11/escalate", "user-2", http.StatusForbidden},
		{"escalate bad id", http.MethodPost, "/chat/abc/escalate", "user-1", http.StatusBadRequest},
		{"explain ok", http.MethodGet, "/chat/11/explain", "user-1", http.StatusOK},
		{"explain missing", http.MethodGet, "/chat/404/explain", "user-1", http.StatusNotFound},
		{"explain rag", http.MethodGet, "/chat/11/explain-rag", "user-1", http.StatusOK},
		{"conversation", http.MethodGet, "/conversations/3", "user-1", http.StatusOK},
		{"medical audit", http.MethodGet, "/conversations/3/medical-audit", "user-1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, "", tt.user)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := do(t, router, http.MethodPost, "/chat/11/escalate", "", "user-1")
	assert.JSONEq(t, `{"status":"escalated","escalation_id":77}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/conversations", "", "user-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

type fakeEscalations struct{}

func (fakeEscalations) List(context.Context, string) ([]escalation.Escalation, error) {
	return []escalation.Escalation{
		{ID: 2, ConversationID: 5, Reason: escalation.ReasonManual, Notes: escalation.ManualNotes, CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 1, ConversationID: 4, Reason: escalation.ReasonHighRisk},
	}, nil
}

func (fakeEscalations) Resolve(_ context.Context, _ string, id int64) (escalation.Escalation, error) {
	if id != 2 {
		return escalation.Escalation{}, escalation.ErrNotFound
	}
	return escalation.Escalation{ID: 2, Resolved: true}, nil
}

func TestEscalationHandler(t *testing.T) {
	h := NewEscalationHandler(fakeEscalations{}, logging.Default())
	r := chi.NewRouter()
	r.Get("/escalations", h.List)
	r.Patch("/escalations/{id}/resolve", h.Resolve)

	rec := do(t, r, http.MethodGet, "/escalations", "", "user-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []EscalationItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Notes)
	assert.Nil(t, items[1].Notes)

	rec = do(t, r, http.MethodPatch, "/escalations/2/resolve", "", "user-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":2,"resolved":true}`, rec.Body.String())

	rec = do(t, r, http.MethodPatch, "/escalations/9/resolve", "", "user-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeAudit struct{ filter compliance.AuditFilter }

func (f *fakeAudit) QueryEvents(_ context.Context, filter compliance.AuditFilter) ([]compliance.AuditEvent, error) {
	f.filter = filter
	return []compliance.AuditEvent{{EventType: compliance.EventEmergencyDetected, UserID: "user-1"}}, nil
}

func TestAdminHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)
	m.ObserveTurn("red", "escalated")
	m.ObserveEscalation(escalation.ReasonEmergency)

	audit := &fakeAudit{}
	h := NewAdminHandler(reg, audit, logging.Default())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.TurnsByRisk["red"])

	rec = httptest.NewRecorder()
	h.AuditEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit-events?user_id=user-1&conversation_id=4&limit=5000&from=2026-01-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", audit.filter.UserID)
	assert.Equal(t, int64(4), audit.filter.ConversationID)
	assert.Equal(t, maxAuditLimit, audit.filter.Limit)
	assert.False(t, audit.filter.StartTime.IsZero())
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	h.AuditEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit-events?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	NewAdminHandler(reg, nil, nil).AuditEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit-events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewChatResponseDefaults(t *testing.T) {
	resp := NewChatResponse(conversation.ChatResult{Citations: nil})
	assert.NotNil(t, resp.Citations)
	assert.Nil(t, resp.SuppressionReason)

	resp = NewChatResponse(conversation.ChatResult{Citations: []retrieval.Citation{{Title: "Asthma"}}})
	assert.Len(t, resp.Citations, 1)
}
