// Package compliance keeps an append-only audit trail of safety decisions.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/medibot/internal/citation"
)

type AuditEventType string

const (
	EventEmergencyDetected   AuditEventType = "safety.emergency_detected"
	EventEscalationCreated   AuditEventType = "safety.escalation_created"
	EventCitationsSuppressed AuditEventType = "safety.citations_suppressed"
	EventLowRAGConfidence    AuditEventType = "safety.low_rag_confidence"
)

// AuditEvent is an immutable audit record.
type AuditEvent struct {
	ID              string          `json:"id"`
	EventType       AuditEventType  `json:"event_type"`
	UserID          string          `json:"user_id"`
	ConversationID  int64           `json:"conversation_id,omitempty"`
	MessageID       int64           `json:"message_id,omitempty"`
	RiskLevel       string          `json:"risk_level,omitempty"`
	MatchedKeywords []string        `json:"matched_keywords,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AuditDetails holds the event-specific payload.
type AuditDetails struct {
	RiskReason        string  `json:"risk_reason,omitempty"`
	Domain            string  `json:"domain,omitempty"`
	EscalationID      int64   `json:"escalation_id,omitempty"`
	EscalationReason  string  `json:"escalation_reason,omitempty"`
	SuppressionReason string  `json:"suppression_reason,omitempty"`
	RAGConfidence     float64 `json:"rag_confidence,omitempty"`
	RetrievedChunks   int     `json:"retrieved_chunks,omitempty"`
}

// TurnAudit summarises one processed chat turn.
type TurnAudit struct {
	UserID            string
	ConversationID    int64
	MessageID         int64
	RiskLevel         string
	RiskReason        string
	Trigger           string
	Domain            string
	Emergency         bool
	EscalationID      int64
	EscalationReason  string
	SuppressionReason string
	RAGConfidence     float64
	RetrievedChunks   int
}

// AuditService writes to safety_audit_events.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	if db == nil {
		return nil
	}
	return &AuditService{db: db}
}

func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Details == nil {
		event.Details = json.RawMessage(`{}`)
	}
	keywords := event.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO safety_audit_events (
			id, event_type, user_id, conversation_id, message_id,
			risk_level, matched_keywords, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.ID,
		string(event.EventType),
		event.UserID,
		nullInt64(event.ConversationID),
		nullInt64(event.MessageID),
		nullString(event.RiskLevel),
		pq.Array(keywords),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// RecordTurn writes the events a turn produced: emergency detection,
// escalation and citation suppression. Turns that produced none write
// nothing.
func (s *AuditService) RecordTurn(ctx context.Context, turn TurnAudit) error {
	if s == nil {
		return nil
	}
	for _, event := range TurnEvents(turn) {
		if err := s.LogEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// TurnEvents derives the audit events for a turn.
func TurnEvents(turn TurnAudit) []AuditEvent {
	base := func(t AuditEventType, details AuditDetails) AuditEvent {
		raw, _ := json.Marshal(details)
		e := AuditEvent{
			EventType:      t,
			UserID:         turn.UserID,
			ConversationID: turn.ConversationID,
			MessageID:      turn.MessageID,
			RiskLevel:      turn.RiskLevel,
			Details:        raw,
		}
		if turn.Trigger != "" {
			e.MatchedKeywords = []string{turn.Trigger}
		}
		return e
	}

	var events []AuditEvent
	if turn.Emergency {
		events = append(events, base(EventEmergencyDetected, AuditDetails{RiskReason: turn.RiskReason, Domain: turn.Domain}))
	}
	if turn.EscalationID != 0 {
		events = append(events, base(EventEscalationCreated, AuditDetails{
			EscalationID:     turn.EscalationID,
			EscalationReason: turn.EscalationReason,
			RiskReason:       turn.RiskReason,
		}))
	}
	switch turn.SuppressionReason {
	case "":
	case citation.ReasonLowRetrievalSignal:
		events = append(events, base(EventLowRAGConfidence, AuditDetails{
			SuppressionReason: turn.SuppressionReason,
			RAGConfidence:     turn.RAGConfidence,
			RetrievedChunks:   turn.RetrievedChunks,
		}))
	case citation.ReasonEmergencyOverride, citation.ReasonNoSources, citation.ReasonAmbiguousSymptoms:
		events = append(events, base(EventCitationsSuppressed, AuditDetails{
			SuppressionReason: turn.SuppressionReason,
			RAGConfidence:     turn.RAGConfidence,
			RetrievedChunks:   turn.RetrievedChunks,
		}))
	}
	return events
}

// AuditFilter narrows QueryEvents.
type AuditFilter struct {
	UserID         string
	ConversationID int64
	EventType      AuditEventType
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
	Offset         int
}

func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, conversation_id, message_id,
			   risk_level, matched_keywords, details, created_at
		FROM safety_audit_events
		WHERE 1 = 1
	`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ConversationID != 0 {
		add("conversation_id = $%d", filter.ConversationID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if !filter.StartTime.IsZero() {
		add("created_at >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("created_at <= $%d", filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]AuditEvent, 0)
	for rows.Next() {
		var (
			e           AuditEvent
			eventType   string
			convID, msg sql.NullInt64
			risk        sql.NullString
			details     []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &e.UserID, &convID, &msg, &risk,
			pq.Array(&e.MatchedKeywords), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.EventType = AuditEventType(eventType)
		e.ConversationID = convID.Int64
		e.MessageID = msg.Int64
		e.RiskLevel = risk.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: audit rows: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
