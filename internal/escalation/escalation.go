// Package escalation records doctor escalations and fans them out to the
// on-call inbox and the escalation event queue.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("escalation: not found")

const (
	ReasonEmergency  = "emergency detected"
	ReasonHighRisk   = "high medical risk"
	ReasonManual     = "manual_user_request"
	ManualNotes      = "User requested doctor escalation from chat UI"
	EventTypeCreated = "escalation.created"
)

type Escalation struct {
	ID             int64      `json:"id"`
	UserID         string     `json:"user_id"`
	ConversationID int64      `json:"conversation_id"`
	Reason         string     `json:"reason"`
	Notes          string     `json:"notes,omitempty"`
	Resolved       bool       `json:"resolved"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Querier is satisfied by pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const columns = "id, user_id, conversation_id, reason, COALESCE(notes, ''), resolved, created_at, resolved_at"

func scan(row pgx.Row) (Escalation, error) {
	var e Escalation
	err := row.Scan(&e.ID, &e.UserID, &e.ConversationID, &e.Reason, &e.Notes, &e.Resolved, &e.CreatedAt, &e.ResolvedAt)
	return e, err
}

// Store reads and updates doctor_escalations.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		panic("escalation: querier cannot be nil")
	}
	return &Store{db: db}
}

// Insert writes an escalation. The turn pipeline builds a Store over its
// transaction so the row commits with the turn.
func (s *Store) Insert(ctx context.Context, rec Escalation) (Escalation, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO doctor_escalations (user_id, conversation_id, reason, notes)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING `+columns,
		rec.UserID, rec.ConversationID, rec.Reason, rec.Notes,
	)
	out, err := scan(row)
	if err != nil {
		return Escalation{}, fmt.Errorf("escalation: insert: %w", err)
	}
	return out, nil
}

// List returns the user's escalations, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Escalation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+columns+` FROM doctor_escalations WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("escalation: list: %w", err)
	}
	defer rows.Close()

	out := make([]Escalation, 0)
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("escalation: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalation: list rows: %w", err)
	}
	return out, nil
}

// Resolve marks an escalation resolved. Resolving twice keeps the original
// resolved_at.
func (s *Store) Resolve(ctx context.Context, userID string, id int64) (Escalation, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE doctor_escalations
		 SET resolved = TRUE, resolved_at = COALESCE(resolved_at, now())
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+columns,
		id, userID,
	)
	e, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Escalation{}, ErrNotFound
	}
	if err != nil {
		return Escalation{}, fmt.Errorf("escalation: resolve: %w", err)
	}
	return e, nil
}
