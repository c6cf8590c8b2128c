package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/safety"
)

// Querier is the pgx surface shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is satisfied by *pgxpool.Pool and pgxmock pools.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGRepository stores conversations, chat messages and medical
// interactions in Postgres.
type PGRepository struct {
	pool PgxPool
	pgQueries
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Tx         = (*pgQueries)(nil)
)

func NewPGRepository(pool PgxPool) *PGRepository {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PGRepository{pool: pool, pgQueries: pgQueries{q: pool}}
}

// RunInTx runs fn in a transaction and commits when fn returns nil.
func (r *PGRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("conversation: commit tx: %w", err)
	}
	return nil
}

type pgQueries struct {
	q Querier
}

const (
	conversationColumns = "id, user_id, COALESCE(title, ''), started_at, ended_at"
	messageColumns      = "id, conversation_id, user_id, role, content, meta, created_at"
	interactionColumns  = "id, conversation_id, chat_message_id, user_id, risk_level, risk_reason, " +
		"COALESCE(risk_trigger, ''), emergency_detected, COALESCE(primary_domain, ''), COALESCE(domain_reason, ''), " +
		"all_domains, conversation_phase, slots_collected, missing_slots, confidence_score, " +
		"COALESCE(reasoning_summary, ''), model_name, disclaimer_shown, created_at"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.StartedAt, &c.EndedAt)
	return c, err
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m    Message
		role string
		meta []byte
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.UserID, &role, &m.Content, &meta, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.Role = Role(role)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Meta); err != nil {
			return Message{}, fmt.Errorf("decode message meta: %w", err)
		}
	}
	return m, nil
}

func scanInteraction(row pgx.Row) (Interaction, error) {
	var (
		mi                      Interaction
		risk, phase             string
		domains, slots, missing []byte
	)
	err := row.Scan(&mi.ID, &mi.ConversationID, &mi.ChatMessageID, &mi.UserID, &risk, &mi.RiskReason,
		&mi.RiskTrigger, &mi.EmergencyDetected, &mi.PrimaryDomain, &mi.DomainReason,
		&domains, &phase, &slots, &missing, &mi.ConfidenceScore,
		&mi.ReasoningSummary, &mi.ModelName, &mi.DisclaimerShown, &mi.CreatedAt)
	if err != nil {
		return Interaction{}, err
	}
	mi.RiskLevel = safety.RiskLevel(risk)
	mi.Phase = Phase(phase)
	for _, f := range []struct {
		raw []byte
		dst any
	}{{domains, &mi.AllDomains}, {slots, &mi.Slots}, {missing, &mi.MissingSlots}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Interaction{}, fmt.Errorf("decode interaction json: %w", err)
		}
	}
	if mi.Slots == nil {
		mi.Slots = Slots{}
	}
	return mi, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *pgQueries) ConversationForUser(ctx context.Context, userID string, id int64) (Conversation, error) {
	c, err := scanConversation(p.q.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return Conversation{}, notFound(err)
	}
	return c, nil
}

func (p *pgQueries) CreateConversation(ctx context.Context, userID string) (Conversation, error) {
	c, err := scanConversation(p.q.QueryRow(ctx,
		`INSERT INTO conversations (user_id) VALUES ($1) RETURNING `+conversationColumns, userID))
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation: create conversation: %w", err)
	}
	return c, nil
}

func (p *pgQueries) SetConversationTitle(ctx context.Context, id int64, title string) error {
	if _, err := p.q.Exec(ctx,
		`UPDATE conversations SET title = $2 WHERE id = $1 AND title IS NULL`, id, title); err != nil {
		return fmt.Errorf("conversation: set title: %w", err)
	}
	return nil
}

func (p *pgQueries) EndConversation(ctx context.Context, id int64) error {
	if _, err := p.q.Exec(ctx,
		`UPDATE conversations SET ended_at = COALESCE(ended_at, now()) WHERE id = $1`, id); err != nil {
		return fmt.Errorf("conversation: end conversation: %w", err)
	}
	return nil
}

func encodeMeta(meta MessageMeta) ([]byte, error) {
	if meta.RAG == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func (p *pgQueries) InsertMessage(ctx context.Context, m Message) (Message, error) {
	meta, err := encodeMeta(m.Meta)
	if err != nil {
		return Message{}, fmt.Errorf("conversation: encode meta: %w", err)
	}
	out, err := scanMessage(p.q.QueryRow(ctx,
		`INSERT INTO chat_messages (conversation_id, user_id, role, content, meta)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+messageColumns,
		m.ConversationID, m.UserID, string(m.Role), m.Content, meta))
	if err != nil {
		return Message{}, fmt.Errorf("conversation: insert message: %w", err)
	}
	return out, nil
}

func (p *pgQueries) RecentMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]Message, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM chat_messages
			WHERE conversation_id = $1 AND id < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent ORDER BY created_at ASC, id ASC`,
		conversationID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	msgs, err := collect(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	return msgs, nil
}

func (p *pgQueries) ConversationInteractions(ctx context.Context, conversationID int64) ([]Interaction, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+interactionColumns+` FROM medical_interactions
		 WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: interactions: %w", err)
	}
	out, err := collect(rows, scanInteraction)
	if err != nil {
		return nil, fmt.Errorf("conversation: interactions: %w", err)
	}
	return out, nil
}

func (p *pgQueries) InsertInteraction(ctx context.Context, mi Interaction) (Interaction, error) {
	domains, err := json.Marshal(nonNil(mi.AllDomains))
	if err != nil {
		return Interaction{}, fmt.Errorf("conversation: encode domains: %w", err)
	}
	slots := mi.Slots
	if slots == nil {
		slots = Slots{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return Interaction{}, fmt.Errorf("conversation: encode slots: %w", err)
	}
	missing, err := json.Marshal(nonNil(mi.MissingSlots))
	if err != nil {
		return Interaction{}, fmt.Errorf("conversation: encode missing slots: %w", err)
	}

	out, err := scanInteraction(p.q.QueryRow(ctx,
		`INSERT INTO medical_interactions (
			conversation_id, chat_message_id, user_id, risk_level, risk_reason, risk_trigger,
			emergency_detected, primary_domain, domain_reason, all_domains, conversation_phase,
			slots_collected, missing_slots, confidence_score, reasoning_summary, model_name, disclaimer_shown
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13, $14, NULLIF($15, ''), $16, $17)
		RETURNING `+interactionColumns,
		mi.ConversationID, mi.ChatMessageID, mi.UserID, string(mi.RiskLevel), mi.RiskReason, mi.RiskTrigger,
		mi.EmergencyDetected, mi.PrimaryDomain, mi.DomainReason, domains, string(mi.Phase),
		slotsJSON, missing, mi.ConfidenceScore, mi.ReasoningSummary, mi.ModelName, mi.DisclaimerShown))
	if err != nil {
		return Interaction{}, fmt.Errorf("conversation: insert interaction: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (p *pgQueries) UpdateInteractionPhase(ctx context.Context, id int64, phase Phase) error {
	if _, err := p.q.Exec(ctx,
		`UPDATE medical_interactions SET conversation_phase = $2 WHERE id = $1`, id, string(phase)); err != nil {
		return fmt.Errorf("conversation: update phase: %w", err)
	}
	return nil
}

func (p *pgQueries) UpdateInteractionOutcome(ctx context.Context, id int64, confidence float64, reasoning string) error {
	if _, err := p.q.Exec(ctx,
		`UPDATE medical_interactions SET confidence_score = $2, reasoning_summary = NULLIF($3, '') WHERE id = $1`,
		id, confidence, reasoning); err != nil {
		return fmt.Errorf("conversation: update outcome: %w", err)
	}
	return nil
}

func (p *pgQueries) InsertEscalation(ctx context.Context, e escalation.Escalation) (escalation.Escalation, error) {
	return escalation.NewStore(p.q).Insert(ctx, e)
}

func (r *PGRepository) Message(ctx context.Context, id int64) (Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id = $1`, id))
	if err != nil {
		return Message{}, notFound(err)
	}
	return m, nil
}

func (r *PGRepository) PreviousUserMessage(ctx context.Context, conversationID, beforeID int64) (Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages c
		 WHERE c.conversation_id = $1 AND c.role = 'user'
		   AND (c.created_at, c.id) < (SELECT created_at, id FROM chat_messages WHERE id = $2)
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT 1`, conversationID, beforeID))
	if err != nil {
		return Message{}, notFound(err)
	}
	return m, nil
}

func (r *PGRepository) NextAssistantMessage(ctx context.Context, conversationID, afterID int64) (Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_messages c
		 WHERE c.conversation_id = $1 AND c.role = 'assistant'
		   AND (c.created_at, c.id) > (SELECT created_at, id FROM chat_messages WHERE id = $2)
		 ORDER BY c.created_at ASC, c.id ASC
		 LIMIT 1`, conversationID, afterID))
	if err != nil {
		return Message{}, notFound(err)
	}
	return m, nil
}

func (r *PGRepository) InteractionForMessage(ctx context.Context, messageID int64) (Interaction, error) {
	mi, err := scanInteraction(r.pool.QueryRow(ctx,
		`SELECT `+interactionColumns+` FROM medical_interactions WHERE chat_message_id = $1`, messageID))
	if err != nil {
		return Interaction{}, notFound(err)
	}
	return mi, nil
}

func (r *PGRepository) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = $1 ORDER BY started_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list conversations: %w", err)
	}
	out, err := collect(rows, scanConversation)
	if err != nil {
		return nil, fmt.Errorf("conversation: list conversations: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ConversationMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: messages: %w", err)
	}
	out, err := collect(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("conversation: messages: %w", err)
	}
	return out, nil
}

func (r *PGRepository) InteractionsForMessages(ctx context.Context, messageIDs []int64) (map[int64]Interaction, error) {
	out := make(map[int64]Interaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+interactionColumns+` FROM medical_interactions WHERE chat_message_id = ANY($1)`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("conversation: interactions for messages: %w", err)
	}
	list, err := collect(rows, scanInteraction)
	if err != nil {
		return nil, fmt.Errorf("conversation: interactions for messages: %w", err)
	}
	for _, mi := range list {
		out[mi.ChatMessageID] = mi
	}
	return out, nil
}
