package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/safety"
)

var (
	conversationCols = []string{"id", "user_id", "title", "started_at", "ended_at"}
	messageCols      = []string{"id", "conversation_id", "user_id", "role", "content", "meta", "created_at"}
	interactionCols  = []string{
		"id", "conversation_id", "chat_message_id", "user_id", "risk_level", "risk_reason",
		"risk_trigger", "emergency_detected", "primary_domain", "domain_reason",
		"all_domains", "conversation_phase", "slots_collected", "missing_slots", "confidence_score",
		"reasoning_summary", "model_name", "disclaimer_shown", "created_at",
	}
)

func TestRunInTxCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(conversationCols).AddRow(int64(1), "user-1", "", now, nil))
	mock.ExpectExec(`UPDATE conversations SET title`).
		WithArgs(int64(1), "Chest pain").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewPGRepository(mock)
	err = repo.RunInTx(context.Background(), func(tx Tx) error {
		conv, err := tx.CreateConversation(context.Background(), "user-1")
		if err != nil {
			return err
		}
		assert.Equal(t, now, conv.StartedAt)
		assert.Nil(t, conv.EndedAt)
		return tx.SetConversationTitle(context.Background(), conv.ID, "Chest pain")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE conversations SET ended_at`).
		WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	err = NewPGRepository(mock).RunInTx(context.Background(), func(tx Tx) error {
		if err := tx.EndConversation(context.Background(), 4); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEscalationJoinsTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO doctor_escalations`).
		WithArgs("user-1", int64(7), escalation.ReasonEmergency, safety.ReasonEmergencySymptom).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "conversation_id", "reason", "notes", "resolved", "created_at", "resolved_at"}).
			AddRow(int64(2), "user-1", int64(7), escalation.ReasonEmergency, safety.ReasonEmergencySymptom, false, now, nil))
	mock.ExpectExec(`UPDATE conversations SET ended_at`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewPGRepository(mock).RunInTx(context.Background(), func(tx Tx) error {
		esc, err := tx.InsertEscalation(context.Background(), escalation.Escalation{
			UserID: "user-1", ConversationID: 7, Reason: escalation.ReasonEmergency, Notes: safety.ReasonEmergencySymptom,
		})
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2), esc.ID)
		assert.False(t, esc.Resolved)
		return tx.EndConversation(context.Background(), esc.ConversationID)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessageEncodesRAGMeta(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	meta := []byte(`{"rag":{"rag_confidence":0.8,"model_confidence":0.7,"final_confidence":0.7,"citations_returned":true,"retrieved_chunks":[]}}`)
	mock.ExpectQuery(`INSERT INTO chat_messages`).
		WithArgs(int64(2), "user-1", "assistant", "answer", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(messageCols).AddRow(int64(5), int64(2), "user-1", "assistant", "answer", meta, now))

	repo := NewPGRepository(mock)
	got, err := repo.InsertMessage(context.Background(), Message{
		ConversationID: 2, UserID: "user-1", Role: RoleAssistant, Content: "answer",
		Meta: MessageMeta{RAG: &RAGMeta{RAGConfidence: 0.8, ModelConfidence: 0.7, FinalConfidence: 0.7, CitationsReturned: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, got.Role)
	require.NotNil(t, got.Meta.RAG)
	assert.True(t, got.Meta.RAG.CitationsReturned)
	assert.InDelta(t, 0.8, got.Meta.RAG.RAGConfidence, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeMetaSkipsEmpty(t *testing.T) {
	raw, err := encodeMeta(MessageMeta{})
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestConversationInteractionsDecodesJSON(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM medical_interactions\s+WHERE conversation_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(interactionCols).
			AddRow(int64(1), int64(3), int64(10), "user-1", "green", safety.ReasonNoEmergencyIndications,
				"", false, "dermatology", "Matched keywords: rash",
				[]byte(`["dermatology"]`), "clarification", []byte(`{"symptom":"mentioned"}`), []byte(`["duration","severity"]`), 0.9,
				"", ModelName, true, now))

	got, err := NewPGRepository(mock).ConversationInteractions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	mi := got[0]
	assert.Equal(t, safety.RiskGreen, mi.RiskLevel)
	assert.Equal(t, PhaseClarification, mi.Phase)
	assert.Equal(t, []string{"dermatology"}, mi.AllDomains)
	assert.True(t, mi.Slots.Has(SlotSymptom))
	assert.Equal(t, []string{SlotDuration, SlotSeverity}, mi.MissingSlots)

	state := foldThread(got)
	assert.True(t, state.clarificationAsked)
	assert.Equal(t, "dermatology", state.lockedDomain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM chat_messages WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPGRepository(mock).Message(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInteractionsForMessages(t *testing.T) {
	t.Run("no ids skips the query", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		got, err := NewPGRepository(mock).InteractionsForMessages(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keyed by chat message", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		now := time.Now().UTC()
		mock.ExpectQuery(`chat_message_id = ANY\(\$1\)`).
			WithArgs([]int64{10, 11}).
			WillReturnRows(pgxmock.NewRows(interactionCols).
				AddRow(int64(1), int64(3), int64(10), "user-1", "red", safety.ReasonEmergencySymptom,
					"chest pain", true, "cardiology", "",
					[]byte(`["cardiology"]`), "escalated", []byte(`{}`), []byte(`[]`), 0.95,
					"", ModelName, true, now))

		got, err := NewPGRepository(mock).InteractionsForMessages(context.Background(), []int64{10, 11})
		require.NoError(t, err)
		require.Contains(t, got, int64(10))
		assert.NotContains(t, got, int64(11))
		assert.True(t, got[10].EmergencyDetected)
		assert.Equal(t, "chest pain", got[10].RiskTrigger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
