package conversation

import (
	"context"

	"github.com/wolfman30/medibot/internal/escalation"
)

// Tx is the unit of work for a single chat turn. Every write a turn makes
// goes through one Tx so the turn commits or rolls back as a whole.
type Tx interface {
	ConversationForUser(ctx context.Context, userID string, id int64) (Conversation, error)
	CreateConversation(ctx context.Context, userID string) (Conversation, error)
	SetConversationTitle(ctx context.Context, id int64, title string) error
	EndConversation(ctx context.Context, id int64) error

	InsertMessage(ctx context.Context, m Message) (Message, error)
	// RecentMessages returns up to limit messages created before beforeID,
	// oldest first.
	RecentMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]Message, error)

	// ConversationInteractions returns the conversation's interactions,
	// oldest first.
	ConversationInteractions(ctx context.Context, conversationID int64) ([]Interaction, error)
	InsertInteraction(ctx context.Context, mi Interaction) (Interaction, error)
	UpdateInteractionPhase(ctx context.Context, id int64, phase Phase) error
	UpdateInteractionOutcome(ctx context.Context, id int64, confidence float64, reasoning string) error

	InsertEscalation(ctx context.Context, e escalation.Escalation) (escalation.Escalation, error)
}

// Repository is the persistence boundary of the conversation service.
type Repository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Message(ctx context.Context, id int64) (Message, error)
	PreviousUserMessage(ctx context.Context, conversationID, beforeID int64) (Message, error)
	NextAssistantMessage(ctx context.Context, conversationID, afterID int64) (Message, error)
	InteractionForMessage(ctx context.Context, messageID int64) (Interaction, error)

	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	ConversationForUser(ctx context.Context, userID string, id int64) (Conversation, error)
	ConversationMessages(ctx context.Context, conversationID int64) ([]Message, error)
	ConversationInteractions(ctx context.Context, conversationID int64) ([]Interaction, error)
	InteractionsForMessages(ctx context.Context, messageIDs []int64) (map[int64]Interaction, error)

	InsertEscalation(ctx context.Context, e escalation.Escalation) (escalation.Escalation, error)
}
