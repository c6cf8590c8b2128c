package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wolfman30/medibot/internal/notify"
	"github.com/wolfman30/medibot/pkg/logging"
)

// Event is the queue payload published for every new escalation. Notes are
// scrubbed of contact details.
type Event struct {
	Type           string    `json:"type"`
	EscalationID   int64     `json:"escalation_id"`
	ConversationID int64     `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Reason         string    `json:"reason"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewEvent(e Escalation) Event {
	return Event{
		Type:           EventTypeCreated,
		EscalationID:   e.ID,
		ConversationID: e.ConversationID,
		UserID:         e.UserID,
		Reason:         e.Reason,
		Notes:          notify.ScrubPII(e.Notes),
		CreatedAt:      e.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends escalation events to an SQS queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("escalation: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("escalation: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("escalation: marshal event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("escalation: failed to send SQS message: %w", err)
	}
	return nil
}

// Notifier alerts the on-call inbox and publishes the escalation event. Both
// channels are optional.
type Notifier struct {
	email     notify.EmailSender
	recipient string
	publisher Publisher
	logger    *logging.Logger
}

func NewNotifier(email notify.EmailSender, recipient string, publisher Publisher, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{email: email, recipient: strings.TrimSpace(recipient), publisher: publisher, logger: logger}
}

// Notify attempts every configured channel and joins their errors.
func (n *Notifier) Notify(ctx context.Context, e Escalation) error {
	if n == nil {
		return nil
	}
	var errs []error
	if n.email != nil && n.recipient != "" {
		msg := notify.AlertEmail(n.recipient, notify.DoctorAlert{
			EscalationID:   e.ID,
			ConversationID: e.ConversationID,
			UserID:         e.UserID,
			Reason:         e.Reason,
			Notes:          notify.ScrubPII(e.Notes),
			CreatedAt:      e.CreatedAt,
		})
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, NewEvent(e)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		n.logger.Warn("escalation notification incomplete", "escalation_id", e.ID, "error", err)
		return err
	}
	return nil
}
