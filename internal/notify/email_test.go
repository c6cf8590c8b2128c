package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medibot/pkg/logging"
)

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "bot@example.com"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "bot@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "AI Medibot", sender.fromName)

	custom := NewSendGridSender(SendGridConfig{APIKey: "key", FromName: "Triage"}, nil)
	assert.Equal(t, "Triage", custom.fromName)
}

type fakeSendGrid struct {
	got    *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.got = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSenderSend(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeSendGrid
		wantErr string
	}{
		{name: "accepted", client: &fakeSendGrid{status: 202}},
		{name: "rejected", client: &fakeSendGrid{status: 401}, wantErr: "status 401"},
		{name: "transport", client: &fakeSendGrid{err: errors.New("dial tcp")}, wantErr: "dial tcp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SendGridSender{client: tt.client, fromEmail: "bot@example.com", fromName: "AI Medibot", logger: logging.Default()}
			err := s.Send(context.Background(), EmailMessage{To: "doc@example.com", Subject: "hi", Body: "text"})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tt.client.got)
			assert.Equal(t, "hi", tt.client.got.Subject)
		})
	}
}

func TestSendGridSenderNilClient(t *testing.T) {
	var s *SendGridSender
	assert.Error(t, s.Send(context.Background(), EmailMessage{To: "a@example.com"}))
}

type fakeSES struct {
	in *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))

	api := &fakeSES{}
	s := NewSESSender(api, SESConfig{FromEmail: "bot@example.com"}, nil)
	require.NoError(t, s.Send(context.Background(), EmailMessage{To: "doc@example.com", Subject: "alert", Body: "plain"}))

	assert.Equal(t, "AI Medibot <bot@example.com>", aws.ToString(api.in.FromEmailAddress))
	assert.Equal(t, []string{"doc@example.com"}, api.in.Destination.ToAddresses)
	assert.Equal(t, "plain", aws.ToString(api.in.Content.Simple.Body.Text.Data))
	assert.Nil(t, api.in.Content.Simple.Body.Html)
}

func TestStubEmailSender(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "x@example.com"}))
}

func TestAlertEmail(t *testing.T) {
	msg := AlertEmail("doc@example.com", DoctorAlert{
		EscalationID:   12,
		ConversationID: 4,
		UserID:         "user-1",
		Reason:         "emergency detected",
		Notes:          "Emergency symptom <detected>",
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "doc@example.com", msg.To)
	assert.Equal(t, "Doctor escalation #12: emergency detected", msg.Subject)
	assert.Contains(t, msg.Body, "Conversation: 4")
	assert.Contains(t, msg.Body, "Notes: Emergency symptom <detected>")
	assert.Contains(t, msg.HTML, "&lt;detected&gt;")

	noNotes := AlertEmail("doc@example.com", DoctorAlert{EscalationID: 1, Reason: "manual_user_request"})
	assert.NotContains(t, noNotes.Body, "Notes:")
	assert.NotContains(t, noNotes.Body, "Created:")
}
