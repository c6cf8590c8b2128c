package notify

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// DoctorAlert describes an escalation handed to the on-call doctor inbox.
type DoctorAlert struct {
	EscalationID   int64
	ConversationID int64
	UserID         string
	Reason         string
	Notes          string
	CreatedAt      time.Time
}

// AlertEmail renders the plain text and HTML bodies of a doctor alert.
func AlertEmail(to string, a DoctorAlert) EmailMessage {
	subject := fmt.Sprintf("Doctor escalation #%d: %s", a.EscalationID, a.Reason)

	lines := []string{
		"A conversation was escalated for clinician review.",
		"",
		fmt.Sprintf("Escalation: %d", a.EscalationID),
		fmt.Sprintf("Conversation: %d", a.ConversationID),
		fmt.Sprintf("User: %s", a.UserID),
		fmt.Sprintf("Reason: %s", a.Reason),
	}
	if strings.TrimSpace(a.Notes) != "" {
		lines = append(lines, fmt.Sprintf("Notes: %s", a.Notes))
	}
	if !a.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Created: %s", a.CreatedAt.UTC().Format(time.RFC1123)))
	}
	body := strings.Join(lines, "\n")

	var b strings.Builder
	b.WriteString("<p>A conversation was escalated for clinician review.</p><ul>")
	for _, line := range lines[2:] {
		b.WriteString("<li>" + html.EscapeString(line) + "</li>")
	}
	b.WriteString("</ul>")

	return EmailMessage{To: to, ToName: "On-call doctor", Subject: subject, Body: body, HTML: b.String()}
}
