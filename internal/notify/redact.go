package notify

import "regexp"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// ScrubPII masks email addresses and phone numbers in free text that leaves
// the system in alerts or queue events.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}
