package conversation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	titleWords   = 6
	defaultTitle = "Medical conversation"
)

var titlePunctuation = regexp.MustCompile(`[^\w\s]`)

// GenerateTitle derives a short conversation title from the first message.
func GenerateTitle(message string) string {
	words := strings.Fields(titlePunctuation.ReplaceAllString(message, ""))
	if len(words) == 0 {
		return defaultTitle
	}
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	return capitalize(strings.Join(words, " "))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
