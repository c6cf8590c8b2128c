package conversation

import (
	"regexp"
	"sort"
	"strings"
)

// Slot names tracked across a conversation.
const (
	SlotSymptom     = "symptom"
	SlotDuration    = "duration"
	SlotSeverity    = "severity"
	SlotAge         = "age"
	SlotProgression = "progression"
)

const slotMentioned = "mentioned"

// RequiredSlots must all be present before a symptom question is answered
// without first asking for clarification.
var RequiredSlots = []string{SlotSymptom, SlotDuration, SlotSeverity}

var (
	ageRe            = regexp.MustCompile(`\b(years?|yo|yrs?)\b`)
	durationWords    = []string{"days", "weeks", "months", "hours"}
	severityWords    = []string{"mild", "moderate", "severe", "worst"}
	progressionWords = []string{"worse", "worsening", "better", "improving"}
)

// Slots maps a slot name to a presence marker. Slots only grow.
type Slots map[string]string

// Has reports whether the slot has been seen.
func (s Slots) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Mark records the slot as present.
func (s Slots) Mark(name string) {
	s[name] = slotMentioned
}

// Merge returns the union of s and other without mutating either.
func (s Slots) Merge(other Slots) Slots {
	out := make(Slots, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Names returns the present slot names in sorted order.
func (s Slots) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ExtractSlots detects presence-only slots in a message. The symptom slot
// is never extracted here; callers mark it once a concrete complaint is
// identified.
func ExtractSlots(text string) Slots {
	t := strings.ToLower(text)
	slots := Slots{}
	if ageRe.MatchString(t) {
		slots.Mark(SlotAge)
	}
	if containsAny(t, durationWords) {
		slots.Mark(SlotDuration)
	}
	if containsAny(t, severityWords) {
		slots.Mark(SlotSeverity)
	}
	if containsAny(t, progressionWords) {
		slots.Mark(SlotProgression)
	}
	return slots
}

// MissingSlots returns the required slots absent from s, in priority order.
func MissingSlots(s Slots) []string {
	missing := make([]string, 0, len(RequiredSlots))
	for _, name := range RequiredSlots {
		if !s.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
