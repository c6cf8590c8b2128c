// Package intent holds the deterministic message predicates the chat
// pipeline uses to route a turn: small talk, vague follow-ups, medication
// questions and informational phrasing.
package intent

import (
	"strings"
)

var (
	greetings        = map[string]struct{}{"hi": {}, "hello": {}, "hey": {}, "hii": {}, "hiii": {}, "yo": {}}
	greetingPrefixes = []string{"hi ", "hello ", "hey "}
	thanksMarkers    = []string{"thanks", "thank you", "thx"}
	goodbyeMarkers   = []string{"bye", "goodbye", "see you", "take care"}
	capabilityAsks   = []string{"what can you do", "help", "how do you work", "what do you do"}

	vaguePatterns = []string{
		"what do i do",
		"what should i do",
		"what do you suggest",
		"what next",
		"what now",
		"next",
		"help",
		"tell me more",
		"more",
		"why",
		"how",
		"what can i do",
	}
	vagueShortForms = map[string]struct{}{"why": {}, "how": {}, "what": {}, "help": {}, "next": {}}

	knownConditions = []string{
		"diabetes",
		"hypertension",
		"migraine",
		"asthma",
		"cancer",
		"flu",
		"covid",
		"pneumonia",
		"stroke",
		"heart attack",
	}

	medicationMarkers = []string{
		"medicine", "medication", "drug", "tablet", "pill",
		"dose", "dosage",
		"side effect", "side effects",
		"interaction", "interactions",
		"can i take", "can we take",
		"together", "with",
		"overdose", "missed dose",
		"antibiotic", "antibiotics",
		"warfarin", "ibuprofen", "paracetamol", "acetaminophen",
		"metformin", "insulin",
	}

	informationalPhrases = []string{
		"what are", "what is", "what causes", "warning signs of",
		"symptoms of", "signs of", "causes of", "how does", "explain",
		"what happens", "how to know", "how do i know",
	}

	highSeverityTopics = []string{
		"stroke", "heart attack", "myocardial infarction", "seizure",
		"pulmonary embolism", "blood clot", "aneurysm",
	}
)

func clean(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// IsGreeting matches short salutations like "hi" or "hello there".
func IsGreeting(text string) bool {
	t := clean(text)
	if _, ok := greetings[t]; ok {
		return true
	}
	for _, prefix := range greetingPrefixes {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func IsThanks(text string) bool {
	return containsAny(clean(text), thanksMarkers)
}

func IsGoodbye(text string) bool {
	return containsAny(clean(text), goodbyeMarkers)
}

// IsCapabilityQuery matches questions about what the assistant can do.
func IsCapabilityQuery(text string) bool {
	return containsAny(clean(text), capabilityAsks)
}

// IsVagueFollowup reports messages that only make sense in light of the
// previous turn ("what should I do?", "tell me more").
func IsVagueFollowup(text string) bool {
	t := clean(text)
	if _, ok := vagueShortForms[t]; ok {
		return true
	}
	return containsAny(t, vaguePatterns)
}

// HasExplicitCondition reports whether the message names a known condition.
func HasExplicitCondition(text string) bool {
	return containsAny(clean(text), knownConditions)
}

// IsMedicationQuery matches questions about drugs, doses and interactions.
func IsMedicationQuery(text string) bool {
	return containsAny(clean(text), medicationMarkers)
}

// IsInformational is the chat-level informational check. It is broader than
// the safety classifier's and also accepts "what happens" style questions.
func IsInformational(text string) bool {
	return containsAny(clean(text), informationalPhrases)
}

func IsHighSeverityTopic(text string) bool {
	return containsAny(clean(text), highSeverityTopics)
}
