// Package safety classifies the medical risk of a free-text message with a
// fixed, ordered rule table. Classification is pure: no state, no I/O.
package safety

import (
	"strings"
)

// RiskLevel is the deterministic safety classification of a message.
type RiskLevel string

const (
	RiskGreen RiskLevel = "green"
	// RiskAmber is reserved; no rule currently produces it.
	RiskAmber RiskLevel = "amber"
	RiskRed   RiskLevel = "red"
)

// Reasons reported by Assess.
const (
	ReasonSelfHarm               = "Self-harm risk detected"
	ReasonPregnancyRedFlag       = "Pregnancy red-flag symptom detected"
	ReasonPediatricRedFlag       = "Pediatric red-flag symptom detected"
	ReasonEmergencySymptom       = "Emergency symptom detected"
	ReasonHighSeverityInfo       = "Informational query about a high-severity topic"
	ReasonHighSeverityNonInfo    = "High-severity topic mentioned in a non-informational context"
	ReasonInformational          = "Informational medical query"
	ReasonNoEmergencyIndications = "No emergency indicators detected"
)

// Signal is the result of a risk assessment. Trigger is empty when no
// keyword forced the level.
type Signal struct {
	Level   RiskLevel `json:"risk_level"`
	Trigger string    `json:"triggered_keyword,omitempty"`
	Reason  string    `json:"reason"`
}

// Emergency reports whether the signal requires emergency handling.
func (s Signal) Emergency() bool {
	return s.Level == RiskRed
}

// Rule tables are ordered so the reported trigger is stable.
var (
	selfHarmPhrases = []string{"suicidal", "kill myself", "self harm"}

	pregnancyContext  = []string{"pregnant", "pregnancy"}
	pregnancyRedFlags = []string{"heavy bleeding", "bleeding heavily", "severe abdominal pain", "severe pain"}

	pediatricContext  = []string{"baby", "infant", "newborn", "3 month old", "3-month-old"}
	pediatricRedFlags = []string{"not feeding", "not eating", "very sleepy", "lethargic", "high fever"}

	emergencySymptomPhrases = []string{
		// cardiac and breathing
		"chest pain",
		"chest tightness",
		"difficulty breathing",
		"trouble breathing",
		"can't breathe",
		"cannot breathe",
		"shortness of breath",
		"breathing problem",
		"severe shortness of breath",
		// neurological
		"unconscious",
		"loss of consciousness",
		"fainted",
		"fainting",
		"seizure",
		"slurred speech",
		"face droop",
		"one-sided weakness",
		"weakness on one side",
		"sudden weakness",
		// bleeding
		"bleeding heavily",
		"severe bleeding",
		"heavy bleeding",
		"bleeding a lot",
		"vomiting blood",
		"throwing up blood",
		"blood in vomit",
		"black stools",
		"tarry stools",
		// anaphylaxis
		"throat swelling",
		"swollen throat",
		"lip swelling",
		"lips swelling",
		"face swelling",
		"swelling and cannot breathe",
		"swelling and can't breathe",
		// poisoning
		"overdose",
		"took too much",
		"poisoning",
		"severe pain",
	}

	// Emergencies only when the user is not asking about them.
	highSeverityTopics = []string{"stroke", "heart attack"}

	informationalPhrases = []string{
		"what are",
		"what is",
		"what causes",
		"warning signs of",
		"symptoms of",
		"signs of",
		"causes of",
		"how does",
		"explain",
	}
)

// Normalize lower-cases text and collapses runs of whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// IsInformational reports whether the message is phrased as a general
// question about a condition rather than a report of current symptoms.
func IsInformational(text string) bool {
	return firstMatch(Normalize(text), informationalPhrases) != ""
}

// Assess classifies text. The first matching rule wins.
func Assess(text string) Signal {
	normalized := Normalize(text)
	informational := firstMatch(normalized, informationalPhrases) != ""

	if kw := firstMatch(normalized, selfHarmPhrases); kw != "" {
		return Signal{Level: RiskRed, Trigger: kw, Reason: ReasonSelfHarm}
	}

	if firstMatch(normalized, pregnancyContext) != "" {
		if kw := firstMatch(normalized, pregnancyRedFlags); kw != "" {
			return Signal{Level: RiskRed, Trigger: kw, Reason: ReasonPregnancyRedFlag}
		}
	}

	if firstMatch(normalized, pediatricContext) != "" {
		if kw := firstMatch(normalized, pediatricRedFlags); kw != "" {
			return Signal{Level: RiskRed, Trigger: kw, Reason: ReasonPediatricRedFlag}
		}
	}

	if kw := firstMatch(normalized, emergencySymptomPhrases); kw != "" {
		return Signal{Level: RiskRed, Trigger: kw, Reason: ReasonEmergencySymptom}
	}

	if kw := firstMatch(normalized, highSeverityTopics); kw != "" {
		if informational {
			return Signal{Level: RiskGreen, Reason: ReasonHighSeverityInfo}
		}
		return Signal{Level: RiskRed, Trigger: kw, Reason: ReasonHighSeverityNonInfo}
	}

	if informational {
		return Signal{Level: RiskGreen, Reason: ReasonInformational}
	}
	return Signal{Level: RiskGreen, Reason: ReasonNoEmergencyIndications}
}

// DetectEmergency is shorthand for Assess(text).Emergency().
func DetectEmergency(text string) bool {
	return Assess(text).Emergency()
}

func firstMatch(text string, phrases []string) string {
	if text == "" {
		return ""
	}
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return phrase
		}
	}
	return ""
}
