package conversation

var clarificationQuestions = map[string]string{
	SlotSymptom:  "Can you describe the main symptom in a bit more detail?",
	SlotDuration: "How long have you been experiencing this? (for example: minutes, hours, days, weeks)",
	SlotSeverity: "How severe is it right now? (mild, moderate, or severe)",
}

const fallbackClarification = "Can you share a bit more detail so I can assess this more accurately?"

// ClarificationQuestion picks the single question for the highest-priority
// missing slot.
func ClarificationQuestion(missing []string) string {
	for _, name := range RequiredSlots {
		for _, m := range missing {
			if m == name {
				return clarificationQuestions[name]
			}
		}
	}
	return fallbackClarification
}
