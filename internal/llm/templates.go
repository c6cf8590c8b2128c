package llm

import (
	"regexp"
	"strings"
	"unicode"
)

const systemPrompt = "You are an AI medical assistant.\n" +
	"You are NOT a doctor.\n\n" +
	"Rules:\n" +
	"- Never give a diagnosis\n" +
	"- Never prescribe medication\n" +
	"- Never claim certainty\n" +
	"- Always recommend consulting a licensed doctor\n" +
	"- Escalate emergencies immediately"

const groundingRules = "Grounding rules:\n" +
	"- If medical context is provided, answer using ONLY that context.\n" +
	"- If the context does not contain the answer, say you don't have enough reliable information.\n" +
	"- Do NOT invent causes, treatments, or statistics.\n" +
	"- Keep it short, practical, and safety-first.\n\n"

const structuredFormatRules = "Output format (strict):\n" +
	"1) **What this could mean (general):**\n- ...\n" +
	"2) **What you can do now (safe steps):**\n- ...\n" +
	"3) **Red flags: seek urgent care now if**\n- ...\n" +
	"4) **To help me guide you, reply with:**\n- ..."

const contextHeader = "AUTHORITATIVE MEDICAL CONTEXT (use only this):\n\n"

const (
	notEnoughInformation = "I don’t have enough reliable information to answer that safely. Please consult a licensed doctor."

	offlineUngrounded = "I understand your concern. I can’t provide a diagnosis, but I can share general guidance.\n\n" +
		"If your symptoms are severe, worsening, or you have red-flag signs (fainting, chest pain, " +
		"confusion, weakness, trouble breathing), seek urgent medical care.\n\n" +
		"To help, tell me:\n" +
		"- Your age\n" +
		"- How long this has been happening\n" +
		"- Fever, vomiting, or dehydration?\n" +
		"- Any medicines taken recently"

	offlineNoBullets = "Based on trusted medical sources, I found some relevant information, " +
		"but it may not directly answer your question.\n\n" +
		"If symptoms are severe or worsening, seek medical care."

	strokeWarningSigns = "Warning signs of stroke (act FAST):\n\n" +
		"FAST:\n" +
		"- F: Face drooping\n" +
		"- A: Arm weakness (one side)\n" +
		"- S: Speech difficulty (slurred / unable to speak)\n" +
		"- T: Time to call emergency services immediately\n\n" +
		"Other possible warning signs:\n" +
		"- Sudden numbness or weakness (especially one side)\n" +
		"- Sudden confusion or trouble understanding\n" +
		"- Sudden trouble seeing in one or both eyes\n" +
		"- Sudden severe headache (worst headache) with no known cause\n" +
		"- Sudden trouble walking, dizziness, loss of balance/coordination\n\n" +
		"What to do right now:\n" +
		"- Call emergency services immediately\n" +
		"- Note the time symptoms started (or last known well)\n" +
		"- Do not wait for symptoms to improve\n"

	genericWarningSigns = "Here are important warning signs to watch for:\n\n" +
		"- Sudden or severe symptoms\n" +
		"- Trouble breathing\n" +
		"- Fainting or severe dizziness\n" +
		"- New chest pain or pressure\n" +
		"- Confusion, severe weakness, or one-sided symptoms\n\n" +
		"If these happen, seek urgent medical care immediately."
)

var (
	warningPhrases       = []string{"warning signs", "signs of", "symptoms of", "what are the symptoms"}
	warningTopics        = []string{"stroke", "heart attack", "seizure"}
	replyMedicationTerms = []string{
		"can i take", "together", "with", "interaction", "side effect", "side effects",
		"dose", "dosage", "medicine", "medication", "drug", "tablet", "pill",
		"antibiotic", "antibiotics", "warfarin", "ibuprofen", "paracetamol",
		"acetaminophen", "metformin", "insulin",
	}

	medquadPrefixRe = regexp.MustCompile(`(?is)^question:\s.*?\nanswer:\s*`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// emergencyMessage is the fixed urgent-care reply. trigger is the phrase
// that tripped the safety classifier.
func emergencyMessage(trigger string) string {
	trig := strings.TrimSpace(trigger)
	if trig == "" {
		trig = "These symptoms"
	}
	return "⚠️ " + titleCase(trig) + " can be a medical emergency.\n\n" +
		"Please get urgent medical help now:\n" +
		"- Call your local emergency number immediately\n" +
		"- If possible, do NOT drive yourself; ask someone to help you get care\n\n" +
		"Quick check (reply with yes/no):\n" +
		"1) Trouble breathing or severe shortness of breath?\n" +
		"2) Fainting, severe dizziness, or confusion?\n" +
		"3) Sweating, nausea/vomiting, or feeling very weak?\n" +
		"4) Pain spreading to arm/jaw/back OR sudden weakness on one side?\n" +
		"5) Did it start suddenly or get worse quickly?\n\n" +
		"If any answer is YES, treat this as urgent right now."
}

// titleCase upper-cases the first letter of every word and lower-cases
// the rest. A word starts after any non-letter.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func isHighSeverityInformational(message string) bool {
	t := strings.ToLower(message)
	return containsAny(t, warningPhrases) && containsAny(t, warningTopics)
}

func highSeverityInformationalReply(message string) string {
	if strings.Contains(strings.ToLower(message), "stroke") {
		return strokeWarningSigns
	}
	return genericWarningSigns
}

func isMedicationReply(message string) bool {
	return containsAny(strings.ToLower(message), replyMedicationTerms)
}

// cleanPassage strips the MedQuAD "Question: ... Answer:" preamble and
// collapses whitespace.
func cleanPassage(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(medquadPrefixRe.ReplaceAllString(text, ""))
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// summarise keeps the first two sentences of a passage.
func summarise(passage string) string {
	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(passage, "\n", " "), ".") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	s := strings.TrimSpace(strings.Join(parts, ". "))
	if s != "" && !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func dedupeSentences(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, s := range lines {
		key := spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// offlineGroundedReply assembles a bulleted answer straight from the
// retrieved passages.
func offlineGroundedReply(message string, passages []string) string {
	var cleaned []string
	for i, p := range passages {
		if i == 8 {
			break
		}
		if c := cleanPassage(p); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) > 6 {
		cleaned = cleaned[:6]
	}

	var short []string
	for _, c := range cleaned {
		if s := summarise(c); s != "" {
			short = append(short, s)
		}
	}
	short = dedupeSentences(short)
	if len(short) == 0 {
		return offlineNoBullets
	}
	if len(short) > 5 {
		short = short[:5]
	}
	bullets := make([]string, 0, len(short))
	for _, s := range short {
		bullets = append(bullets, "- "+s)
	}
	body := strings.Join(bullets, "\n\n")
	if isMedicationReply(message) {
		return "Medication safety information from trusted sources:\n\n" + body +
			"\n\nIf this is about interactions or bleeding risk, confirm with your doctor/pharmacist."
	}
	return "Here’s what trusted medical sources say:\n\n" + body +
		"\n\nIf symptoms are severe or worsening, seek medical care."
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
