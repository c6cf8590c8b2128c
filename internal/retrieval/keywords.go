package retrieval

import (
	"regexp"
	"strings"
)

const (
	maxMandatoryKeywords = 3
	maxOptionalKeywords  = 5
	minKeywordLength     = 3
)

var (
	topicPhraseRe = regexp.MustCompile(`(?:the\s+)?(symptoms|signs|treatment|treat|causes|cause)\s+(?:of|for)\s+([a-z0-9\s\-]+)`)
	tokenRe       = regexp.MustCompile(`[a-z0-9]+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	stopwords = toSet(
		"what", "are", "the", "is", "of", "in", "on", "for", "to", "and", "a", "an",
		"with", "without", "how", "when", "why", "can", "i", "my", "your", "me", "tell",
		"symptoms", "symptom", "signs", "sign", "cause", "causes", "treat", "treatment",
	)

	medicationMarkers = []string{
		"take", "tablet", "medicine", "drug", "dose", "dosage",
		"side effect", "side effects", "interaction", "with", "together", "combine",
		"warfarin", "ibuprofen", "paracetamol", "acetaminophen", "metformin", "antibiotic",
	}

	medicationNoise = toSet(
		"take", "with", "together", "combine", "medicine", "drug",
		"dose", "dosage", "tablet", "side", "effect", "effects",
		"interaction", "can", "should", "missed", "safe",
	)
)

// Keywords split a query into terms every candidate must contain and
// terms that only earn a bonus.
type Keywords struct {
	Mandatory []string
	Optional  []string
}

// All returns mandatory then optional keywords.
func (k Keywords) All() []string {
	out := make([]string, 0, len(k.Mandatory)+len(k.Optional))
	out = append(out, k.Mandatory...)
	return append(out, k.Optional...)
}

func normalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// ExtractKeywords pulls the topic of "symptoms of X" style phrasing as
// mandatory keywords and keeps the remaining content words as optional.
func ExtractKeywords(query string) Keywords {
	q := normalizeText(query)

	var mandatory []string
	if m := topicPhraseRe.FindStringSubmatch(q); m != nil {
		phrase := strings.Trim(strings.TrimSpace(m[2]), " ?.!:,;\"'")
		for _, tok := range strings.Fields(phrase) {
			if len(tok) >= minKeywordLength {
				mandatory = append(mandatory, tok)
			}
			if len(mandatory) == maxMandatoryKeywords {
				break
			}
		}
	}
	mandatory = unique(mandatory)
	mandatorySet := toSet(mandatory...)

	var optional []string
	for _, tok := range tokenRe.FindAllString(q, -1) {
		if _, stop := stopwords[tok]; stop || len(tok) < minKeywordLength {
			continue
		}
		if _, dup := mandatorySet[tok]; dup {
			continue
		}
		optional = append(optional, tok)
	}
	optional = unique(optional)
	if len(optional) > maxOptionalKeywords {
		optional = optional[:maxOptionalKeywords]
	}

	return Keywords{Mandatory: mandatory, Optional: optional}
}

// LooksLikeMedicationQuery reports queries that need lexical anchoring on
// several drug names at once.
func LooksLikeMedicationQuery(query string) bool {
	q := normalizeText(query)
	for _, m := range medicationMarkers {
		if strings.Contains(q, m) {
			return true
		}
	}
	return false
}

// medicationTerms strips generic medication vocabulary, leaving the drug
// or condition names.
func medicationTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		t = normalizeText(t)
		if len(t) < minKeywordLength {
			continue
		}
		if _, noise := medicationNoise[t]; noise {
			continue
		}
		out = append(out, t)
	}
	return unique(out)
}

func unique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func toSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
