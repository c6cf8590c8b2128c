package retrieval

import (
	"math"
	"strings"
)

const (
	keywordHitBonus      = 0.15
	titleHitBonus        = 0.25
	authorityWeight      = 0.03
	domainMatchBonus     = 0.05
	mandatoryTitleBoost  = 0.35
	confidenceBestWeight = 0.7
	confidenceCoverage   = 0.3
)

// CosineSimilarity returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordBonus credits every keyword found in the document; title hits
// earn an extra bonus on top of the base hit.
func keywordBonus(doc Document, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	title := normalizeText(doc.Title)
	content := normalizeText(doc.Content)

	var hits, strong int
	for _, kw := range keywords {
		switch {
		case strings.Contains(title, kw):
			hits++
			strong++
		case strings.Contains(content, kw):
			hits++
		}
	}
	return float64(hits)*keywordHitBonus + float64(strong)*titleHitBonus
}

// AuthorityLevel returns the explicit level or derives one from the
// source name.
func AuthorityLevel(source string, explicit *int) int {
	if explicit != nil {
		return *explicit
	}
	s := strings.ToLower(strings.TrimSpace(source))
	switch {
	case s == "":
		return 1
	case strings.Contains(s, "medquad"):
		return 2
	case strings.Contains(s, "cdc"), strings.Contains(s, "who"), strings.Contains(s, "nih"):
		return 3
	default:
		return 1
	}
}

// Score ranks a candidate against the query embedding and keywords.
func Score(doc Document, queryVec []float32, kw Keywords, domain string) float64 {
	score := CosineSimilarity(doc.Embedding, queryVec)
	score += keywordBonus(doc, kw.All())
	score += authorityWeight * float64(AuthorityLevel(doc.Source, doc.AuthorityLevel))
	if domain != "" && doc.MedicalDomain == domain {
		score += domainMatchBonus
	}
	if len(kw.Mandatory) > 0 {
		title := normalizeText(doc.Title)
		all := true
		for _, k := range kw.Mandatory {
			if !strings.Contains(title, k) {
				all = false
				break
			}
		}
		if all {
			score += mandatoryTitleBoost
		}
	}
	return score
}

// Confidence blends the best score with how many of the requested slots
// were filled. It is non-decreasing in both inputs.
func Confidence(best float64, returned, limit int) float64 {
	if limit < 1 {
		limit = 1
	}
	coverage := float64(returned) / float64(limit)
	return clamp01(best*confidenceBestWeight + coverage*confidenceCoverage)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
