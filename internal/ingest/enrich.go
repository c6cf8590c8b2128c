package ingest

import (
	"strings"

	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/internal/routing"
)

const (
	ContentTypeEmergency   = "emergency"
	ContentTypeEducational = "educational"
)

var (
	highAuthoritySources   = []string{"cdc", "nih", "medline", "nlm"}
	mediumAuthoritySources = []string{"hospital", "clinic", "handbook"}
	emergencyPhrases       = []string{"seek immediate", "emergency", "call 911"}
)

// InferAuthority rates a source 3 for public health agencies, 2 for
// clinical handbooks and 1 otherwise.
func InferAuthority(source string) int {
	s := strings.ToLower(source)
	switch {
	case containsAny(s, highAuthoritySources):
		return 3
	case containsAny(s, mediumAuthoritySources):
		return 2
	default:
		return 1
	}
}

func InferContentType(content string) string {
	if containsAny(strings.ToLower(content), emergencyPhrases) {
		return ContentTypeEmergency
	}
	return ContentTypeEducational
}

// Enrich fills metadata the source did not provide. Fields already set are
// left alone, except that a "general" domain is inferred again.
func Enrich(doc retrieval.Document) retrieval.Document {
	if routing.IsGeneral(doc.MedicalDomain) {
		text := "SOURCE: " + doc.Source + "\nTITLE: " + doc.Title + "\nCONTENT: " + doc.Content
		doc.MedicalDomain, _ = routing.Infer(text)
	}
	if doc.AuthorityLevel == nil {
		level := InferAuthority(doc.Source)
		doc.AuthorityLevel = &level
	}
	if doc.ContentType == "" {
		doc.ContentType = InferContentType(doc.Content)
		doc.IsEmergency = doc.ContentType == ContentTypeEmergency
	}
	if doc.PublishedBy == "" {
		doc.PublishedBy = doc.Source
	}
	return doc
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
