package retrieval

import "context"

// CandidateFilter narrows the candidate set fetched from a DocumentStore.
type CandidateFilter struct {
	Domain        string
	EmergencyOnly bool
	MinAuthority  int
	// ExcludeUnrated drops documents without an authority level when
	// MinAuthority is set.
	ExcludeUnrated bool
	// AllKeywords must each appear in the title or content.
	AllKeywords []string
	// AnyKeywords requires at least one to appear in the title or content.
	AnyKeywords []string
}

// DocumentStore fetches candidate evidence documents.
type DocumentStore interface {
	// NearestDocuments returns up to limit documents ordered by cosine
	// distance to embedding.
	NearestDocuments(ctx context.Context, filter CandidateFilter, embedding []float32, limit int) ([]Document, error)
	// MatchDocuments returns up to limit documents matching the filter in
	// storage order.
	MatchDocuments(ctx context.Context, filter CandidateFilter, limit int) ([]Document, error)
}

// mergeDocuments unions candidate lists by document id, keeping the first
// position each id was seen at and the latest copy of the document.
func mergeDocuments(lists ...[]Document) []Document {
	index := make(map[int64]int)
	var out []Document
	for _, list := range lists {
		for _, d := range list {
			if i, ok := index[d.ID]; ok {
				out[i] = d
				continue
			}
			index[d.ID] = len(out)
			out = append(out, d)
		}
	}
	return out
}
