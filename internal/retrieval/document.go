// Package retrieval implements hybrid keyword and vector retrieval over the
// medical evidence corpus, with authority and domain aware reranking.
package retrieval

// Document is one evidence chunk stored in medical_documents.
type Document struct {
	ID             int64
	Title          string
	Source         string
	Content        string
	Embedding      []float32
	MedicalDomain  string
	ContentType    string
	AuthorityLevel *int
	IsEmergency    bool
	PublishedBy    string
	SourceFile     string
	PageNumber     *int
	ChunkIndex     *int
}

// Citation is the provenance descriptor attached to a retrieved chunk.
type Citation struct {
	DocumentID     int64  `json:"document_id"`
	Title          string `json:"title"`
	Source         string `json:"source"`
	SourceFile     string `json:"source_file,omitempty"`
	PageNumber     *int   `json:"page_number"`
	ChunkIndex     *int   `json:"chunk_index"`
	MedicalDomain  string `json:"medical_domain,omitempty"`
	AuthorityLevel *int   `json:"authority_level"`
}

// Chunk is a ranked retrieval hit.
type Chunk struct {
	Number   int      `json:"chunk_number"`
	ID       int64    `json:"chunk_id"`
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Citation Citation `json:"citation"`
}

// Result is the outcome of a retrieval call. Confidence is in [0,1].
type Result struct {
	Chunks     []Chunk `json:"chunks"`
	Confidence float64 `json:"confidence"`
}

// Citations returns the citation of every chunk, in rank order.
func (r Result) Citations() []Citation {
	out := make([]Citation, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		out = append(out, c.Citation)
	}
	return out
}

// Passages returns the chunk texts in rank order.
func (r Result) Passages() []string {
	out := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		out = append(out, c.Content)
	}
	return out
}

// Query describes a retrieval request.
type Query struct {
	Text string
	// Domain restricts candidates to one medical domain unless Emergency is set.
	Domain string
	// Emergency restricts candidates to emergency documents.
	Emergency bool
	// MinAuthority, when > 0, drops documents rated below it. Unrated
	// documents still pass.
	MinAuthority int
	Limit        int
}

func citationFor(doc Document) Citation {
	return Citation{
		DocumentID:     doc.ID,
		Title:          doc.Title,
		Source:         doc.Source,
		SourceFile:     doc.SourceFile,
		PageNumber:     doc.PageNumber,
		ChunkIndex:     doc.ChunkIndex,
		MedicalDomain:  doc.MedicalDomain,
		AuthorityLevel: doc.AuthorityLevel,
	}
}
