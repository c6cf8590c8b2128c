package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
)

// Querier is the subset of pgx used by the document store. Both pools and
// transactions satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGDocumentStore reads and writes medical_documents in Postgres with the
// pgvector extension.
type PGDocumentStore struct {
	db Querier
}

var _ DocumentStore = (*PGDocumentStore)(nil)

func NewPGDocumentStore(db Querier) *PGDocumentStore {
	if db == nil {
		return nil
	}
	return &PGDocumentStore{db: db}
}

const documentColumns = "id, title, source, content, embedding::text, medical_domain, content_type, " +
	"authority_level, is_emergency, published_by, source_file, page_number, chunk_index"

// whereBuilder accumulates SQL predicates with positional args.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) keywordClause(kw string) string {
	p := w.arg("%" + kw + "%")
	return fmt.Sprintf("(title ILIKE %s OR content ILIKE %s)", p, p)
}

func (w *whereBuilder) apply(f CandidateFilter) {
	if f.Domain != "" {
		w.clauses = append(w.clauses, "medical_domain = "+w.arg(f.Domain))
	}
	if f.EmergencyOnly {
		w.clauses = append(w.clauses, "is_emergency = TRUE")
	}
	if f.MinAuthority > 0 {
		p := w.arg(f.MinAuthority)
		if f.ExcludeUnrated {
			w.clauses = append(w.clauses, "authority_level >= "+p)
		} else {
			w.clauses = append(w.clauses, fmt.Sprintf("(authority_level >= %s OR authority_level IS NULL)", p))
		}
	}
	for _, kw := range f.AllKeywords {
		w.clauses = append(w.clauses, w.keywordClause(kw))
	}
	if len(f.AnyKeywords) > 0 {
		alts := make([]string, 0, len(f.AnyKeywords))
		for _, kw := range f.AnyKeywords {
			alts = append(alts, w.keywordClause(kw))
		}
		w.clauses = append(w.clauses, "("+strings.Join(alts, " OR ")+")")
	}
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (s *PGDocumentStore) NearestDocuments(ctx context.Context, filter CandidateFilter, embedding []float32, limit int) ([]Document, error) {
	var w whereBuilder
	w.apply(filter)
	vec := w.arg(pgvector.NewVector(embedding))
	lim := w.arg(limit)
	query := "SELECT " + documentColumns + " FROM medical_documents" + w.sql() +
		" ORDER BY embedding <=> " + vec + " LIMIT " + lim
	docs, err := s.queryDocuments(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval: nearest documents: %w", err)
	}
	return docs, nil
}

func (s *PGDocumentStore) MatchDocuments(ctx context.Context, filter CandidateFilter, limit int) ([]Document, error) {
	var w whereBuilder
	w.apply(filter)
	lim := w.arg(limit)
	query := "SELECT " + documentColumns + " FROM medical_documents" + w.sql() + " ORDER BY id LIMIT " + lim
	docs, err := s.queryDocuments(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval: match documents: %w", err)
	}
	return docs, nil
}

func (s *PGDocumentStore) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d                                     Document
			embedding, domain, contentType, pubBy *string
			sourceFile                            *string
			authority, page, chunk                *int32
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &embedding, &domain, &contentType,
			&authority, &d.IsEmergency, &pubBy, &sourceFile, &page, &chunk); err != nil {
			return nil, err
		}
		if embedding != nil {
			var v pgvector.Vector
			if err := v.Scan(*embedding); err != nil {
				return nil, fmt.Errorf("decode embedding for document %d: %w", d.ID, err)
			}
			d.Embedding = v.Slice()
		}
		d.MedicalDomain = deref(domain)
		d.ContentType = deref(contentType)
		d.PublishedBy = deref(pubBy)
		d.SourceFile = deref(sourceFile)
		d.AuthorityLevel = intPtr(authority)
		d.PageNumber = intPtr(page)
		d.ChunkIndex = intPtr(chunk)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// InsertDocuments stores new evidence documents, skipping chunks whose
// provenance (source file, page, chunk index) already exists. It returns
// the number of rows written.
func (s *PGDocumentStore) InsertDocuments(ctx context.Context, docs []Document) (int, error) {
	const query = `
		INSERT INTO medical_documents (title, source, content, embedding, medical_domain, content_type,
			authority_level, is_emergency, published_by, source_file, page_number, chunk_index)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
		ON CONFLICT (source_file, page_number, chunk_index) DO NOTHING
	`
	written := 0
	for _, d := range docs {
		var embedding any
		if len(d.Embedding) > 0 {
			embedding = pgvector.NewVector(d.Embedding)
		}
		tag, err := s.db.Exec(ctx, query, d.Title, d.Source, d.Content, embedding, d.MedicalDomain, d.ContentType,
			d.AuthorityLevel, d.IsEmergency, d.PublishedBy, d.SourceFile, d.PageNumber, d.ChunkIndex)
		if err != nil {
			return written, fmt.Errorf("retrieval: insert document %q: %w", d.Title, err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
