package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medibot/pkg/logging"
)

// BackendPGVector is the only supported vector backend.
const BackendPGVector = "pgvector"

const (
	defaultLimit        = 3
	candidateMultiplier = 20
)

var (
	ErrUnsupportedBackend = errors.New("retrieval: only the pgvector backend is supported")
	ErrNoDatabase         = errors.New("retrieval: document store is required")
)

var tracer = otel.Tracer("medibot/retrieval")

// Engine runs hybrid retrieval over a DocumentStore.
type Engine struct {
	store    DocumentStore
	embedder Embedder
	backend  string
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewEngine wires an engine. A nil store is accepted so misconfiguration
// surfaces as ErrNoDatabase at query time.
func NewEngine(store DocumentStore, embedder Embedder, backend string, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if backend == "" {
		backend = BackendPGVector
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		backend:  backend,
		logger:   logger,
		tracer:   tracer,
	}
}

// Retrieve returns the top ranked chunks for q and an overall confidence.
func (e *Engine) Retrieve(ctx context.Context, q Query) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()

	if e.backend != BackendPGVector {
		return Result{}, ErrUnsupportedBackend
	}
	if e.store == nil {
		return Result{}, ErrNoDatabase
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	queryVec := e.embed(ctx, q.Text)

	base := CandidateFilter{MinAuthority: q.MinAuthority}
	if q.Domain != "" && !q.Emergency {
		base.Domain = q.Domain
	}
	base.EmergencyOnly = q.Emergency

	kw := ExtractKeywords(q.Text)
	span.SetAttributes(
		attribute.String("retrieval.domain", q.Domain),
		attribute.Int("retrieval.mandatory_keywords", len(kw.Mandatory)),
		attribute.Int("retrieval.optional_keywords", len(kw.Optional)),
	)

	candidates, err := e.fetchCandidates(ctx, base, queryVec, limit, kw.Mandatory, kw.Optional)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	// Multi-word topics often never co-occur in one chunk; relax to the
	// optional keywords before giving up.
	if len(candidates) == 0 && len(kw.Mandatory) > 0 {
		candidates, err = e.fetchCandidates(ctx, base, queryVec, limit, nil, kw.Optional)
		if err != nil {
			span.RecordError(err)
			return Result{}, err
		}
	}

	if LooksLikeMedicationQuery(q.Text) {
		terms := kw.Mandatory
		if len(terms) == 0 {
			terms = kw.Optional
		}
		if terms = medicationTerms(terms); len(terms) >= 2 {
			med, err := e.fetchCandidates(ctx, base, queryVec, limit, nil, terms)
			if err != nil {
				span.RecordError(err)
				return Result{}, err
			}
			candidates = mergeDocuments(candidates, med)
		}
	}

	if len(candidates) == 0 && q.Emergency && q.Domain != "" {
		candidates, err = e.emergencyFallback(ctx, q.MinAuthority, queryVec, limit)
		if err != nil {
			span.RecordError(err)
			return Result{}, err
		}
	}
	span.SetAttributes(attribute.Int("retrieval.candidates", len(candidates)))

	return rank(candidates, queryVec, kw, q.Domain, limit), nil
}

func (e *Engine) embed(ctx context.Context, text string) []float32 {
	if e.embedder == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Error("embedding generation failed", "error", err)
		return nil
	}
	return vec
}

// fetchCandidates unions the vector neighbours with lexical matches.
// Mandatory keywords constrain both; optional keywords only the lexical
// side, and only when there are no mandatory ones.
func (e *Engine) fetchCandidates(ctx context.Context, base CandidateFilter, queryVec []float32, limit int, mandatory, optional []string) ([]Document, error) {
	n := limit * candidateMultiplier

	var vector []Document
	if len(queryVec) > 0 {
		f := base
		f.AllKeywords = mandatory
		docs, err := e.store.NearestDocuments(ctx, f, queryVec, n)
		if err != nil {
			return nil, err
		}
		vector = docs
	}

	lf := base
	if len(mandatory) > 0 {
		lf.AllKeywords = mandatory
	} else if len(optional) > 0 {
		lf.AnyKeywords = optional
	}
	lexical, err := e.store.MatchDocuments(ctx, lf, n)
	if err != nil {
		return nil, err
	}
	return mergeDocuments(vector, lexical), nil
}

// emergencyFallback drops the domain restriction and searches every
// emergency document. Unrated documents are excluded here.
func (e *Engine) emergencyFallback(ctx context.Context, minAuthority int, queryVec []float32, limit int) ([]Document, error) {
	f := CandidateFilter{EmergencyOnly: true, MinAuthority: minAuthority, ExcludeUnrated: true}
	n := limit * candidateMultiplier
	if len(queryVec) == 0 {
		return e.store.MatchDocuments(ctx, f, n)
	}
	docs, err := e.store.NearestDocuments(ctx, f, queryVec, n)
	if err != nil {
		return nil, fmt.Errorf("retrieval: emergency fallback: %w", err)
	}
	return docs, nil
}

type scoredDocument struct {
	doc   Document
	score float64
}

func rank(candidates []Document, queryVec []float32, kw Keywords, domain string, limit int) Result {
	scored := make([]scoredDocument, 0, len(candidates))
	for _, d := range candidates {
		if d.Embedding == nil {
			continue
		}
		scored = append(scored, scoredDocument{doc: d, score: Score(d, queryVec, kw, domain)})
	}
	if len(scored) == 0 {
		return Result{Chunks: []Chunk{}}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	top := scored
	if len(top) > limit {
		top = top[:limit]
	}
	chunks := make([]Chunk, 0, len(top))
	for i, s := range top {
		chunks = append(chunks, Chunk{
			Number:   i + 1,
			ID:       s.doc.ID,
			Content:  s.doc.Content,
			Score:    s.score,
			Citation: citationFor(s.doc),
		})
	}
	return Result{
		Chunks:     chunks,
		Confidence: Confidence(scored[0].score, len(chunks), limit),
	}
}
