package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/pkg/logging"
)

var tracer = otel.Tracer("medibot/ingest")

const defaultBatchSize = 200

// Writer persists documents. retrieval.PGDocumentStore satisfies it.
type Writer interface {
	InsertDocuments(ctx context.Context, docs []retrieval.Document) (int, error)
}

// Stats summarises one ingestion run.
type Stats struct {
	Files    int `json:"files"`
	Parsed   int `json:"parsed"`
	Skipped  int `json:"skipped"`
	Embedded int `json:"embedded"`
	Inserted int `json:"inserted"`
}

// Ingester parses, enriches, embeds and writes documents in batches.
// Documents whose provenance already exists are skipped by the writer.
type Ingester struct {
	writer    Writer
	embedder  retrieval.Embedder
	batchSize int
	logger    *logging.Logger
}

// NewIngester returns an ingester. embedder may be nil, in which case
// documents are stored without embeddings.
func NewIngester(writer Writer, embedder retrieval.Embedder, batchSize int, logger *logging.Logger) *Ingester {
	if writer == nil {
		panic("ingest: writer cannot be nil")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingester{writer: writer, embedder: embedder, batchSize: batchSize, logger: logger}
}

// Run ingests every file in src that matches format.
func (in *Ingester) Run(ctx context.Context, src Source, format string) (Stats, error) {
	ctx, span := tracer.Start(ctx, "ingest.run")
	defer span.End()
	span.SetAttributes(attribute.String("ingest.format", format))

	var (
		stats Stats
		batch []retrieval.Document
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := in.writer.InsertDocuments(ctx, batch)
		stats.Inserted += n
		batch = nil
		if err != nil {
			return err
		}
		in.logger.Info("ingest batch written", "inserted_total", stats.Inserted, "parsed_total", stats.Parsed)
		return nil
	}

	err := src.Walk(ctx, func(item Item) error {
		kind := formatFor(format, item.Name)
		if kind == "" {
			return nil
		}
		stats.Files++

		docs, err := in.parse(kind, item)
		if err != nil {
			stats.Skipped++
			in.logger.Warn("ingest: skipping file", "file", item.Name, "error", err)
			return nil
		}
		for _, doc := range docs {
			stats.Parsed++
			doc = Enrich(doc)
			if in.embed(ctx, &doc) {
				stats.Embedded++
			}
			batch = append(batch, doc)
			if len(batch) >= in.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		err = flush()
	}

	span.SetAttributes(
		attribute.Int("ingest.files", stats.Files),
		attribute.Int("ingest.parsed", stats.Parsed),
		attribute.Int("ingest.inserted", stats.Inserted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, fmt.Errorf("ingest: run: %w", err)
	}
	in.logger.Info("ingest completed",
		"files", stats.Files,
		"parsed", stats.Parsed,
		"skipped", stats.Skipped,
		"embedded", stats.Embedded,
		"inserted", stats.Inserted,
	)
	return stats, nil
}

func (in *Ingester) parse(kind string, item Item) ([]retrieval.Document, error) {
	switch kind {
	case FormatMedQuAD:
		doc, err := ParseMedQuAD(item.Body, item.Folder())
		if err != nil {
			return nil, err
		}
		zero := 0
		doc.SourceFile = item.Name
		doc.ChunkIndex = &zero
		return []retrieval.Document{doc}, nil
	case FormatJSONL:
		docs, err := ParseJSONL(item.Body)
		if err != nil {
			return nil, err
		}
		for i := range docs {
			if docs[i].SourceFile == "" {
				idx := i
				docs[i].SourceFile = item.Name
				docs[i].ChunkIndex = &idx
			}
		}
		return docs, nil
	}
	return nil, errors.New("ingest: unsupported format")
}

// embed stores the content embedding on doc. Failures leave it nil.
func (in *Ingester) embed(ctx context.Context, doc *retrieval.Document) bool {
	if in.embedder == nil || len(doc.Embedding) > 0 {
		return len(doc.Embedding) > 0
	}
	vec, err := in.embedder.Embed(ctx, doc.Content)
	if err != nil {
		in.logger.Warn("ingest: embedding failed; storing without vector", "title", doc.Title, "error", err)
		return false
	}
	doc.Embedding = vec
	return len(vec) > 0
}
