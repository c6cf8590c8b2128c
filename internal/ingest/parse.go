// Package ingest loads evidence documents into the medical document store.
package ingest

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/wolfman30/medibot/internal/retrieval"
)

const (
	FormatMedQuAD = "medquad"
	FormatJSONL   = "jsonl"
	FormatAuto    = "auto"

	maxTitleLength = 255
	maxJSONLLine   = 4 << 20
)

// ErrNoAnswer marks a MedQuAD file without a question/answer pair.
var ErrNoAnswer = errors.New("ingest: medquad document has no question or answer")

type medquadDocument struct {
	Pairs []medquadPair `xml:"QAPairs>QAPair"`
	// Some files put the pair at the top level.
	Question string `xml:"Question"`
	Answer   string `xml:"Answer"`
}

type medquadPair struct {
	Question string `xml:"Question"`
	Answer   string `xml:"Answer"`
}

// ParseMedQuAD reads one MedQuAD XML file. folder is the dataset
// directory it came from (e.g. "1_CancerGov_QA") and names the source.
// Only the first non-empty question/answer pair is kept.
func ParseMedQuAD(r io.Reader, folder string) (retrieval.Document, error) {
	var raw medquadDocument
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return retrieval.Document{}, fmt.Errorf("ingest: decode medquad xml: %w", err)
	}

	question, answer := strings.TrimSpace(raw.Question), strings.TrimSpace(raw.Answer)
	for _, p := range raw.Pairs {
		if question != "" && answer != "" {
			break
		}
		question, answer = strings.TrimSpace(p.Question), strings.TrimSpace(p.Answer)
	}
	if question == "" || answer == "" {
		return retrieval.Document{}, ErrNoAnswer
	}

	title := question
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	source := "MedQuAD"
	if folder != "" {
		source += " - " + strings.TrimSuffix(path.Base(folder), "_QA")
	}
	return retrieval.Document{
		Title:   title,
		Source:  source,
		Content: "Question: " + question + "\nAnswer: " + answer,
	}, nil
}

// Record is one pre-chunked document in a JSONL file.
type Record struct {
	Title          string `json:"title"`
	Source         string `json:"source"`
	Content        string `json:"content"`
	MedicalDomain  string `json:"medical_domain"`
	ContentType    string `json:"content_type"`
	AuthorityLevel *int   `json:"authority_level"`
	IsEmergency    bool   `json:"is_emergency"`
	PublishedBy    string `json:"published_by"`
	SourceFile     string `json:"source_file"`
	PageNumber     *int   `json:"page_number"`
	ChunkIndex     *int   `json:"chunk_index"`
}

func (r Record) document() retrieval.Document {
	return retrieval.Document{
		Title:          r.Title,
		Source:         r.Source,
		Content:        r.Content,
		MedicalDomain:  r.MedicalDomain,
		ContentType:    r.ContentType,
		AuthorityLevel: r.AuthorityLevel,
		IsEmergency:    r.IsEmergency,
		PublishedBy:    r.PublishedBy,
		SourceFile:     r.SourceFile,
		PageNumber:     r.PageNumber,
		ChunkIndex:     r.ChunkIndex,
	}
}

// ParseJSONL reads pre-chunked documents, one JSON object per line. Blank
// lines are ignored; a record without content is an error.
func ParseJSONL(r io.Reader) ([]retrieval.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLine)

	var docs []retrieval.Document
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return docs, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.Content) == "" || strings.TrimSpace(rec.Title) == "" {
			return docs, fmt.Errorf("ingest: line %d: title and content are required", line)
		}
		docs = append(docs, rec.document())
	}
	if err := scanner.Err(); err != nil {
		return docs, fmt.Errorf("ingest: read jsonl: %w", err)
	}
	return docs, nil
}

// formatFor resolves FormatAuto from the file extension. It returns "" for
// files that should be skipped.
func formatFor(format, name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch format {
	case FormatMedQuAD:
		if ext == ".xml" {
			return FormatMedQuAD
		}
	case FormatJSONL:
		if ext == ".jsonl" || ext == ".json" {
			return FormatJSONL
		}
	default:
		switch ext {
		case ".xml":
			return FormatMedQuAD
		case ".jsonl":
			return FormatJSONL
		}
	}
	return ""
}
