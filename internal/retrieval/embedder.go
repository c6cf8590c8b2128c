package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const defaultHFFeatureURL = "https://router.huggingface.co/hf-inference/models"

// HFEmbedder calls the Hugging Face feature-extraction pipeline.
type HFEmbedder struct {
	token   string
	model   string
	baseURL string
	client  *http.Client
}

// HFEmbedderOption customises an HFEmbedder.
type HFEmbedderOption func(*HFEmbedder)

// WithHFBaseURL points the embedder at a different inference host.
func WithHFBaseURL(u string) HFEmbedderOption {
	return func(e *HFEmbedder) {
		if u != "" {
			e.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HFEmbedderOption {
	return func(e *HFEmbedder) {
		if c != nil {
			e.client = c
		}
	}
}

func NewHFEmbedder(token, model string, opts ...HFEmbedderOption) *HFEmbedder {
	e := &HFEmbedder{
		token:   token,
		model:   model,
		baseURL: defaultHFFeatureURL,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HFEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":  text,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/pipeline/feature-extraction", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: hf embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("retrieval: read hf embedding: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("retrieval: hf embedding status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return decodeFeatureVector(raw)
}

// decodeFeatureVector accepts either a flat vector or a single-row matrix.
func decodeFeatureVector(raw []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("retrieval: decode hf embedding: %w", err)
	}
	if len(nested) == 0 {
		return nil, errors.New("retrieval: empty hf embedding")
	}
	return nested[0], nil
}

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder embeds through the OpenAI embeddings API, truncating to
// the configured dimensions so vectors fit the corpus column.
type OpenAIEmbedder struct {
	client     embeddingClient
	model      string
	dimensions int
}

func NewOpenAIEmbedder(client embeddingClient, model string, dimensions int) *OpenAIEmbedder {
	if client == nil {
		panic("retrieval: embedding client cannot be nil")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: client, model: model, dimensions: dimensions}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      []string{text},
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("retrieval: openai returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

// LazyEmbedder builds its underlying embedder on first use and reuses it
// for the life of the process.
type LazyEmbedder struct {
	build func() (Embedder, error)
}

func NewLazyEmbedder(build func() (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{build: sync.OnceValues(build)}
}

func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.build()
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedder unavailable: %w", err)
	}
	return e.Embed(ctx, text)
}
