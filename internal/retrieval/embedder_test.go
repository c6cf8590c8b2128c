package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHFEmbedder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []float32
	}{
		{"flat vector", `[0.1, 0.2]`, []float32{0.1, 0.2}},
		{"single row matrix", `[[0.3, 0.4]]`, []float32{0.3, 0.4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/sentence-transformers/all-MiniLM-L6-v2/pipeline/feature-extraction", r.URL.Path)
				assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "chest pain", payload["inputs"])
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := NewHFEmbedder("hf-token", "sentence-transformers/all-MiniLM-L6-v2", WithHFBaseURL(srv.URL))
			got, err := e.Embed(context.Background(), "chest pain")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHFEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHFEmbedder("", "m", WithHFBaseURL(srv.URL)).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type stubEmbeddingClient struct {
	req openai.EmbeddingRequest
}

func (s *stubEmbeddingClient) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	s.req = conv.Convert()
	return openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: []float32{0.5, 0.5}}}}, nil
}

func TestOpenAIEmbedderSendsDimensions(t *testing.T) {
	client := &stubEmbeddingClient{}
	vec, err := NewOpenAIEmbedder(client, "", 384).Embed(context.Background(), "asthma")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, 384, client.req.Dimensions)
	assert.Equal(t, openai.SmallEmbedding3, client.req.Model)
}

type countingEmbedder struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls.Add(1)
	return c.vec, c.err
}

func TestCachedEmbedder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	cached := NewCachedEmbedder(inner, client, "mini", time.Hour, nil)

	for i := 0; i < 3; i++ {
		vec, err := cached.Embed(context.Background(), "fever")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, vec)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Len(t, mr.Keys(), 1)

	mr.FastForward(2 * time.Hour)
	_, err := cached.Embed(context.Background(), "fever")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedEmbedderFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingEmbedder{vec: []float32{4}}
	cached := NewCachedEmbedder(inner, client, "mini", time.Hour, nil)
	mr.Close()

	vec, err := cached.Embed(context.Background(), "rash")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vec)
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cached := NewCachedEmbedder(&countingEmbedder{err: errors.New("boom")}, client, "mini", time.Hour, nil)

	_, err := cached.Embed(context.Background(), "rash")
	assert.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestLazyEmbedderBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	lazy := NewLazyEmbedder(func() (Embedder, error) {
		builds.Add(1)
		return &countingEmbedder{vec: []float32{1}}, nil
	})
	for i := 0; i < 3; i++ {
		_, err := lazy.Embed(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), builds.Load())
}
