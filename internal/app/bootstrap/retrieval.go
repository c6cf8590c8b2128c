package bootstrap

import (
	"strings"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/pkg/logging"
)

// BuildEmbedder selects the query embedder from EMBEDDING_PROVIDER and
// fronts it with the Redis cache when one is available. It returns nil
// when the provider has no credentials, which leaves retrieval lexical-only.
func BuildEmbedder(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) retrieval.Embedder {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	var embedder retrieval.Embedder
	switch cfg.EmbeddingProvider {
	case "openai":
		key := strings.TrimSpace(cfg.OpenAIAPIKey)
		if key == "" {
			logger.Warn("openai embeddings selected without OPENAI_API_KEY; vector search disabled")
			return nil
		}
		baseURL, model, dims := cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions
		embedder = retrieval.NewLazyEmbedder(func() (retrieval.Embedder, error) {
			oc := openai.DefaultConfig(key)
			if strings.TrimSpace(baseURL) != "" {
				oc.BaseURL = baseURL
			}
			return retrieval.NewOpenAIEmbedder(openai.NewClientWithConfig(oc), model, dims), nil
		})
	case "huggingface", "":
		token := strings.TrimSpace(cfg.HFAPIToken)
		if token == "" {
			logger.Warn("huggingface embeddings selected without HF_API_TOKEN; vector search disabled")
			return nil
		}
		model := cfg.EmbeddingModel
		embedder = retrieval.NewLazyEmbedder(func() (retrieval.Embedder, error) {
			return retrieval.NewHFEmbedder(token, model), nil
		})
	default:
		logger.Warn("unknown embedding provider; vector search disabled", "provider", cfg.EmbeddingProvider)
		return nil
	}

	if redisClient != nil && cfg.EmbeddingCacheTTL > 0 {
		logger.Info("embedding cache enabled", "ttl", cfg.EmbeddingCacheTTL.String())
		return retrieval.NewCachedEmbedder(embedder, redisClient, cfg.EmbeddingModel, cfg.EmbeddingCacheTTL, logger)
	}
	return embedder
}

// BuildRetriever wires the retrieval engine over the pgvector document store.
func BuildRetriever(cfg *appconfig.Config, db retrieval.Querier, embedder retrieval.Embedder, logger *logging.Logger) *retrieval.Engine {
	var store retrieval.DocumentStore
	if db != nil {
		store = retrieval.NewPGDocumentStore(db)
	}
	backend := ""
	if cfg != nil {
		backend = cfg.VectorBackend
	}
	return retrieval.NewEngine(store, embedder, backend, logger)
}
