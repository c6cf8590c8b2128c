package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/ingest"
	"github.com/wolfman30/medibot/internal/retrieval"
	"github.com/wolfman30/medibot/pkg/logging"
)

// BuildIngester connects to Postgres (and Redis for the embedding cache) and
// returns an ingester writing to medical_documents. The returned func
// releases the connections.
func BuildIngester(ctx context.Context, cfg *appconfig.Config, batchSize int, logger *logging.Logger) (*ingest.Ingester, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){pool.Close}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	embedder := BuildEmbedder(cfg, redisClient, logger)
	return ingest.NewIngester(retrieval.NewPGDocumentStore(pool), embedder, batchSize, logger), cleanup, nil
}

// NewS3Client uses path-style addressing when an endpoint override
// (LocalStack) is configured.
func NewS3Client(cfg *appconfig.Config, awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg != nil && cfg.AWSEndpointOverride != ""
	})
}
