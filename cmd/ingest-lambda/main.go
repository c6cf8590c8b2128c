package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/medibot/cmd/mainconfig"
	"github.com/wolfman30/medibot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/ingest"
	"github.com/wolfman30/medibot/pkg/logging"
)

type runner interface {
	Run(ctx context.Context, src ingest.Source, format string) (ingest.Stats, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	ingester, cleanup, err := bootstrap.BuildIngester(ctx, cfg, 0, logger)
	if err != nil {
		logger.Error("ingest lambda init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	client := bootstrap.NewS3Client(cfg, awsCfg)

	lambda.Start(func(ctx context.Context, evt events.S3Event) (ingest.Stats, error) {
		return handle(ctx, ingester, client, evt, logger)
	})
}

// handle ingests the objects named in an S3 ObjectCreated notification,
// one source per bucket.
func handle(ctx context.Context, r runner, client ingest.S3API, evt events.S3Event, logger *logging.Logger) (ingest.Stats, error) {
	byBucket := map[string][]string{}
	var order []string
	for _, rec := range evt.Records {
		if !strings.HasPrefix(rec.EventName, "ObjectCreated") {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return ingest.Stats{}, fmt.Errorf("decode key %q: %w", rec.S3.Object.Key, err)
		}
		bucket := rec.S3.Bucket.Name
		if _, seen := byBucket[bucket]; !seen {
			order = append(order, bucket)
		}
		byBucket[bucket] = append(byBucket[bucket], key)
	}

	var total ingest.Stats
	for _, bucket := range order {
		stats, err := r.Run(ctx, ingest.S3Source{Client: client, Bucket: bucket, Keys: byBucket[bucket]}, ingest.FormatAuto)
		total.Files += stats.Files
		total.Parsed += stats.Parsed
		total.Skipped += stats.Skipped
		total.Embedded += stats.Embedded
		total.Inserted += stats.Inserted
		if err != nil {
			return total, err
		}
	}
	logger.Info("ingest lambda processed event", "records", len(evt.Records), "inserted", total.Inserted)
	return total, nil
}
