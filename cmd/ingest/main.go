package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/medibot/cmd/mainconfig"
	"github.com/wolfman30/medibot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/ingest"
	"github.com/wolfman30/medibot/pkg/logging"
)

type options struct {
	dir    string
	bucket string
	prefix string
	format string
	batch  int
}

func parseFlags(args []string, cfg *appconfig.Config, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.dir, "dir", "", "local directory to ingest")
	fs.StringVar(&opts.bucket, "bucket", cfg.IngestBucket, "S3 bucket to ingest (default INGEST_BUCKET)")
	fs.StringVar(&opts.prefix, "prefix", cfg.IngestPrefix, "S3 key prefix (default INGEST_PREFIX)")
	fs.StringVar(&opts.format, "format", ingest.FormatAuto, "medquad, jsonl or auto")
	fs.IntVar(&opts.batch, "batch", 200, "documents per insert batch")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.format = strings.ToLower(strings.TrimSpace(opts.format))
	switch opts.format {
	case ingest.FormatAuto, ingest.FormatMedQuAD, ingest.FormatJSONL:
	default:
		return options{}, fmt.Errorf("unknown format %q", opts.format)
	}
	if (opts.dir == "") == (opts.bucket == "") {
		return options{}, errors.New("exactly one of -dir or -bucket is required")
	}
	return opts, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], cfg, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	_ = json.NewEncoder(os.Stdout).Encode(stats)
}

func run(ctx context.Context, cfg *appconfig.Config, opts options, logger *logging.Logger) (ingest.Stats, error) {
	ingester, cleanup, err := bootstrap.BuildIngester(ctx, cfg, opts.batch, logger)
	if err != nil {
		return ingest.Stats{}, err
	}
	defer cleanup()

	var src ingest.Source = ingest.DirSource{Root: opts.dir}
	if opts.bucket != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return ingest.Stats{}, fmt.Errorf("load aws config: %w", err)
		}
		src = ingest.S3Source{Client: bootstrap.NewS3Client(cfg, awsCfg), Bucket: opts.bucket, Prefix: opts.prefix}
	}
	return ingester.Run(ctx, src, opts.format)
}
