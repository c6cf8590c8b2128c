package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"github.com/wolfman30/medibot/cmd/mainconfig"
	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/evaluation"
	"github.com/wolfman30/medibot/pkg/logging"
)

type options struct {
	baseURL string
	token   string
	cases   string
	outDir  string
	pause   time.Duration
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.baseURL, "base-url", envOr("EVAL_BASE_URL", "http://127.0.0.1:8080"), "API base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("EVAL_TOKEN"), "user bearer token")
	fs.StringVar(&opts.cases, "cases", envOr("EVAL_CASES_FILE", "eval_cases.json"), "cases file")
	fs.StringVar(&opts.outDir, "out", "reports", "directory for report files")
	fs.DurationVar(&opts.pause, "pause", 250*time.Millisecond, "delay between cases")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(opts.token) == "" {
		return options{}, errors.New("EVAL_TOKEN or -token is required")
	}
	return opts, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks := []evaluation.Sink{evaluation.FileSink{Dir: opts.outDir}}
	if table := strings.TrimSpace(cfg.EvalReportsTable); table != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load aws config", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, evaluation.NewDynamoSink(dynamodb.NewFromConfig(awsCfg), table))
	}

	report, err := run(ctx, opts, sinks, logger)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%d/%d cases passed (run %s)\n", report.Passed, report.TotalCases, report.RunID)
	if report.Failed > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, sinks []evaluation.Sink, logger *logging.Logger) (evaluation.Report, error) {
	cases, err := evaluation.LoadCases(opts.cases)
	if err != nil {
		return evaluation.Report{}, err
	}
	if len(cases) == 0 {
		return evaluation.Report{}, fmt.Errorf("no cases in %s", opts.cases)
	}

	runner := evaluation.NewRunner(evaluation.NewClient(opts.baseURL, opts.token, nil), opts.pause, logger)
	report, runErr := runner.Run(ctx, cases)
	for _, sink := range sinks {
		if err := sink.Write(ctx, report); err != nil {
			return report, err
		}
	}
	return report, runErr
}
