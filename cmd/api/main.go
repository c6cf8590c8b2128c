package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/medibot/cmd/mainconfig"
	"github.com/wolfman30/medibot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medibot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	api, err := bootstrap.BuildAPI(ctx, cfg, loadAWSConfig(ctx, cfg, logger), logger)
	if err != nil {
		return err
	}
	defer api.Close()

	srv := newServer(cfg, api.Handler)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// loadAWSConfig returns nil when the SDK cannot be configured, which turns
// off the Bedrock tier, SES email and SQS events.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("AWS config unavailable; AWS integrations disabled", "error", err)
		return nil
	}
	return &awsCfg
}

// newServer sizes the write timeout for a full reply cascade.
func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}
