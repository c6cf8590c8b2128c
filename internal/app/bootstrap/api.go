// Package bootstrap assembles the API's dependencies from configuration.
package bootstrap

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medibot/internal/api/router"
	"github.com/wolfman30/medibot/internal/compliance"
	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/conversation"
	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medibot/internal/http/middleware"
	"github.com/wolfman30/medibot/internal/observability/metrics"
	"github.com/wolfman30/medibot/internal/webchat"
	"github.com/wolfman30/medibot/pkg/logging"
)

// API is the assembled HTTP surface plus the resources it holds open.
type API struct {
	Handler http.Handler
	closers []func()
}

// Close releases pools and background workers in reverse order of creation.
func (a *API) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// BuildAPI connects to Postgres and Redis and wires the chat pipeline,
// escalations, audit trail, metrics and router. awsCfg may be nil, which
// disables Bedrock, SES and SQS.
func BuildAPI(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*API, error) {
	if logger == nil {
		logger = logging.Default()
	}
	api := &API{}

	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	api.closers = append(api.closers, pool.Close)

	sqlDB, err := OpenSQLDB(cfg.DatabaseURL)
	if err != nil {
		api.Close()
		return nil, err
	}
	api.closers = append(api.closers, func() { _ = sqlDB.Close() })

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		api.closers = append(api.closers, func() { _ = redisClient.Close() })
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	retriever := BuildRetriever(cfg, pool, BuildEmbedder(cfg, redisClient, logger), logger)
	synthesizer := BuildSynthesizer(cfg, awsCfg, pipelineMetrics, logger)
	audit := compliance.NewAuditService(sqlDB)

	chat := conversation.NewService(
		conversation.NewPGRepository(pool),
		retriever,
		synthesizer,
		logger,
		conversation.WithNotifier(BuildEscalationNotifier(cfg, awsCfg, logger)),
		conversation.WithObserver(pipelineMetrics),
		conversation.WithAuditor(audit),
	)
	escalations := escalation.NewService(escalation.NewStore(pool), logger)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	api.closers = append(api.closers, limiter.Stop)

	if cfg.UserJWTSecret == "" {
		logger.Warn("USER_JWT_SECRET not set; chat routes will reject every request")
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes will reject every request")
	}

	api.Handler = router.New(&router.Config{
		Logger:             logger,
		Chat:               handlers.NewChatHandler(chat, logger),
		Escalations:        handlers.NewEscalationHandler(escalations, logger),
		Admin:              handlers.NewAdminHandler(registry, audit, logger),
		WebSocket:          webchat.NewHandler(chat, logger),
		UserAuthSecret:     cfg.UserJWTSecret,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		RateLimiter:        limiter,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSOrigins,
	})
	return api, nil
}
