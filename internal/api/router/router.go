package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medibot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medibot/internal/http/middleware"
	"github.com/wolfman30/medibot/pkg/logging"
)

// Config holds router configuration. Optional handlers left nil are not
// mounted.
type Config struct {
	Logger      *logging.Logger
	Chat        *handlers.ChatHandler
	Escalations *handlers.EscalationHandler
	Admin       *handlers.AdminHandler
	WebSocket   http.Handler

	UserAuthSecret     string
	AdminAuthSecret    string
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.UserJWT(cfg.UserAuthSecret))

		if cfg.Chat != nil {
			api.Route("/chat", func(chat chi.Router) {
				chat.With(httpmiddleware.RateLimit(cfg.RateLimiter)).Post("/", cfg.Chat.Chat)
				if cfg.WebSocket != nil {
					chat.Handle("/ws", cfg.WebSocket)
				}
				chat.Route("/{id}", func(msg chi.Router) {
					msg.Post("/escalate", cfg.Chat.Escalate)
					msg.Get("/explain", cfg.Chat.Explain)
					msg.Get("/explain-rag", cfg.Chat.ExplainRAG)
				})
			})
			api.Route("/conversations", func(conv chi.Router) {
				conv.Get("/", cfg.Chat.ListConversations)
				conv.Get("/{id}", cfg.Chat.GetConversation)
				conv.Get("/{id}/medical-audit", cfg.Chat.MedicalAudit)
			})
		}
		if cfg.Escalations != nil {
			api.Route("/escalations", func(esc chi.Router) {
				esc.Get("/", cfg.Escalations.List)
				esc.Patch("/{id}/resolve", cfg.Escalations.Resolve)
			})
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/stats", cfg.Admin.Stats)
			admin.Get("/audit-events", cfg.Admin.AuditEvents)
		})
	}

	return r
}
