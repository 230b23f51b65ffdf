package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/bookline-ai-platform/internal/api/handlers"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/businesschat"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/sms"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/webchat"
	httpmiddleware "github.com/wolfman30/bookline-ai-platform/internal/http/middleware"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	// Channel webhooks. Nil handlers leave their routes unmounted so a
	// deployment can enable channels one at a time.
	SMSWebhook          *sms.WebhookHandler
	BusinessChatWebhook *businesschat.WebhookHandler
	BotWebhook          http.HandlerFunc
	WebchatHub          *webchat.Hub
	WebchatAdapter      *webchat.Adapter
	WebchatDispatch     webchat.Dispatch

	Feedback           *handlers.FeedbackHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminRetrain       *handlers.AdminRetrainHandler
	AdminExperiments   *handlers.AdminExperimentsHandler

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP limit applied to public endpoints. Zero disables it.
	PublicRatePerSecond float64
	PublicRateBurst     int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: webhooks, feedback, widget traffic, health.
	r.Group(func(public chi.Router) {
		if cfg.PublicRatePerSecond > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.PublicRatePerSecond, cfg.PublicRateBurst))
		}

		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		if cfg.SMSWebhook != nil {
			public.Post("/webhooks/sms", cfg.SMSWebhook.HandleInbound)
		}
		if cfg.BusinessChatWebhook != nil {
			public.Get("/webhooks/businesschat", cfg.BusinessChatWebhook.HandleVerification)
			public.Post("/webhooks/businesschat", cfg.BusinessChatWebhook.HandleInbound)
		}
		if cfg.BotWebhook != nil {
			public.Post("/webhooks/bot", cfg.BotWebhook)
		}
		if cfg.WebchatHub != nil {
			public.Get("/webchat/ws", cfg.WebchatHub.HandleWebSocket)
		}
		if cfg.WebchatAdapter != nil {
			public.Post("/webchat/message", cfg.WebchatAdapter.HandleMessage(cfg.WebchatDispatch))
		}
		if cfg.Feedback != nil {
			public.Post("/feedback", cfg.Feedback.Submit)
		}
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Admin API behind HMAC JWT.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.AdminConversations != nil {
			admin.Get("/conversations", cfg.AdminConversations.List)
			admin.Get("/conversations/{turnID}", cfg.AdminConversations.Get)
			admin.Get("/stats", cfg.AdminConversations.Stats)
			admin.Get("/curation-queue", cfg.AdminConversations.CurationQueue)
			admin.Post("/curation-queue/reviewed", cfg.AdminConversations.MarkReviewed)
		}
		if cfg.AdminRetrain != nil {
			admin.Get("/retrain", cfg.AdminRetrain.Status)
			admin.Post("/retrain", cfg.AdminRetrain.Trigger)
			admin.Get("/retrain/jobs/{jobID}", cfg.AdminRetrain.Job)
		}
		if cfg.AdminExperiments != nil {
			admin.Get("/experiments/active", cfg.AdminExperiments.Active)
			admin.Post("/experiments", cfg.AdminExperiments.Create)
			admin.Post("/experiments/{experimentID}/complete", cfg.AdminExperiments.Complete)
			admin.Post("/experiments/{experimentID}/cancel", cfg.AdminExperiments.Cancel)
		}
	})

	return r
}
