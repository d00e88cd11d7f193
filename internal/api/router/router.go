package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/healthmatch/emergency-intake/internal/http/handlers"
	httpmiddleware "github.com/healthmatch/emergency-intake/internal/http/middleware"
	"github.com/healthmatch/emergency-intake/internal/voicesession"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	EmergencyCalls     *handlers.EmergencyCallHandler
	Intake             *handlers.IntakeHandler
	StatusWebhook      *handlers.StatusWebhookHandler
	CallStatus         *handlers.CallStatusHandler
	VoiceSessions      *voicesession.Handler
	MetricsHandler     http.Handler
	ClientJWTSecret    string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
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

	// Provider-facing endpoints: authenticated by webhook signature, not
	// bearer tokens. The dialogue endpoint must accept GET and POST; the
	// provider uses either depending on the verb that led it there.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.Intake != nil {
			public.Route("/voice", func(r chi.Router) {
				r.Get("/dialogue", cfg.Intake.Dialogue)
				r.Post("/dialogue", cfg.Intake.Dialogue)
				r.Post("/collect-symptoms", cfg.Intake.CollectSymptoms)
				r.Post("/collect-severity", cfg.Intake.CollectSeverity)
				r.Post("/collect-location", cfg.Intake.CollectLocation)
			})
		}
		if cfg.StatusWebhook != nil {
			public.Post("/webhooks/twilio/status", cfg.StatusWebhook.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Client-facing endpoints.
	r.Group(func(client chi.Router) {
		client.Use(httpmiddleware.ClientJWT(cfg.ClientJWTSecret))

		if cfg.EmergencyCalls != nil {
			client.Route("/emergency", func(r chi.Router) {
				r.Post("/calls", cfg.EmergencyCalls.InitiateCall)
				r.Get("/calls", cfg.EmergencyCalls.ListCalls)
				r.Get("/calls/{callID}", cfg.EmergencyCalls.GetCall)
				if cfg.CallStatus != nil {
					r.Post("/call-status", cfg.CallStatus.Poll)
				}
			})
		}
		if cfg.VoiceSessions != nil {
			client.Route("/voice-sessions", func(r chi.Router) {
				r.Post("/", cfg.VoiceSessions.Start)
				r.Get("/{sessionID}", cfg.VoiceSessions.Get)
				r.Post("/{sessionID}/utterance", cfg.VoiceSessions.Utterance)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
