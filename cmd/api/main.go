package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/healthmatch/emergency-intake/internal/api/router"
	appconfig "github.com/healthmatch/emergency-intake/internal/config"
	"github.com/healthmatch/emergency-intake/internal/emergency"
	"github.com/healthmatch/emergency-intake/internal/http/handlers"
	"github.com/healthmatch/emergency-intake/internal/observability/metrics"
	"github.com/healthmatch/emergency-intake/internal/telephony"
	"github.com/healthmatch/emergency-intake/internal/voicesession"
	"github.com/healthmatch/emergency-intake/pkg/logging"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting emergency-intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Call records: Postgres when configured, in-memory otherwise so local
	// dev works without a database.
	var repo emergency.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		repo = emergency.NewPostgresRepository(pool)
		logger.Info("using postgres call repository")
	} else {
		repo = emergency.NewInMemoryRepository()
		logger.Warn("DATABASE_URL not set, call records are in-memory only")
	}

	// Redis backs the status poll cache and browser voice sessions; both
	// degrade gracefully when it is absent.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without cache", "error", err)
			redisClient = nil
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	callMetrics := metrics.NewCallMetrics(reg)

	notifier := emergency.NewLogNotifier(logger)
	twilioClient := telephony.NewClient(cfg.Twilio(), logger)

	var statusCache *telephony.StatusCache
	if redisClient != nil {
		statusCache = telephony.NewStatusCache(redisClient, cfg.StatusCacheTTL)
	}

	var sessionStore voicesession.Store
	if redisClient != nil {
		sessionStore = voicesession.NewRedisStore(redisClient, cfg.VoiceSessionTTL)
	} else {
		sessionStore = voicesession.NewInMemoryStore()
	}

	emergencyCalls := handlers.NewEmergencyCallHandler(handlers.EmergencyCallConfig{
		Repo:    repo,
		Placer:  twilioClient,
		Logger:  logger,
		Metrics: callMetrics,
		BaseURL: cfg.PublicBaseURL,
	})
	intake := handlers.NewIntakeHandler(handlers.IntakeConfig{
		Repo:                 repo,
		Notifier:             notifier,
		Logger:               logger,
		Metrics:              callMetrics,
		BaseURL:              cfg.PublicBaseURL,
		OurNumber:            cfg.TwilioPhoneNumber,
		WebhookSecret:        cfg.TwilioWebhookSecret,
		GatherTimeoutSeconds: cfg.GatherTimeoutSeconds,
	})
	statusWebhook := handlers.NewStatusWebhookHandler(handlers.StatusWebhookConfig{
		Repo:          repo,
		Logger:        logger,
		Metrics:       callMetrics,
		BaseURL:       cfg.PublicBaseURL,
		WebhookSecret: cfg.TwilioWebhookSecret,
	})
	callStatus := handlers.NewCallStatusHandler(twilioClient, statusCache, logger)
	voiceSessions := voicesession.NewHandler(sessionStore, repo, notifier, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		EmergencyCalls:     emergencyCalls,
		Intake:             intake,
		StatusWebhook:      statusWebhook,
		CallStatus:         callStatus,
		VoiceSessions:      voiceSessions,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ClientJWTSecret:    cfg.ClientJWTSecret,
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
