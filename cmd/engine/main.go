package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bookline-ai/bookline/cmd/mainconfig"
	"github.com/bookline-ai/bookline/internal/api/router"
	"github.com/bookline-ai/bookline/internal/availability"
	"github.com/bookline-ai/bookline/internal/bookings"
	appconfig "github.com/bookline-ai/bookline/internal/config"
	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/internal/engine"
	"github.com/bookline-ai/bookline/internal/intent"
	"github.com/bookline-ai/bookline/internal/observability/metrics"
	"github.com/bookline-ai/bookline/pkg/logging"
)

func main() {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bookline engine",
		"env", cfg.Env,
		"port", cfg.Port,
		"nlu_provider", cfg.NLUProvider,
	)

	ctx := context.Background()
	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	store := buildConversationStore(cfg, logger)
	repo, archive, cleanup := buildBookingStorage(ctx, cfg, logger)
	defer cleanup()

	dir, err := buildDirectory(cfg)
	if err != nil {
		logger.Error("failed to build business directory", "error", err)
		os.Exit(1)
	}

	detector := buildDetector(ctx, cfg, logger)
	manager := dialogue.NewManager(cfg.SessionTimeout, cfg.FocusSwitchThreshold, logger)

	avail := availability.NewEngine(repo, dir, availability.Config{
		SlotDuration:      cfg.SlotDuration,
		RepositoryTimeout: cfg.RepositoryTimeout,
		DayStartHour:      cfg.DayStartHour,
		DayEndHour:        cfg.DayEndHour,
		RetryMaxAttempts:  cfg.CommitRetryMaxAttempts,
		RetryBaseDelay:    cfg.CommitRetryBaseDelay,
	}, logger, bookingMetrics)

	eng := engine.New(store, archive, detector, manager, avail, cfg.ContextWindowTurns, logger, engineMetrics)

	handler := router.New(&router.Config{
		Logger:         logger,
		Handler:        router.NewHandler(eng, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
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
}

// buildConversationStore picks redis when configured, otherwise an
// in-process store.
func buildConversationStore(cfg *appconfig.Config, logger *logging.Logger) conversation.Store {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory conversation store")
		return conversation.NewMemoryStore(cfg.ContextWindowTurns)
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	logger.Info("using redis conversation store", "addr", cfg.RedisAddr)
	return conversation.NewRedisStore(redis.NewClient(opts), cfg.ContextWindowTurns)
}

// buildBookingStorage picks postgres when configured, otherwise an
// in-process repository with no durable archive.
func buildBookingStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bookings.Repository, *conversation.ArchiveStore, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory booking repository")
		return bookings.NewMemoryRepository(), nil, func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open archive connection", "error", err)
		pool.Close()
		os.Exit(1)
	}

	logger.Info("using postgres booking repository")
	cleanup := func() {
		pool.Close()
		db.Close()
	}
	return bookings.NewPostgresRepository(pool), conversation.NewArchiveStore(db), cleanup
}

// buildDirectory resolves business timezones from configuration. With an
// explicit mapping, unknown businesses are rejected; without one, every
// business gets the default zone.
func buildDirectory(cfg *appconfig.Config) (directory.Directory, error) {
	if strings.TrimSpace(cfg.BusinessTimezones) == "" {
		return directory.NewFixedDirectory(cfg.DefaultTimezone)
	}

	zones := make(map[string]string)
	for _, pair := range strings.Split(cfg.BusinessTimezones, ",") {
		businessID, zone, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		zones[businessID] = zone
	}
	return directory.NewStaticDirectory(zones)
}

// buildDetector picks the configured NLU provider, falling back to the
// rule-based detector when bedrock is not fully configured.
func buildDetector(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) intent.Detector {
	if cfg.NLUProvider != "bedrock" {
		logger.Info("using rule-based intent detector")
		return intent.NewRuleDetector()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config, falling back to rules", "error", err)
		return intent.NewRuleDetector()
	}

	limiter := intent.NewLimiter(intent.LimiterConfig{
		MaxRequestsPerWindow: cfg.NLUMaxRequestsPerMinute,
		MaxTokensPerWindow:   cfg.NLUMaxTokensPerMinute,
		QueueDepth:           cfg.NLUQueueDepth,
		Window:               time.Minute,
	})
	detector, err := intent.NewBedrockDetector(
		bedrockruntime.NewFromConfig(awsCfg),
		cfg.BedrockModelID,
		limiter,
		cfg.NLUTimeout,
		logger,
	)
	if err != nil {
		logger.Error("failed to build bedrock detector, falling back to rules", "error", err)
		return intent.NewRuleDetector()
	}
	logger.Info("using bedrock intent detector", "model", cfg.BedrockModelID)
	return detector
}
