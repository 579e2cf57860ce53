package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/metered-finance/internal/auth"
	"github.com/BradenHooton/metered-finance/internal/background"
	"github.com/BradenHooton/metered-finance/internal/config"
	"github.com/BradenHooton/metered-finance/internal/database"
	"github.com/BradenHooton/metered-finance/internal/handlers"
	"github.com/BradenHooton/metered-finance/internal/metering"
	"github.com/BradenHooton/metered-finance/internal/metrics"
	middlewareCustom "github.com/BradenHooton/metered-finance/internal/middleware"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/BradenHooton/metered-finance/internal/ratelimit"
	"github.com/BradenHooton/metered-finance/internal/repositories"
	"github.com/BradenHooton/metered-finance/internal/routes"
	"github.com/BradenHooton/metered-finance/internal/services"
	pkgauth "github.com/BradenHooton/metered-finance/pkg/auth"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
	pkglogger "github.com/BradenHooton/metered-finance/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_window_backend", cfg.Metering.RateWindowBackend),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	prometheus.MustRegister(metrics.NewPoolCollector(db))

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	defaultLimits := models.QuotaLimits{
		RateLimitPerMinute: cfg.Metering.DefaultRateLimitPerMinute,
		DailyQuota:         cfg.Metering.DefaultDailyQuota,
		MonthlyQuota:       cfg.Metering.DefaultMonthlyQuota,
	}

	// Initialize repositories
	apiKeyRepo := repositories.NewAPIKeyRepository(db, defaultLimits)
	usageRepo := repositories.NewUsageRepository(db)
	requestLogRepo := repositories.NewRequestLogRepository(db)

	// Rate windows live in Postgres unless Redis is configured
	var windows metering.RateWindowStore = usageRepo
	var redisClient *redis.Client
	if cfg.Metering.RateWindowBackend == config.RateWindowBackendRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = ratelimit.NewRedisClient(ctx, ratelimit.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		cancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		windows = ratelimit.NewRedisWindowStore(redisClient, cfg.Redis.Prefix)
	}

	// Background work: fire-and-forget jobs and rate window cleanup
	workQueue := background.NewWorkQueue(logger, cfg.Background.Workers, cfg.Background.QueueSize, cfg.Background.JobTimeout)
	workQueue.Start()
	cleanupManager := background.NewCleanupManager(usageRepo, logger, cfg.Background.RateWindowCleanupInterval)

	// Credential verification
	verifier, err := pkgauth.NewSecretVerifier(pkgauth.Argon2Params{
		Memory:      cfg.Auth.Argon2Memory,
		Iterations:  cfg.Auth.Argon2Iterations,
		Parallelism: cfg.Auth.Argon2Parallelism,
	})
	if err != nil {
		logger.Error("invalid argon2 parameters", slog.Any("error", err))
		os.Exit(1)
	}

	keyAuthenticator, err := auth.NewKeyAuthenticator(apiKeyRepo, verifier, workQueue, logger)
	if err != nil {
		logger.Error("failed to initialize key authenticator", slog.Any("error", err))
		os.Exit(1)
	}
	adminAuthenticator := auth.NewAdminAuthenticator(cfg.Auth.AdminKey)

	// Admission and pipeline
	admission := metering.NewAdmissionController(usageRepo, windows, metering.Config{
		DefaultLimits:      defaultLimits,
		CheckTimeout:       cfg.Metering.CheckTimeout,
		RetryAfter:         cfg.Metering.RetryAfter,
		BreakerFailures:    cfg.Metering.BreakerFailures,
		BreakerOpenTimeout: cfg.Metering.BreakerOpenTimeout,
	}, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	pipeline := metering.NewPipeline(metering.PipelineDeps{
		Keys:         keyAuthenticator,
		Admin:        adminAuthenticator,
		Admission:    admission,
		Telemetry:    requestLogRepo,
		Tasks:        workQueue,
		Audit:        auditLogger,
		IPConfig:     ipConfig,
		Logger:       logger,
		CheckTimeout: cfg.Metering.CheckTimeout,
	})

	// Initialize services and handlers
	apiKeyService := services.NewAPIKeyService(apiKeyRepo, verifier, auditLogger, defaultLimits, logger)
	usageService := services.NewUsageService(apiKeyRepo, usageRepo, logger)

	h := routes.Handlers{
		APIKeys: handlers.NewAPIKeyHandler(apiKeyService, ipConfig),
		Usage:   handlers.NewUsageHandler(usageService),
		Health:  handlers.NewHealthHandler(db, admission),
	}

	// Setup router. Client IPs come from pkghttp.ExtractClientIP, which only
	// trusts forwarding headers from configured proxies.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	ipLimit := middlewareCustom.RateLimitByIP(middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Auth.IPRateLimitPerMinute,
	}, ipConfig)

	routes.RegisterRoutes(router, pipeline, h, ipLimit)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	cleanupCancel()
	cleanupManager.Stop()

	// Drain queued telemetry before the pool closes
	if err := workQueue.Stop(shutdownCtx); err != nil {
		logger.Warn("background queue did not drain", slog.Any("error", err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
