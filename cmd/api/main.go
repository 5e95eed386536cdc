package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/background"
	"github.com/BradenHooton/authguard/internal/clock"
	"github.com/BradenHooton/authguard/internal/config"
	"github.com/BradenHooton/authguard/internal/database"
	"github.com/BradenHooton/authguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authguard/internal/middleware"
	"github.com/BradenHooton/authguard/internal/ratelimit"
	"github.com/BradenHooton/authguard/internal/repositories"
	"github.com/BradenHooton/authguard/internal/routes"
	"github.com/BradenHooton/authguard/internal/services"
	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.SlogLevel()}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_store", cfg.RateLimit.Store),
		slog.String("email_provider", cfg.Email.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clk := clock.System()
	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{
		TrustedProxies:        cfg.Server.TrustedProxies,
		TrustForwardedHeaders: cfg.Server.TrustForwardedHeaders,
	}

	store, closeStore, err := newRateLimitStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := ratelimit.NewLimiter(store, clk, logger, ratelimit.NewMetrics(registry))
	limiter.SetLazySweep(cfg.RateLimit.Store == config.StoreMemory && !cfg.RateLimit.BackgroundSweep)

	mailer, err := newMailer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	userRepo := repositories.NewUserRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	hasher := pkgauth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, clk)

	authService := services.NewAuthService(userRepo, hasher, tokenManager, logger, auditLogger)
	resetService := services.NewPasswordResetService(
		userRepo,
		resetRepo,
		hasher,
		services.NewEmailService(mailer, cfg.Email.AppBaseURL),
		clk,
		cfg.Auth.ResetTokenExpiry,
		logger,
		auditLogger,
	)

	authHandler := handlers.NewAuthHandler(authService, resetService, limiter, ipConfig, logger)
	gate := middlewareCustom.NewRateLimitGate(limiter, ipConfig, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(cfg.Server.Env))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, handlers.NewHealthHandler(db), gate, routes.Options{
		FloodLimitPerMinute: cfg.RateLimit.FloodLimitPerMinute,
		IPConfig:            ipConfig,
		Metrics:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The limiter sweeps lazily unless a background sweep was requested;
	// expired reset tokens are always cleaned up here.
	var sweeper background.RateLimitSweeper
	if cfg.RateLimit.BackgroundSweep {
		sweeper = limiter
	}
	cleanupManager := background.NewCleanupManager(sweeper, resetService, logger, cfg.Auth.CleanupInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return cleanupManager.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newRateLimitStore builds the configured limiter backend. The returned
// func releases it.
func newRateLimitStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Store, func(), error) {
	if cfg.RateLimit.Store != config.StoreRedis {
		return ratelimit.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis rate limit store connected", slog.String("addr", cfg.Redis.Addr))

	return ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix), func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}, nil
}

func newMailer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.Mailer, error) {
	if cfg.Email.Provider == config.EmailProviderSES {
		mailer, err := services.NewSESMailer(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email service: %w", err)
		}
		return mailer, nil
	}

	logger.Warn("using log mailer; reset links are written to the log")
	return services.NewLogMailer(logger), nil
}
