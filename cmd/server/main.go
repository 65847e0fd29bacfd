package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/api"
	"github.com/zaidalbayati/minaret/internal/circuitbreaker"
	"github.com/zaidalbayati/minaret/internal/config"
	"github.com/zaidalbayati/minaret/internal/db"
	"github.com/zaidalbayati/minaret/internal/dispatch"
	"github.com/zaidalbayati/minaret/internal/metrics"
	"github.com/zaidalbayati/minaret/internal/observ"
	"github.com/zaidalbayati/minaret/internal/prayer"
	"github.com/zaidalbayati/minaret/internal/push"
	"github.com/zaidalbayati/minaret/internal/redis"
	"github.com/zaidalbayati/minaret/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting minaret server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("calc_method", cfg.CalcMethod),
	)

	profile, err := prayer.ProfileByName(cfg.CalcMethod)
	if err != nil {
		return fmt.Errorf("invalid CALC_METHOD: %w", err)
	}

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for rate limiting
	var rateLimiter *redis.RateLimiter
	if cfg.RedisEnabled {
		redisClient, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, rate limiting disabled",
				zap.Error(err),
				zap.String("host", cfg.RedisHost),
			)
		} else {
			rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  30,              // 30 requests
				Window: 1 * time.Minute, // per minute per IP
			})
			defer redisClient.Close()
		}
	}

	// VAPID keys for Web Push
	keys, err := push.LoadOrGenerateVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, logger)
	if err != nil {
		return fmt.Errorf("failed to load VAPID keys: %w", err)
	}

	// Push sender behind a circuit breaker
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("web-push"), logger)
	sender := circuitbreaker.NewProtectedSender(
		push.NewWebPushSender(push.WebPushConfig{
			Keys:    keys,
			Subject: cfg.VAPIDSubject,
		}, logger),
		breaker,
		logger,
	)

	dispatcher := dispatch.New(repo, sender, dispatch.Config{
		Concurrency: cfg.DispatchConcurrency,
	}, logger)

	planner := scheduler.NewPlanner(repo, profile, scheduler.PlannerConfig{
		Lead:                cfg.NotifyLead,
		FallbackOffsetHours: cfg.FallbackOffsetHours,
	}, logger)

	sched, err := scheduler.New(planner, dispatcher, repo, scheduler.Config{
		DueScanInterval: cfg.DueScanInterval,
		DueBatchSize:    cfg.DueBatchSize,
		RetentionDays:   cfg.RetentionDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", zap.Error(err))
		}
	}()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, repo, planner, keys.Public, cfg.DefaultTimezone).WithBreaker(breaker)
	r.Route("/api", func(r chi.Router) {
		r.Get("/vapid-public-key", handler.VAPIDPublicKey)
		r.Get("/stats", handler.GetStats)

		// Rate limit only the mutating routes
		r.Group(func(r chi.Router) {
			r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

			r.Post("/subscribe", handler.Subscribe)
			r.Post("/unsubscribe", handler.Unsubscribe)
			r.Post("/update-location", handler.UpdateLocation)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
