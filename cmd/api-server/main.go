package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/grooming-scheduler/internal/api"
	"github.com/hackgods/grooming-scheduler/internal/appointment"
	"github.com/hackgods/grooming-scheduler/internal/config"
	"github.com/hackgods/grooming-scheduler/internal/db"
	redisclient "github.com/hackgods/grooming-scheduler/internal/redis"
	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger(os.Stderr, "info").Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stdout, "api-server")
	slog.SetDefault(logger)
	logger.Info("api-server starting up",
		"http_port", cfg.HTTPPort,
		"timezone", cfg.Timezone.String(),
		"business_hours", scheduling.FormatClock(cfg.BusinessOpen)+"-"+scheduling.FormatClock(cfg.BusinessClose),
		"modification_window", cfg.ModificationWindow.String(),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
		applied, err := db.Migrate(migCtx, cfg.PostgresDSN)
		cancelMig()
		if err != nil {
			logger.Error("migration error", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "count", applied)
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Redis is optional: without it the advisory lock and exclusion
	// constraint still keep bookings consistent, but writes are not rate
	// limited.
	var (
		rdb     *redis.Client
		locker  redisclient.Locker = redisclient.NoopLocker{}
		limiter *redisclient.RateLimiter
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		locker = redisclient.NewRedisGroomerLocker(rdb, cfg.LockTTL)
		limiter = redisclient.NewRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "rl:writes")
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	} else {
		logger.Warn("redis disabled, running without distributed lock and rate limiting")
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, locker, cfg.Policy(), scheduling.SystemClock, logger)

	router := api.NewRouter(api.RouterConfig{
		Service:     svc,
		PgPool:      pgPool,
		Redis:       rdb,
		RateLimiter: limiter,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		Env:         cfg.Env,
		Version:     version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("api-server stopped")
}
