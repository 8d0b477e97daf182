package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/grooming-scheduler/internal/appointment"
	"github.com/hackgods/grooming-scheduler/internal/config"
	"github.com/hackgods/grooming-scheduler/internal/db"
	redisclient "github.com/hackgods/grooming-scheduler/internal/redis"
	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger(os.Stderr, "info").Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stdout, "completion-worker")
	slog.SetDefault(logger)
	logger.Info("completion-worker starting up", "interval", cfg.WorkerInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// Completion only flips statuses of ended appointments; it never claims
	// a slot, so it does not need the groomer lock.
	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, redisclient.NoopLocker{}, cfg.Policy(), scheduling.SystemClock, logger)

	// Run once at startup
	runOnce(rootCtx, logger, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc)
		}
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompleteEndedAppointments(runCtx)
	if err != nil {
		logger.Error("completion run error", "error", err)
		return
	}
	logger.Info("completion run complete", "completed", n, "duration_ms", time.Since(start).Milliseconds())
}
