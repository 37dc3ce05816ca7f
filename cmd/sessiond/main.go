package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubsched/sessiond/internal/app"
	"github.com/clubsched/sessiond/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool: " + err.Error())
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator: " + err.Error())
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to run migrations: " + err.Error())
	}
	migrator.Close()

	a := app.New(cfg, pool, logger)
	if err := a.Start(ctx); err != nil {
		logger.Fatal("Failed to start: " + err.Error())
	}

	logger.Info("sessiond started")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.Stop(shutdownCtx); err != nil {
		logger.Error("Shutdown error: " + err.Error())
	}
}
