package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/ratewatch/internal/config"
	"github.com/aristath/ratewatch/internal/database"
	"github.com/aristath/ratewatch/internal/engine"
	"github.com/aristath/ratewatch/internal/scheduler"
	"github.com/aristath/ratewatch/internal/server"
	"github.com/aristath/ratewatch/pkg/logger"
)

func main() {
	bootLog := logger.New(logger.Config{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	log.Info().Msg("starting ratewatch")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	eng := engine.New(cfg, db.Conn(), log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := eng.RegisterJobs(sched); err != nil {
		log.Fatal().Err(err).Msg("failed to register scheduled jobs")
	}

	ctx, cancelPollers := context.WithCancel(context.Background())
	defer cancelPollers()
	eng.Start(ctx)

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Engine:  eng,
		Config:  cfg,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("ratewatch started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancelPollers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}
