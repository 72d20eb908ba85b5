package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"triage_worker/config"
	"triage_worker/internal/bootstrap"
	"triage_worker/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Service: "triage_worker"})
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Service: "triage_worker",
		Pretty:  cfg.IsDevelopment(),
	})

	worker, cleanup, err := bootstrap.NewWorker(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize worker")
	}
	defer cleanup()

	if err := worker.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker")
	}

	app := bootstrap.NewAPI(worker)
	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Msg("starting http server")
		if err := app.Listen(addr); err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")

	done := make(chan struct{})
	go func() {
		_ = app.Shutdown()
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("shut down gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("shutdown timed out, forcing exit")
		os.Exit(1)
	}
}
