package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lead-relay/internal/app"
	"lead-relay/internal/common/logging"
	"lead-relay/internal/config"
)

func main() {
	// Missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()

	logger := logging.GetGlobalLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble application", err)
		os.Exit(1)
	}

	serverErr, err := application.Start()
	if err != nil {
		logger.Error("Failed to start", err)
		application.Close()
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("Server failed", err)
		application.Close()
		os.Exit(1)
	case sig := <-quit:
		logger.Info("Shutting down", logging.Field{Key: "signal", Value: sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, app.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown was not clean", logging.Field{Key: "error", Value: err.Error()})
	}
}
