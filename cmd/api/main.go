package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"checkout-relay-backend/internal/app"
	"checkout-relay-backend/internal/config"
	"checkout-relay-backend/pkg/logger"
	"checkout-relay-backend/pkg/validator"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.New()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting checkout relay", map[string]interface{}{"environment": cfg.Environment})

	if envErr != nil {
		logger.Info("No .env file found, using environment variables", nil)
	}

	validator.Init()
	if err := cfg.Validate(); err != nil {
		logger.Error(err, "Invalid configuration", nil)
		os.Exit(1)
	}

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		logger.Error(err, "Failed to initialize application", nil)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := application.Run(); err != nil && !app.IsServerClosed(err) {
			logger.Error(err, "Failed to start server", nil)
			serverErr <- err
		}
	}()

	// Wait for either interrupt signal or server error
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...", nil)
	case <-serverErr:
		logger.Warn("Server error occurred, initiating shutdown", nil)
		exitCode = 1
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server forced to shutdown", nil)
		os.Exit(1)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logger.Info("Server exited gracefully", nil)
}
