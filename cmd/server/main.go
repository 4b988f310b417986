// Package main is the entry point for the CryptoSage backend.
// It serves LSTM trend predictions and mean-variance allocations for
// crypto portfolios, stores user holdings, and runs database maintenance
// in the background.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptosage/backend/internal/config"
	"github.com/cryptosage/backend/internal/di"
	"github.com/cryptosage/backend/internal/server"
	"github.com/cryptosage/backend/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// main orchestrates startup:
// 1. Loads configuration (.env and environment)
// 2. Initializes logging
// 3. Wires databases, clients, services and jobs via the DI container
// 4. Starts the scheduler and the HTTP server
// 5. Waits for a shutdown signal and stops everything gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("version", version).Str("data_dir", cfg.DataDir).Msg("Starting CryptoSage")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		RequestTimeout: cfg.Advisor.RequestTimeout,
		Version:        version,
		System:         container.SystemHandlers,
		Modules:        container.Modules(),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Block until SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight requests get 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Waits for a running maintenance or backup job to finish
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
