package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tourbook/internal/api"
	"tourbook/internal/config"
	"tourbook/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start server", "error", err)
	}

	srv := server.HTTPServer()

	go func() {
		log.Info("Starting server", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := server.Close(); err != nil {
		log.Error("Error during cleanup", "error", err)
	}

	log.Info("Server stopped")
}
