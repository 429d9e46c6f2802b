package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"tourbook/cmd/consumers/jobs"
	"tourbook/internal/config"
	"tourbook/internal/consumers"
	"tourbook/internal/database"
	"tourbook/internal/logger"
	"tourbook/internal/messaging"
	"tourbook/internal/repository"
	"tourbook/internal/search"
	"tourbook/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()
	log.Info("Starting consumers service...")

	cfg.NATS.ClientID = "tourbook-consumers"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}
	defer natsClient.Close()

	store := repository.NewPGStore(db)
	bookings := service.NewBookingService(store, natsClient, nil)

	job := jobs.NewBookingExpirationJob(bookings, cfg.Booking.PendingHold, cfg.Booking.SweepInterval)
	job.Start(ctx)
	defer job.Stop()

	var consumerService *consumers.ConsumerService
	switch {
	case !cfg.Elasticsearch.Enabled:
		log.Warn("Elasticsearch disabled, search index consumers not started")
	case !natsClient.Connected():
		log.Warn("NATS disabled, search index consumers not started")
	default:
		es, err := search.NewElasticsearchClient(ctx, cfg.Elasticsearch)
		if err != nil {
			logger.Fatal("Failed to connect to Elasticsearch", "error", err)
		}
		consumerService = consumers.NewConsumerService(natsClient, consumers.NewHandlers(store.Repos().Bookings, es))
		if err := consumerService.Start(); err != nil {
			logger.Fatal("Failed to start consumers", "error", err)
		}
	}

	log.Info("Consumers service started successfully")
	<-ctx.Done()
	log.Info("Shutting down consumers service...")

	if consumerService != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := consumerService.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during shutdown", "error", err)
		}
	}

	log.Info("Consumers service stopped")
}
