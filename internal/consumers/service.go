package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/stan.go"

	"tourbook/internal/messaging"
	"tourbook/internal/models"
)

const queueGroup = "search-indexer"

type ConsumerService struct {
	nats     *messaging.NATSClient
	handlers *Handlers
	subs     []stan.Subscription
}

func NewConsumerService(nats *messaging.NATSClient, handlers *Handlers) *ConsumerService {
	return &ConsumerService{nats: nats, handlers: handlers}
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	routes := []struct {
		subject string
		fn      func(context.Context, []byte) error
	}{
		{models.EventBookingCreated, cs.handlers.OnBookingChanged},
		{models.EventBookingUpdated, cs.handlers.OnBookingChanged},
		{models.EventBookingDeleted, cs.handlers.OnBookingDeleted},
		{models.EventPaymentCompleted, cs.handlers.OnPaymentChanged},
		{models.EventPaymentFailed, cs.handlers.OnPaymentChanged},
		{models.EventPaymentRefunded, cs.handlers.OnPaymentChanged},
	}

	for _, r := range routes {
		sub, err := cs.nats.SubscribeQueue(r.subject, queueGroup, ack(r.subject, r.fn))
		if err != nil {
			return fmt.Errorf("start consumer %s: %w", r.subject, err)
		}
		cs.subs = append(cs.subs, sub)
	}

	slog.Info("All consumers started successfully", "subjects", len(cs.subs))
	return nil
}

// Shutdown closes the subscriptions without unsubscribing, keeping the
// durable queue position for the next start.
func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	var errs []error
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	cs.subs = nil
	return errors.Join(errs...)
}
