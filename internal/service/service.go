package service

import (
	"context"
	"time"

	"tourbook/internal/external"
	"tourbook/internal/logger"
	"tourbook/internal/repository"
)

// EventPublisher is satisfied by messaging.NATSClient.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// BookingSearcher resolves a free-text query to booking ids.
type BookingSearcher interface {
	SearchBookingIDs(ctx context.Context, query string, limit int) ([]int64, error)
}

// Gateway is the payment provider; external.PaymentClient implements it.
type Gateway interface {
	Initialize(ctx context.Context, req external.InitializeRequest) (*external.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*external.Transaction, error)
	ValidSignature(body []byte, signature string) bool
}

// WebhookDeduper remembers processed webhook deliveries.
type WebhookDeduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

type PaymentOptions struct {
	Currency    string
	CallbackURL string
}

type Services struct {
	Bookings *BookingService
	Payments *PaymentService
}

type Deps struct {
	Store     repository.Store
	Publisher EventPublisher
	Searcher  BookingSearcher
	Gateway   Gateway
	Deduper   WebhookDeduper
	Payment   PaymentOptions
}

func NewServices(deps Deps) *Services {
	return &Services{
		Bookings: NewBookingService(deps.Store, deps.Publisher, deps.Searcher),
		Payments: NewPaymentService(deps.Store, deps.Gateway, deps.Publisher, deps.Deduper, deps.Payment),
	}
}

// publish logs and swallows publisher failures; events are not part of the
// transactional outcome.
func publish(ctx context.Context, p EventPublisher, subject string, data interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err,
			"subject", subject)
	}
}

type clock func() time.Time
