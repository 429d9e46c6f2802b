package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/stan.go"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
	"tourbook/internal/repository"
	"tourbook/internal/search"
)

const handleTimeout = 20 * time.Second

// Indexer is satisfied by search.ElasticsearchClient.
type Indexer interface {
	IndexBooking(ctx context.Context, doc search.BookingDocument) error
	DeleteBooking(ctx context.Context, id int64) error
}

// Handlers keep the booking search index in step with booking and payment events.
type Handlers struct {
	bookings repository.BookingRepository
	index    Indexer
}

func NewHandlers(bookings repository.BookingRepository, index Indexer) *Handlers {
	return &Handlers{bookings: bookings, index: index}
}

// errPoison marks messages that can never succeed; they are acked and dropped.
type errPoison struct{ err error }

func (e errPoison) Error() string { return e.err.Error() }

// ack adapts fn to a manual-ack NATS handler. Successful and poison messages
// are acked; anything else is left for redelivery after AckWait.
func ack(subject string, fn func(ctx context.Context, data []byte) error) stan.MsgHandler {
	return func(m *stan.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		err := fn(ctx, m.Data)
		if err != nil {
			var poison errPoison
			if !errors.As(err, &poison) {
				slog.Error("Failed to process message, awaiting redelivery",
					"subject", subject, "sequence", m.Sequence, "error", err)
				return
			}
			slog.Error("Dropping unprocessable message",
				"subject", subject, "sequence", m.Sequence, "error", err)
		}

		if err := m.Ack(); err != nil {
			slog.Error("Failed to ack message", "subject", subject, "error", err)
		}
	}
}

func (h *Handlers) OnBookingChanged(ctx context.Context, data []byte) error {
	var event models.BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return errPoison{fmt.Errorf("decode booking event: %w", err)}
	}
	return h.SyncBooking(ctx, event.BookingID)
}

func (h *Handlers) OnBookingDeleted(ctx context.Context, data []byte) error {
	var event models.BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return errPoison{fmt.Errorf("decode booking event: %w", err)}
	}
	if err := h.index.DeleteBooking(ctx, event.BookingID); err != nil {
		return err
	}
	slog.Debug("Removed booking from index", "booking_id", event.BookingID)
	return nil
}

func (h *Handlers) OnPaymentChanged(ctx context.Context, data []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return errPoison{fmt.Errorf("decode payment event: %w", err)}
	}
	return h.SyncBooking(ctx, event.BookingID)
}

// SyncBooking re-reads the booking and writes its current state to the index,
// removing the document when the booking no longer exists.
func (h *Handlers) SyncBooking(ctx context.Context, id int64) error {
	details, err := h.bookings.GetDetails(ctx, id)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return h.index.DeleteBooking(ctx, id)
	}
	if err != nil {
		return err
	}

	if err := h.index.IndexBooking(ctx, search.NewBookingDocument(details)); err != nil {
		return err
	}
	slog.Debug("Indexed booking", "booking_id", id, "status", details.Status)
	return nil
}
