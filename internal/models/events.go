package models

import "time"

// NATS subjects
const (
	EventBookingCreated   = "booking.created"
	EventBookingUpdated   = "booking.updated"
	EventBookingDeleted   = "booking.deleted"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// BookingEvent is published on every booking write.
type BookingEvent struct {
	BookingID  int64         `json:"booking_id"`
	UserID     int64         `json:"user_id"`
	Type       ResourceKind  `json:"type"`
	ResourceID int64         `json:"resource_id"`
	Status     BookingStatus `json:"status"`
	TotalPrice Amount        `json:"total_price"`
	Timestamp  time.Time     `json:"timestamp"`
}

// PaymentEvent is published on payment outcome changes.
type PaymentEvent struct {
	PaymentID int64         `json:"payment_id"`
	BookingID int64         `json:"booking_id"`
	Reference string        `json:"reference"`
	Status    PaymentStatus `json:"status"`
	Amount    Amount        `json:"amount"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewBookingEvent(b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:  b.ID,
		UserID:     b.UserID,
		Type:       b.Target.Kind,
		ResourceID: b.Target.ID,
		Status:     b.Status,
		TotalPrice: b.TotalPrice,
		Timestamp:  at,
	}
}

func NewPaymentEvent(p *Payment, reason string, at time.Time) PaymentEvent {
	return PaymentEvent{
		PaymentID: p.ID,
		BookingID: p.BookingID,
		Reference: p.TransactionReference,
		Status:    p.Status,
		Amount:    p.Amount,
		Reason:    reason,
		Timestamp: at,
	}
}
