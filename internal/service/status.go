package service

import (
	"time"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
)

var bookingTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCancelled},
	models.BookingConfirmed: {models.BookingCompleted, models.BookingCancelled},
	models.BookingCancelled: nil,
	models.BookingCompleted: nil,
}

func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks the booking transition table. Same-status requests are no-ops.
func ValidateTransition(from, to models.BookingStatus) error {
	if !to.Valid() {
		return apperrors.Validation("Invalid booking status",
			apperrors.FieldError{Field: "status", Message: "must be one of PENDING, CONFIRMED, CANCELLED, COMPLETED"})
	}
	if from == to || CanTransition(from, to) {
		return nil
	}
	return apperrors.BadRequest("Cannot transition booking status from %s to %s", from, to)
}

// ValidateStatusChange adds the payment guard on top of the transition table.
func ValidateStatusChange(from, to models.BookingStatus, payment *models.Payment) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if payment != nil && payment.Status == models.PaymentCompleted &&
		(to == models.BookingPending || to == models.BookingCancelled) {
		return apperrors.BadRequest("Booking has a completed payment; refund it before setting status to %s", to)
	}
	return nil
}

// ValidateReferenceChange rejects user or resource changes on terminal bookings.
func ValidateReferenceChange(b *models.Booking) error {
	if b.Status.Terminal() {
		return apperrors.BadRequest("Cannot change the resource or user of a %s booking", b.Status)
	}
	return nil
}

func ValidateDeletion(b *models.Booking, payment *models.Payment, now time.Time) error {
	if b.Status == models.BookingCompleted {
		return apperrors.BadRequest("Completed bookings cannot be deleted")
	}
	if payment != nil && payment.Status == models.PaymentCompleted {
		return apperrors.BadRequest("Cannot delete a booking with a completed payment; refund it first")
	}
	if b.Status == models.BookingConfirmed && b.BookingDate.Before(now) {
		return apperrors.BadRequest("Past confirmed bookings must be cancelled, not deleted")
	}
	return nil
}

// ValidatePaymentTransition allows administrative moves except out of REFUNDED
// and from COMPLETED back to PENDING.
func ValidatePaymentTransition(from, to models.PaymentStatus) error {
	if !to.Valid() {
		return apperrors.Validation("Invalid payment status",
			apperrors.FieldError{Field: "status", Message: "must be one of PENDING, COMPLETED, FAILED, REFUNDED"})
	}
	if from == to {
		return nil
	}
	if from == models.PaymentRefunded {
		return apperrors.BadRequest("Cannot change status of a refunded payment")
	}
	if from == models.PaymentCompleted && to == models.PaymentPending {
		return apperrors.BadRequest("Cannot revert a completed payment to pending")
	}
	return nil
}

// BookingStatusForPayment derives the booking status implied by a payment status.
func BookingStatusForPayment(status models.PaymentStatus) models.BookingStatus {
	switch status {
	case models.PaymentCompleted:
		return models.BookingConfirmed
	case models.PaymentFailed, models.PaymentRefunded:
		return models.BookingCancelled
	default:
		return models.BookingPending
	}
}
