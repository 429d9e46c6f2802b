package service

import (
	"context"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/metrics"
	"tourbook/internal/models"
	"tourbook/internal/repository"
)

// Ledger applies reservations against resource counters. It is bound to one
// repository, normally the one of the caller's transaction.
type Ledger struct {
	repo repository.LedgerRepository
}

func NewLedger(repo repository.LedgerRepository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) CheckAvailability(ctx context.Context, target models.BookingTarget) (models.Availability, error) {
	snap, err := l.repo.Snapshot(ctx, target)
	if err != nil {
		return models.Availability{}, err
	}
	return snap.Availability(), nil
}

// Reserve consumes one unit. When the guarded update matches nothing the
// resource is re-read to report why.
func (l *Ledger) Reserve(ctx context.Context, target models.BookingTarget) error {
	ok, err := l.repo.Reserve(ctx, target)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	snap, err := l.repo.Snapshot(ctx, target)
	if err != nil {
		return err
	}
	if !snap.Bookable() {
		metrics.LedgerRejections.WithLabelValues(string(target.Kind), "not_bookable").Inc()
		return apperrors.BadRequest("%s %d is not bookable (status %s)", kindName(target.Kind), target.ID, snap.Status)
	}
	metrics.LedgerRejections.WithLabelValues(string(target.Kind), "sold_out").Inc()
	return apperrors.BadRequest("No available slots")
}

// Release returns one unit. Releasing more than was reserved is a Conflict.
func (l *Ledger) Release(ctx context.Context, target models.BookingTarget) error {
	ok, err := l.repo.Release(ctx, target)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if _, err := l.repo.Snapshot(ctx, target); err != nil {
		return err
	}
	return apperrors.Conflict("%s %d has no reserved units to release", kindName(target.Kind), target.ID)
}

// Reassign moves a reservation from one resource to another of the same kind.
func (l *Ledger) Reassign(ctx context.Context, from, to models.BookingTarget) error {
	if from == to {
		return nil
	}
	if from.Kind != to.Kind {
		return apperrors.BadRequest("Booking target type cannot change from %s to %s", from.Kind, to.Kind)
	}
	if err := l.Release(ctx, from); err != nil {
		return err
	}
	return l.Reserve(ctx, to)
}

func (l *Ledger) Resize(ctx context.Context, target models.BookingTarget, capacity int) (models.Availability, error) {
	if capacity < 0 {
		return models.Availability{}, apperrors.Validation("Invalid capacity",
			apperrors.FieldError{Field: "capacity", Message: "must be zero or greater"})
	}

	ok, err := l.repo.Resize(ctx, target, capacity)
	if err != nil {
		return models.Availability{}, err
	}

	snap, err := l.repo.Snapshot(ctx, target)
	if err != nil {
		return models.Availability{}, err
	}
	if !ok {
		used := snap.Capacity - snap.Available
		return models.Availability{}, apperrors.BadRequest(
			"Capacity %d is below the %d units already booked", capacity, used)
	}
	return snap.Availability(), nil
}

func kindName(k models.ResourceKind) string {
	switch k {
	case models.KindTour:
		return "Tour"
	case models.KindRoom:
		return "Room"
	case models.KindFlight:
		return "Flight"
	}
	return string(k)
}
