package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
)

type ledgerQueries struct {
	table    string
	snapshot string
	reserve  string
	release  string
	resize   string
}

// Every mutation is a single compare-and-swap UPDATE so concurrent reservations
// serialize on the row lock and the guard is re-evaluated after the wait.
var ledgerSQL = map[models.ResourceKind]ledgerQueries{
	models.KindTour: {
		table: "Tour",
		snapshot: `
			SELECT max_guests AS capacity, max_guests - guests_booked AS available,
			       status, price_minor, start_date AS starts_at
			FROM tours WHERE id = $1`,
		reserve: `
			UPDATE tours SET guests_booked = guests_booked + 1
			WHERE id = $1 AND guests_booked < max_guests
			  AND status NOT IN ('CANCELLED', 'COMPLETED')`,
		release: `
			UPDATE tours SET guests_booked = guests_booked - 1
			WHERE id = $1 AND guests_booked > 0`,
		resize: `
			UPDATE tours SET max_guests = $2
			WHERE id = $1 AND guests_booked <= $2`,
	},
	models.KindRoom: {
		table: "Room",
		snapshot: `
			SELECT total_rooms AS capacity, rooms_available AS available,
			       status, price_minor, NULL::timestamptz AS starts_at
			FROM rooms WHERE id = $1`,
		reserve: `
			UPDATE rooms SET rooms_available = rooms_available - 1
			WHERE id = $1 AND rooms_available > 0 AND status = 'AVAILABLE'`,
		release: `
			UPDATE rooms SET rooms_available = rooms_available + 1
			WHERE id = $1 AND rooms_available < total_rooms`,
		resize: `
			UPDATE rooms SET rooms_available = rooms_available + ($2 - total_rooms), total_rooms = $2
			WHERE id = $1 AND total_rooms - rooms_available <= $2`,
	},
	models.KindFlight: {
		table: "Flight",
		snapshot: `
			SELECT capacity, seats_available AS available,
			       status, price_minor, departure_time AS starts_at
			FROM flights WHERE id = $1`,
		reserve: `
			UPDATE flights SET seats_available = seats_available - 1
			WHERE id = $1 AND seats_available > 0
			  AND status NOT IN ('DEPARTED', 'ARRIVED', 'CANCELLED')`,
		release: `
			UPDATE flights SET seats_available = seats_available + 1
			WHERE id = $1 AND seats_available < capacity`,
		resize: `
			UPDATE flights SET seats_available = seats_available + ($2 - capacity), capacity = $2
			WHERE id = $1 AND capacity - seats_available <= $2`,
	},
}

type LedgerRepositoryPG struct {
	q sqlx.ExtContext
}

var _ LedgerRepository = (*LedgerRepositoryPG)(nil)

func NewLedgerRepository(q sqlx.ExtContext) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{q: q}
}

func queriesFor(target models.BookingTarget) (ledgerQueries, error) {
	qs, ok := ledgerSQL[target.Kind]
	if !ok {
		return ledgerQueries{}, apperrors.BadRequest("unknown resource type %q", target.Kind)
	}
	return qs, nil
}

type snapshotRow struct {
	Capacity  int           `db:"capacity"`
	Available int           `db:"available"`
	Status    string        `db:"status"`
	Price     models.Amount `db:"price_minor"`
	StartsAt  *time.Time    `db:"starts_at"`
}

func (r *LedgerRepositoryPG) Snapshot(ctx context.Context, target models.BookingTarget) (*models.InventorySnapshot, error) {
	qs, err := queriesFor(target)
	if err != nil {
		return nil, err
	}

	var row snapshotRow
	if err := sqlx.GetContext(ctx, r.q, &row, qs.snapshot, target.ID); err != nil {
		return nil, notFound(err, qs.table, target.ID)
	}

	return &models.InventorySnapshot{
		Target:    target,
		Capacity:  row.Capacity,
		Available: row.Available,
		Status:    row.Status,
		Price:     row.Price,
		StartsAt:  row.StartsAt,
	}, nil
}

func (r *LedgerRepositoryPG) Reserve(ctx context.Context, target models.BookingTarget) (bool, error) {
	qs, err := queriesFor(target)
	if err != nil {
		return false, err
	}
	return r.exec(ctx, qs.reserve, target.ID)
}

func (r *LedgerRepositoryPG) Release(ctx context.Context, target models.BookingTarget) (bool, error) {
	qs, err := queriesFor(target)
	if err != nil {
		return false, err
	}
	return r.exec(ctx, qs.release, target.ID)
}

func (r *LedgerRepositoryPG) Resize(ctx context.Context, target models.BookingTarget, capacity int) (bool, error) {
	qs, err := queriesFor(target)
	if err != nil {
		return false, err
	}
	return r.exec(ctx, qs.resize, target.ID, capacity)
}

func (r *LedgerRepositoryPG) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("ledger update failed: %w", translateError(err, "resource"))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger rows affected: %w", err)
	}
	return n == 1, nil
}
