package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tourbook/internal/database"
	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
)

// LedgerRepository performs the conditional counter updates on resource rows.
// Mutations report false when the guard did not match any row.
type LedgerRepository interface {
	Snapshot(ctx context.Context, target models.BookingTarget) (*models.InventorySnapshot, error)
	Reserve(ctx context.Context, target models.BookingTarget) (bool, error)
	Release(ctx context.Context, target models.BookingTarget) (bool, error)
	Resize(ctx context.Context, target models.BookingTarget, capacity int) (bool, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Booking, error)
	GetDetails(ctx context.Context, id int64) (*models.BookingDetails, error)
	List(ctx context.Context, filter models.BookingListFilter) ([]models.BookingDetails, int, error)
	Update(ctx context.Context, booking *models.Booking) error
	Delete(ctx context.Context, id int64) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Payment, error)
	// GetByBookingID returns nil, nil when the booking has no payment.
	GetByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	GetByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id int64) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Repositories struct {
	Ledger   LedgerRepository
	Bookings BookingRepository
	Payments PaymentRepository
	Users    UserRepository
}

// Store hands out repositories bound either to the pool or to one transaction.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn func(Repositories) error) error
}

type PGStore struct {
	db *database.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *database.DB) *PGStore {
	return &PGStore{db: db}
}

func newRepositories(q sqlx.ExtContext) Repositories {
	return Repositories{
		Ledger:   NewLedgerRepository(q),
		Bookings: NewBookingRepository(q),
		Payments: NewPaymentRepository(q),
		Users:    NewUserRepository(q),
	}
}

func (s *PGStore) Repos() Repositories {
	return newRepositories(s.db)
}

// WithTx runs fn inside one READ COMMITTED transaction. Any error returned by fn
// rolls the whole transaction back.
func (s *PGStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

func translateError(err error, entity string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return apperrors.Wrap(apperrors.KindConflict, err, entity+" already exists")
		case pqCheckViolation:
			return apperrors.Wrap(apperrors.KindBadRequest, err, entity+" violates a constraint")
		}
	}
	return err
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(entity, id)
	}
	return err
}
