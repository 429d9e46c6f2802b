package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tourbook/internal/models"
)

type PaymentRepositoryPG struct {
	q sqlx.ExtContext
}

var _ PaymentRepository = (*PaymentRepositoryPG)(nil)

func NewPaymentRepository(q sqlx.ExtContext) *PaymentRepositoryPG {
	return &PaymentRepositoryPG{q: q}
}

const paymentColumns = `
	id, booking_id, user_id, amount_minor, currency, payment_method, status,
	transaction_reference, authorization_url, payment_date, refund_reason, created_at, updated_at`

func (r *PaymentRepositoryPG) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (booking_id, user_id, amount_minor, currency, payment_method, status,
		                      transaction_reference, authorization_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.q.QueryRowxContext(ctx, query,
		p.BookingID,
		p.UserID,
		p.Amount,
		p.Currency,
		p.PaymentMethod,
		p.Status,
		p.TransactionReference,
		p.AuthorizationURL,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", translateError(err, "payment"))
	}
	return nil
}

func (r *PaymentRepositoryPG) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.get(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepositoryPG) GetForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.get(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *PaymentRepositoryPG) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return r.get(ctx, `SELECT`+paymentColumns+` FROM payments WHERE transaction_reference = $1`, reference)
}

func (r *PaymentRepositoryPG) GetByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error) {
	return r.get(ctx, `SELECT`+paymentColumns+` FROM payments WHERE transaction_reference = $1 FOR UPDATE`, reference)
}

func (r *PaymentRepositoryPG) GetByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error) {
	var p models.Payment
	err := sqlx.GetContext(ctx, r.q, &p, `SELECT`+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for booking %d: %w", bookingID, err)
	}
	return &p, nil
}

func (r *PaymentRepositoryPG) get(ctx context.Context, query string, key any) (*models.Payment, error) {
	var p models.Payment
	if err := sqlx.GetContext(ctx, r.q, &p, query, key); err != nil {
		return nil, notFound(err, "Payment", key)
	}
	return &p, nil
}

func (r *PaymentRepositoryPG) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, payment_method = $3, transaction_reference = $4, authorization_url = $5,
		    amount_minor = $6, payment_date = $7, refund_reason = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRowxContext(ctx, query,
		p.ID,
		p.Status,
		p.PaymentMethod,
		p.TransactionReference,
		p.AuthorizationURL,
		p.Amount,
		p.PaymentDate,
		p.RefundReason,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return notFound(translateError(err, "payment"), "Payment", p.ID)
	}
	return nil
}

func (r *PaymentRepositoryPG) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "Payment", id)
	}
	return nil
}
