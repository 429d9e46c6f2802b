package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/external"
	"tourbook/internal/logger"
	"tourbook/internal/metrics"
	"tourbook/internal/models"
	"tourbook/internal/repository"
)

type PaymentService struct {
	store     repository.Store
	gateway   Gateway
	publisher EventPublisher
	deduper   WebhookDeduper
	opts      PaymentOptions
	now       clock
}

func NewPaymentService(store repository.Store, gateway Gateway, publisher EventPublisher, deduper WebhookDeduper, opts PaymentOptions) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = "NGN"
	}
	return &PaymentService{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		deduper:   deduper,
		opts:      opts,
		now:       time.Now,
	}
}

func newReference() string {
	return "TB-" + uuid.NewString()
}

func initiateResponse(p *models.Payment) *models.InitiatePaymentResponse {
	return &models.InitiatePaymentResponse{
		AuthorizationURL:     p.AuthorizationURL,
		PaymentID:            p.ID,
		TransactionReference: p.TransactionReference,
	}
}

// Initiate opens a gateway transaction for a pending booking. The gateway is
// called outside the database transaction; the row is written afterwards
// under the booking lock.
func (s *PaymentService) Initiate(ctx context.Context, principal models.Principal, req *models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error) {
	if !req.PaymentMethod.Valid() {
		return nil, apperrors.Validation("Invalid payment method",
			apperrors.FieldError{Field: "paymentMethod", Message: "must be one of CARD, BANK_TRANSFER, USSD, MOBILE_MONEY"})
	}

	repos := s.store.Repos()
	booking, err := repos.Bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if principal.IsCustomer() && booking.UserID != principal.ID {
		return nil, apperrors.Forbidden("You can only pay for your own bookings")
	}
	if booking.Status != models.BookingPending {
		return nil, apperrors.BadRequest("Only pending bookings can be paid (status %s)", booking.Status)
	}

	existing, err := repos.Payments.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.PaymentPending:
			return initiateResponse(existing), nil
		case models.PaymentCompleted, models.PaymentRefunded:
			return nil, apperrors.Conflict("Booking %d already has a %s payment", booking.ID, existing.Status)
		}
	}

	user, err := repos.Users.GetByID(ctx, booking.UserID)
	if err != nil {
		return nil, err
	}

	reference := newReference()
	intent, err := s.gateway.Initialize(ctx, external.InitializeRequest{
		Email:       user.Email,
		Amount:      booking.TotalPrice.Minor(),
		Currency:    s.opts.Currency,
		Reference:   reference,
		CallbackURL: s.opts.CallbackURL,
		Metadata: map[string]any{
			"booking_id":     booking.ID,
			"payment_method": req.PaymentMethod,
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGateway, err, "Payment gateway is unavailable, please retry")
	}
	if intent.Reference != "" {
		reference = intent.Reference
	}

	var payment *models.Payment
	err = s.store.WithTx(ctx, func(repos repository.Repositories) error {
		b, err := repos.Bookings.GetForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingPending {
			return apperrors.BadRequest("Only pending bookings can be paid (status %s)", b.Status)
		}

		current, err := repos.Payments.GetByBookingID(ctx, b.ID)
		if err != nil {
			return err
		}

		switch {
		case current == nil:
			payment = &models.Payment{
				BookingID:            b.ID,
				UserID:               b.UserID,
				Amount:               b.TotalPrice,
				Currency:             s.opts.Currency,
				PaymentMethod:        req.PaymentMethod,
				Status:               models.PaymentPending,
				TransactionReference: reference,
				AuthorizationURL:     intent.AuthorizationURL,
			}
			return repos.Payments.Create(ctx, payment)
		case current.Status == models.PaymentFailed:
			// Retry after a failed attempt re-arms the same row.
			current.Amount = b.TotalPrice
			current.PaymentMethod = req.PaymentMethod
			current.Status = models.PaymentPending
			current.TransactionReference = reference
			current.AuthorizationURL = intent.AuthorizationURL
			current.PaymentDate = nil
			payment = current
			return repos.Payments.Update(ctx, payment)
		case current.Status == models.PaymentPending:
			logger.WithContext(ctx).Warn("Concurrent payment initiation, discarding new gateway intent",
				"booking_id", b.ID, "reference", reference)
			payment = current
			return nil
		default:
			return apperrors.Conflict("Booking %d already has a %s payment", b.ID, current.Status)
		}
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Payment initiated",
		"payment_id", payment.ID,
		"booking_id", payment.BookingID,
		"reference", payment.TransactionReference,
		"amount", payment.Amount.String())
	return initiateResponse(payment), nil
}

func (s *PaymentService) Get(ctx context.Context, principal models.Principal, id int64) (*models.Payment, error) {
	payment, err := s.store.Repos().Payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if principal.IsCustomer() && payment.UserID != principal.ID {
		return nil, apperrors.Forbidden("You can only view your own payments")
	}
	return payment, nil
}

func resultFor(p *models.Payment, success bool, message string) *models.VerificationResult {
	return &models.VerificationResult{
		Success:   success,
		Message:   message,
		Reference: p.TransactionReference,
		PaymentID: p.ID,
		BookingID: p.BookingID,
		Status:    p.Status,
	}
}

func alreadyProcessed(p *models.Payment) *models.VerificationResult {
	return resultFor(p, p.Status == models.PaymentCompleted, "Payment already processed")
}

// Verify reconciles a payment with the gateway's record. Payments that are no
// longer PENDING are reported as-is without another state change. A gateway
// error leaves the payment untouched and is returned for retry.
func (s *PaymentService) Verify(ctx context.Context, reference string) (*models.VerificationResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, apperrors.Validation("Missing transaction reference",
			apperrors.FieldError{Field: "reference", Message: "is required"})
	}

	payment, err := s.store.Repos().Payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentPending {
		return alreadyProcessed(payment), nil
	}

	tx, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		logger.WithContext(ctx).Error("Payment verification failed", "reference", reference, "error", err)
		return nil, apperrors.Wrap(apperrors.KindGateway, err, "Could not verify payment with the gateway, please retry")
	}

	var result *models.VerificationResult
	var confirmed *models.Booking
	changed := false
	err = s.store.WithTx(ctx, func(repos repository.Repositories) error {
		p, err := repos.Payments.GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentPending {
			result = alreadyProcessed(p)
			return nil
		}

		booking, err := repos.Bookings.GetForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}

		if reason := mismatch(tx, booking, p); reason != "" {
			p.Status = models.PaymentFailed
			if err := repos.Payments.Update(ctx, p); err != nil {
				return err
			}
			result = resultFor(p, false, reason)
			changed = true
			return nil
		}

		paidAt := s.now()
		if tx.PaidAt != nil {
			paidAt = *tx.PaidAt
		}
		p.Status = models.PaymentCompleted
		p.PaymentDate = &paidAt
		if err := repos.Payments.Update(ctx, p); err != nil {
			return err
		}

		if booking.Status == models.BookingPending {
			if err := ValidateTransition(booking.Status, models.BookingConfirmed); err != nil {
				return err
			}
			booking.Status = models.BookingConfirmed
			if err := repos.Bookings.Update(ctx, booking); err != nil {
				return err
			}
			confirmed = booking
		} else {
			logger.WithContext(ctx).Warn("Payment completed for a booking that is no longer pending",
				"booking_id", booking.ID, "booking_status", booking.Status, "reference", reference)
		}

		result = resultFor(p, true, "Payment verified successfully")
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recordOutcome(ctx, result, "verify")
	}
	if confirmed != nil {
		publish(ctx, s.publisher, models.EventBookingUpdated, models.NewBookingEvent(confirmed, s.now()))
	}
	return result, nil
}

// mismatch returns why a gateway transaction does not settle the booking, or "".
func mismatch(tx *external.Transaction, booking *models.Booking, p *models.Payment) string {
	if !tx.Successful() {
		msg := "Payment was not successful"
		if tx.GatewayResponse != "" {
			msg += ": " + tx.GatewayResponse
		}
		return msg
	}
	if tx.Amount != booking.TotalPrice.Minor() {
		return fmt.Sprintf("Amount mismatch: expected %s, gateway reported %s",
			booking.TotalPrice, models.Amount(tx.Amount))
	}
	if tx.Currency != "" && !strings.EqualFold(tx.Currency, p.Currency) {
		return fmt.Sprintf("Currency mismatch: expected %s, gateway reported %s", p.Currency, tx.Currency)
	}
	return ""
}

func (s *PaymentService) recordOutcome(ctx context.Context, result *models.VerificationResult, source string) {
	metrics.PaymentOutcomes.WithLabelValues(string(result.Status), source).Inc()
	logger.WithContext(ctx).Info("Payment reconciled",
		"payment_id", result.PaymentID,
		"booking_id", result.BookingID,
		"status", result.Status,
		"message", result.Message)

	subject := models.EventPaymentFailed
	if result.Status == models.PaymentCompleted {
		subject = models.EventPaymentCompleted
	}
	publish(ctx, s.publisher, subject, models.PaymentEvent{
		PaymentID: result.PaymentID,
		BookingID: result.BookingID,
		Reference: result.Reference,
		Status:    result.Status,
		Reason:    result.Message,
		Timestamp: s.now(),
	})
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// HandleWebhook authenticates a gateway delivery by its HMAC signature and
// reconciles the referenced payment.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*models.VerificationResult, error) {
	if !s.gateway.ValidSignature(body, signature) {
		logger.WithContext(ctx).Warn("Rejected webhook with invalid signature")
		return nil, apperrors.New(apperrors.KindUnauthorized, "Invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadRequest, err, "Malformed webhook payload")
	}
	if payload.Data.Reference == "" {
		return nil, apperrors.BadRequest("Webhook payload has no transaction reference")
	}
	if payload.Event != "" && !strings.HasPrefix(payload.Event, "charge.") {
		return &models.VerificationResult{Reference: payload.Data.Reference, Message: "Event ignored"}, nil
	}

	key := payload.Event + ":" + payload.Data.Reference
	if s.deduper != nil {
		seen, err := s.deduper.Seen(ctx, key)
		if err != nil {
			logger.WithContext(ctx).Warn("Webhook dedupe lookup failed", "error", err)
		} else if seen {
			return &models.VerificationResult{Reference: payload.Data.Reference, Message: "Duplicate webhook ignored"}, nil
		}
	}

	result, err := s.Verify(ctx, payload.Data.Reference)
	if err != nil {
		return nil, err
	}

	if s.deduper != nil {
		if err := s.deduper.Remember(ctx, key); err != nil {
			logger.WithContext(ctx).Warn("Failed to remember webhook delivery", "error", err)
		}
	}
	return result, nil
}

// UpdateStatus is the administrative status override. The booking follows the
// derived status through the booking state machine.
func (s *PaymentService) UpdateStatus(ctx context.Context, principal models.Principal, id int64, status models.PaymentStatus) (*models.Payment, error) {
	if !principal.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can change payment status")
	}

	var payment *models.Payment
	var booking *models.Booking
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		payment, err = repos.Payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidatePaymentTransition(payment.Status, status); err != nil {
			return err
		}
		if payment.Status == status {
			return nil
		}

		booking, err = repos.Bookings.GetForUpdate(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		derived := BookingStatusForPayment(status)
		if booking.Status != derived {
			if err := ValidateTransition(booking.Status, derived); err != nil {
				return err
			}
			if derived == models.BookingCancelled {
				if err := NewLedger(repos.Ledger).Release(ctx, booking.Target); err != nil {
					return err
				}
			}
			booking.Status = derived
			if err := repos.Bookings.Update(ctx, booking); err != nil {
				return err
			}
		}

		payment.Status = status
		if status == models.PaymentCompleted && payment.PaymentDate == nil {
			now := s.now()
			payment.PaymentDate = &now
		}
		return repos.Payments.Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	if booking != nil {
		metrics.PaymentOutcomes.WithLabelValues(string(status), "admin").Inc()
		logger.WithContext(ctx).Info("Payment status changed",
			"payment_id", payment.ID,
			"status", status,
			"booking_id", booking.ID,
			"booking_status", booking.Status)
		if subject, ok := paymentSubject(status); ok {
			publish(ctx, s.publisher, subject, models.NewPaymentEvent(payment, "", s.now()))
		}
		publish(ctx, s.publisher, models.EventBookingUpdated, models.NewBookingEvent(booking, s.now()))
	}
	return payment, nil
}

func paymentSubject(status models.PaymentStatus) (string, bool) {
	switch status {
	case models.PaymentCompleted:
		return models.EventPaymentCompleted, true
	case models.PaymentFailed:
		return models.EventPaymentFailed, true
	case models.PaymentRefunded:
		return models.EventPaymentRefunded, true
	}
	return "", false
}

// Refund marks a completed payment REFUNDED and cancels its booking. Only local
// state changes; the gateway is not asked to move money back.
func (s *PaymentService) Refund(ctx context.Context, principal models.Principal, id int64, reason string) (*models.Payment, error) {
	if !principal.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can refund payments")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("Refund reason is required",
			apperrors.FieldError{Field: "reason", Message: "is required"})
	}

	var payment *models.Payment
	var booking *models.Booking
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		payment, err = repos.Payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentCompleted {
			return apperrors.BadRequest("Only completed payments can be refunded (status %s)", payment.Status)
		}

		booking, err = repos.Bookings.GetForUpdate(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		if booking.Status != models.BookingCancelled {
			if err := ValidateTransition(booking.Status, models.BookingCancelled); err != nil {
				return err
			}
			if err := NewLedger(repos.Ledger).Release(ctx, booking.Target); err != nil {
				return err
			}
			booking.Status = models.BookingCancelled
			if err := repos.Bookings.Update(ctx, booking); err != nil {
				return err
			}
		}

		payment.Status = models.PaymentRefunded
		payment.RefundReason = &reason
		return repos.Payments.Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentOutcomes.WithLabelValues(string(models.PaymentRefunded), "refund").Inc()
	logger.WithContext(ctx).Info("Payment refunded",
		"payment_id", payment.ID,
		"booking_id", booking.ID,
		"amount", payment.Amount.String(),
		"reason", reason)
	publish(ctx, s.publisher, models.EventPaymentRefunded, models.NewPaymentEvent(payment, reason, s.now()))
	publish(ctx, s.publisher, models.EventBookingUpdated, models.NewBookingEvent(booking, s.now()))
	return payment, nil
}

// Delete removes a non-completed payment and puts a non-terminal booking back
// to PENDING so it can be paid again.
func (s *PaymentService) Delete(ctx context.Context, principal models.Principal, id int64) error {
	if !principal.IsAdmin() {
		return apperrors.Forbidden("Only administrators can delete payments")
	}

	var booking *models.Booking
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		payment, err := repos.Payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentCompleted {
			return apperrors.BadRequest("Completed payments cannot be deleted; refund it first")
		}

		booking, err = repos.Bookings.GetForUpdate(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		if err := repos.Payments.Delete(ctx, id); err != nil {
			return err
		}

		if !booking.Status.Terminal() && booking.Status != models.BookingPending {
			booking.Status = models.BookingPending
			return repos.Bookings.Update(ctx, booking)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx).Info("Payment deleted", "payment_id", id, "booking_id", booking.ID)
	publish(ctx, s.publisher, models.EventBookingUpdated, models.NewBookingEvent(booking, s.now()))
	return nil
}
