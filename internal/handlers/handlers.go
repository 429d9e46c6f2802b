package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/middleware"
	"tourbook/internal/models"
)

// BookingService is implemented by service.BookingService.
type BookingService interface {
	Create(ctx context.Context, principal models.Principal, req *models.CreateBookingRequest) (*models.BookingResponse, error)
	Get(ctx context.Context, principal models.Principal, id int64) (*models.BookingResponse, error)
	List(ctx context.Context, principal models.Principal, filter models.BookingListFilter) (*models.ListBookingsResponse, error)
	Update(ctx context.Context, principal models.Principal, id int64, req *models.UpdateBookingRequest) (*models.BookingResponse, error)
	Delete(ctx context.Context, principal models.Principal, id int64) (*models.DeleteBookingResponse, error)
	CheckAvailability(ctx context.Context, target models.BookingTarget) (models.Availability, error)
	ResizeCapacity(ctx context.Context, principal models.Principal, target models.BookingTarget, capacity int) (models.Availability, error)
}

// PaymentService is implemented by service.PaymentService.
type PaymentService interface {
	Initiate(ctx context.Context, principal models.Principal, req *models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error)
	Get(ctx context.Context, principal models.Principal, id int64) (*models.Payment, error)
	Verify(ctx context.Context, reference string) (*models.VerificationResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*models.VerificationResult, error)
	UpdateStatus(ctx context.Context, principal models.Principal, id int64, status models.PaymentStatus) (*models.Payment, error)
	Refund(ctx context.Context, principal models.Principal, id int64, reason string) (*models.Payment, error)
	Delete(ctx context.Context, principal models.Principal, id int64) error
}

type Handlers struct {
	bookings BookingService
	payments PaymentService
	health   *HealthChecker
}

func NewHandlers(bookings BookingService, payments PaymentService, health *HealthChecker) *Handlers {
	return &Handlers{
		bookings: bookings,
		payments: payments,
		health:   health,
	}
}

// fail hands err to middleware.ErrorHandler.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		fail(c, apperrors.ErrUnauthorized)
	}
	return p, ok
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, apperrors.BadRequest("Invalid %s: %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, err)
		return false
	}
	return true
}
