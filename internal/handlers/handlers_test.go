package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/middleware"
	"tourbook/internal/models"
)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) Create(ctx context.Context, p models.Principal, req *models.CreateBookingRequest) (*models.BookingResponse, error) {
	args := m.Called(ctx, p, req)
	resp, _ := args.Get(0).(*models.BookingResponse)
	return resp, args.Error(1)
}

func (m *mockBookings) Get(ctx context.Context, p models.Principal, id int64) (*models.BookingResponse, error) {
	args := m.Called(ctx, p, id)
	resp, _ := args.Get(0).(*models.BookingResponse)
	return resp, args.Error(1)
}

func (m *mockBookings) List(ctx context.Context, p models.Principal, f models.BookingListFilter) (*models.ListBookingsResponse, error) {
	args := m.Called(ctx, p, f)
	resp, _ := args.Get(0).(*models.ListBookingsResponse)
	return resp, args.Error(1)
}

func (m *mockBookings) Update(ctx context.Context, p models.Principal, id int64, req *models.UpdateBookingRequest) (*models.BookingResponse, error) {
	args := m.Called(ctx, p, id, req)
	resp, _ := args.Get(0).(*models.BookingResponse)
	return resp, args.Error(1)
}

func (m *mockBookings) Delete(ctx context.Context, p models.Principal, id int64) (*models.DeleteBookingResponse, error) {
	args := m.Called(ctx, p, id)
	resp, _ := args.Get(0).(*models.DeleteBookingResponse)
	return resp, args.Error(1)
}

func (m *mockBookings) CheckAvailability(ctx context.Context, target models.BookingTarget) (models.Availability, error) {
	args := m.Called(ctx, target)
	return args.Get(0).(models.Availability), args.Error(1)
}

func (m *mockBookings) ResizeCapacity(ctx context.Context, p models.Principal, target models.BookingTarget, capacity int) (models.Availability, error) {
	args := m.Called(ctx, p, target, capacity)
	return args.Get(0).(models.Availability), args.Error(1)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Initiate(ctx context.Context, p models.Principal, req *models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error) {
	args := m.Called(ctx, p, req)
	resp, _ := args.Get(0).(*models.InitiatePaymentResponse)
	return resp, args.Error(1)
}

func (m *mockPayments) Get(ctx context.Context, p models.Principal, id int64) (*models.Payment, error) {
	args := m.Called(ctx, p, id)
	resp, _ := args.Get(0).(*models.Payment)
	return resp, args.Error(1)
}

func (m *mockPayments) Verify(ctx context.Context, reference string) (*models.VerificationResult, error) {
	args := m.Called(ctx, reference)
	resp, _ := args.Get(0).(*models.VerificationResult)
	return resp, args.Error(1)
}

func (m *mockPayments) HandleWebhook(ctx context.Context, body []byte, signature string) (*models.VerificationResult, error) {
	args := m.Called(ctx, body, signature)
	resp, _ := args.Get(0).(*models.VerificationResult)
	return resp, args.Error(1)
}

func (m *mockPayments) UpdateStatus(ctx context.Context, p models.Principal, id int64, status models.PaymentStatus) (*models.Payment, error) {
	args := m.Called(ctx, p, id, status)
	resp, _ := args.Get(0).(*models.Payment)
	return resp, args.Error(1)
}

func (m *mockPayments) Refund(ctx context.Context, p models.Principal, id int64, reason string) (*models.Payment, error) {
	args := m.Called(ctx, p, id, reason)
	resp, _ := args.Get(0).(*models.Payment)
	return resp, args.Error(1)
}

func (m *mockPayments) Delete(ctx context.Context, p models.Principal, id int64) error {
	return m.Called(ctx, p, id).Error(0)
}

var (
	customer = models.Principal{ID: 2, Role: models.RoleCustomer}
	admin    = models.Principal{ID: 1, Role: models.RoleAdmin}
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.UseJSONFieldNames()
}

func setupRouter(who *models.Principal) (*gin.Engine, *mockBookings, *mockPayments) {
	bookings := &mockBookings{}
	payments := &mockPayments{}
	h := NewHandlers(bookings, payments, nil)

	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/payments/callback", h.PaymentCallback)
	api.POST("/payments/webhook", h.PaymentWebhook)

	authed := api.Group("")
	if who != nil {
		authed.Use(middleware.SetPrincipal(*who))
	}
	authed.POST("/bookings", h.CreateBooking)
	authed.GET("/bookings", h.ListBookings)
	authed.GET("/bookings/:id", h.GetBooking)
	authed.PUT("/bookings/:id", h.UpdateBooking)
	authed.DELETE("/bookings/:id", h.DeleteBooking)
	authed.GET("/availability/:type/:id", h.CheckAvailability)
	authed.PATCH("/flights/:id/capacity", h.ResizeCapacity(models.KindFlight))
	authed.POST("/payments", h.InitiatePayment)
	authed.GET("/payments/:id", h.GetPayment)
	authed.PATCH("/payments/:id", h.UpdatePaymentStatus)
	authed.POST("/payments/:id/refund", h.RefundPayment)
	authed.DELETE("/payments/:id", h.DeletePayment)

	return r, bookings, payments
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateBooking(t *testing.T) {
	r, bookings, _ := setupRouter(&customer)

	tourID := int64(10)
	bookings.On("Create", mock.Anything, customer, mock.MatchedBy(func(req *models.CreateBookingRequest) bool {
		return req.TourID != nil && *req.TourID == tourID && req.RoomID == nil
	})).Return(&models.BookingResponse{ID: 1, Type: models.KindTour, TourID: &tourID, Status: models.BookingPending}, nil)

	w := do(r, http.MethodPost, "/api/bookings", `{"tourId":10}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "TOUR", body["type"])
	assert.EqualValues(t, 10, body["tourId"])
	assert.Nil(t, body["roomId"])
	assert.Nil(t, body["flight"])
	bookings.AssertExpectations(t)
}

func TestCreateBookingServiceError(t *testing.T) {
	r, bookings, _ := setupRouter(&customer)
	bookings.On("Create", mock.Anything, customer, mock.Anything).
		Return(nil, apperrors.BadRequest("No available slots"))

	w := do(r, http.MethodPost, "/api/bookings", `{"tourId":10}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "No available slots", body["message"])
}

func TestCreateBookingRequiresPrincipal(t *testing.T) {
	r, bookings, _ := setupRouter(nil)

	w := do(r, http.MethodPost, "/api/bookings", `{"tourId":10}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	bookings.AssertNotCalled(t, "Create")
}

func TestListBookingsParsesFilter(t *testing.T) {
	r, bookings, _ := setupRouter(&admin)

	status := models.BookingConfirmed
	kind := models.KindRoom
	userID := int64(2)
	want := models.BookingListFilter{Page: 2, Limit: 5, UserID: &userID, Status: &status, Type: &kind, Search: "harbour"}
	bookings.On("List", mock.Anything, admin, want).
		Return(&models.ListBookingsResponse{Bookings: []models.BookingResponse{}, Pagination: models.Pagination{Page: 2, Limit: 5}}, nil)

	w := do(r, http.MethodGet, "/api/bookings?page=2&limit=5&userId=2&status=CONFIRMED&type=rooms&search=harbour", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	bookings.AssertExpectations(t)
}

func TestListBookingsRejectsBadQuery(t *testing.T) {
	r, bookings, _ := setupRouter(&admin)

	for _, q := range []string{"page=x", "status=LOST", "type=boat"} {
		w := do(r, http.MethodGet, "/api/bookings?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	bookings.AssertNotCalled(t, "List")
}

func TestCreateBookingRejectsOverflowingPrice(t *testing.T) {
	r, bookings, _ := setupRouter(&admin)

	w := do(r, http.MethodPost, "/api/bookings", `{"userId":2,"tourId":10,"totalPrice":184467440737095517}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetBookingInvalidID(t *testing.T) {
	r, _, _ := setupRouter(&customer)

	w := do(r, http.MethodGet, "/api/bookings/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBookingNotFound(t *testing.T) {
	r, bookings, _ := setupRouter(&customer)
	bookings.On("Get", mock.Anything, customer, int64(99)).Return(nil, apperrors.NotFound("Booking", 99))

	w := do(r, http.MethodGet, "/api/bookings/99", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Booking 99 not found", decode(t, w)["message"])
}

func TestUpdateBookingPassesStatus(t *testing.T) {
	r, bookings, _ := setupRouter(&admin)
	bookings.On("Update", mock.Anything, admin, int64(4), mock.MatchedBy(func(req *models.UpdateBookingRequest) bool {
		return req.Status != nil && *req.Status == models.BookingCancelled && !req.HasTargetChange()
	})).Return(&models.BookingResponse{ID: 4, Status: models.BookingCancelled}, nil)

	w := do(r, http.MethodPut, "/api/bookings/4", `{"status":"CANCELLED"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	bookings.AssertExpectations(t)
}

func TestDeleteBooking(t *testing.T) {
	r, bookings, _ := setupRouter(&admin)
	bookings.On("Delete", mock.Anything, admin, int64(4)).
		Return(&models.DeleteBookingResponse{ID: 4, Restored: []models.ResourceKind{models.KindFlight}}, nil)

	w := do(r, http.MethodDelete, "/api/bookings/4", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":4,"restored":["FLIGHT"]}`, w.Body.String())
}

func TestCheckAvailability(t *testing.T) {
	r, bookings, _ := setupRouter(&customer)
	bookings.On("CheckAvailability", mock.Anything, models.FlightTarget(30)).
		Return(models.Availability{Type: models.KindFlight, ID: 30, Available: 1, Capacity: 2, Status: "SCHEDULED", Bookable: true}, nil)

	w := do(r, http.MethodGet, "/api/availability/flight/30", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	bookings.AssertExpectations(t)

	w = do(r, http.MethodGet, "/api/availability/boat/30", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResizeCapacityAcceptsZero(t *testing.T) {
	r, bookings, _ := setupRouter(&admin)
	bookings.On("ResizeCapacity", mock.Anything, admin, models.FlightTarget(30), 0).
		Return(models.Availability{Type: models.KindFlight, ID: 30}, nil)

	w := do(r, http.MethodPatch, "/api/flights/30/capacity", `{"capacity":0}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPatch, "/api/flights/30/capacity", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, "/api/flights/30/capacity", `{"capacity":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bookings.AssertNumberOfCalls(t, "ResizeCapacity", 1)
}

func TestInitiatePaymentValidation(t *testing.T) {
	r, _, payments := setupRouter(&customer)

	w := do(r, http.MethodPost, "/api/payments", `{"paymentMethod":"CARD"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "bookingId", errs[0].(map[string]any)["field"])
	payments.AssertNotCalled(t, "Initiate")
}

func TestInitiatePayment(t *testing.T) {
	r, _, payments := setupRouter(&customer)
	payments.On("Initiate", mock.Anything, customer, &models.InitiatePaymentRequest{BookingID: 3, PaymentMethod: models.MethodCard}).
		Return(&models.InitiatePaymentResponse{AuthorizationURL: "https://checkout.test/x", PaymentID: 8, TransactionReference: "TB-x"}, nil)

	w := do(r, http.MethodPost, "/api/payments", `{"bookingId":3,"paymentMethod":"CARD"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authorization_url":"https://checkout.test/x","paymentId":8,"transactionReference":"TB-x"}`, w.Body.String())
}

func TestPaymentCallback(t *testing.T) {
	r, _, payments := setupRouter(nil)
	payments.On("Verify", mock.Anything, "TB-1").
		Return(&models.VerificationResult{Success: true, Reference: "TB-1", Status: models.PaymentCompleted}, nil)

	w := do(r, http.MethodGet, "/api/payments/callback?trxref=TB-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = do(r, http.MethodGet, "/api/payments/callback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentCallbackGatewayDown(t *testing.T) {
	r, _, payments := setupRouter(nil)
	payments.On("Verify", mock.Anything, "TB-2").
		Return(nil, apperrors.Wrap(apperrors.KindGateway, errors.New("timeout"), "Payment gateway unavailable"))

	w := do(r, http.MethodGet, "/api/payments/callback?reference=TB-2", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPaymentWebhookPassesRawBody(t *testing.T) {
	r, _, payments := setupRouter(nil)
	raw := `{"event":"charge.success","data":{"reference":"TB-3"}}`
	payments.On("HandleWebhook", mock.Anything, []byte(raw), "sig").
		Return(&models.VerificationResult{Success: true, Reference: "TB-3"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(raw))
	req.Header.Set(SignatureHeader, "sig")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	payments.AssertExpectations(t)
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	r, _, payments := setupRouter(nil)
	payments.On("HandleWebhook", mock.Anything, mock.Anything, "").
		Return(nil, apperrors.Wrap(apperrors.KindUnauthorized, nil, "Invalid webhook signature"))

	w := do(r, http.MethodPost, "/api/payments/webhook", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefundRequiresReason(t *testing.T) {
	r, _, payments := setupRouter(&admin)

	w := do(r, http.MethodPost, "/api/payments/5/refund", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	payments.AssertNotCalled(t, "Refund")

	payments.On("Refund", mock.Anything, admin, int64(5), "customer request").
		Return(&models.Payment{ID: 5, Status: models.PaymentRefunded}, nil)
	w = do(r, http.MethodPost, "/api/payments/5/refund", `{"reason":"customer request"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateAndDeletePayment(t *testing.T) {
	r, _, payments := setupRouter(&admin)
	payments.On("UpdateStatus", mock.Anything, admin, int64(5), models.PaymentFailed).
		Return(&models.Payment{ID: 5, Status: models.PaymentFailed}, nil)
	payments.On("Delete", mock.Anything, admin, int64(5)).Return(nil)

	w := do(r, http.MethodPatch, "/api/payments/5", `{"status":"FAILED"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/payments/5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":5,"deleted":true}`, w.Body.String())
}

func TestHealthWithProbes(t *testing.T) {
	h := NewHandlers(&mockBookings{}, &mockPayments{}, NewHealthChecker(nil, map[string]Probe{
		"redis":         func(context.Context) error { return nil },
		"elasticsearch": func(context.Context) error { return errors.New("down") },
	}))
	r := gin.New()
	r.GET("/health", h.Health)

	w := do(r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "healthy", deps["redis"].(map[string]any)["status"])
	assert.Equal(t, "unhealthy", deps["elasticsearch"].(map[string]any)["status"])
}
