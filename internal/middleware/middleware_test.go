package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
	UseJSONFieldNames()
}

func perform(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, ErrorResponse) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func errorRouter(debug bool, err error) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler(debug))
	r.GET("/", func(c *gin.Context) { _ = c.Error(err) })
	return r
}

func TestErrorHandlerKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", apperrors.NotFound("Booking", 7), http.StatusNotFound, "Booking 7 not found"},
		{"bad request", apperrors.BadRequest("No available slots"), http.StatusBadRequest, "No available slots"},
		{"conflict", apperrors.Conflict("dup"), http.StatusConflict, "dup"},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "operation is forbidden for user"},
		{"gateway", apperrors.Wrap(apperrors.KindGateway, errors.New("timeout"), "Payment gateway unavailable"), http.StatusBadGateway, "Payment gateway unavailable"},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := perform(errorRouter(false, tt.err), httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.message, body.Message)
			assert.Empty(t, body.ErrorID)
			assert.Empty(t, body.Stack)
		})
	}
}

func TestErrorHandlerDebugAddsErrorID(t *testing.T) {
	err := apperrors.Wrap(apperrors.KindInternal, errors.New("disk full"), "Failed to save booking")

	w, body := perform(errorRouter(true, err), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to save booking", body.Message)
	assert.NotEmpty(t, body.ErrorID)
	require.Len(t, body.Stack, 2)
	assert.Equal(t, "disk full", body.Stack[1])
}

func TestErrorHandlerBindingErrors(t *testing.T) {
	type payload struct {
		Reason string `json:"reason" binding:"required,min=3"`
		Count  int    `json:"count" binding:"gte=0"`
	}

	r := gin.New()
	r.Use(ErrorHandler(false))
	r.POST("/", func(c *gin.Context) {
		var p payload
		if err := c.ShouldBindJSON(&p); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w, body := perform(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"no","count":-1}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", body.Message)
	assert.ElementsMatch(t, []apperrors.FieldError{
		{Field: "reason", Message: "must be at least 3 characters"},
		{Field: "count", Message: "must be at least 0"},
	}, body.Errors)

	w, body = perform(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", body.Message)

	w, body = perform(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"fine","count":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "count", body.Errors[0].Field)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type mapCache struct {
	entries map[string]models.Principal
}

func (m *mapCache) GetPrincipal(_ context.Context, email, hash string) (models.Principal, error) {
	p, ok := m.entries[email+hash]
	if !ok {
		return models.Principal{}, errors.New("miss")
	}
	return p, nil
}

func (m *mapCache) SetPrincipal(_ context.Context, email, hash string, p models.Principal) error {
	m.entries[email+hash] = p
	return nil
}

func authRouter(users *mockUsers, cache PrincipalCache, roles ...models.Role) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler(false))
	chain := []gin.HandlerFunc{BasicAuth(users, cache)}
	if len(roles) > 0 {
		chain = append(chain, RequireRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	r.GET("/", chain...)
	return r
}

func basicRequest(user, pass string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth(user, pass)
	return req
}

func TestBasicAuthFallsBackToDatabaseAndCaches(t *testing.T) {
	users := &mockUsers{}
	users.On("GetByEmail", mock.Anything, "alice@tourbook.test").
		Return(&models.User{ID: 2, Role: models.RoleCustomer, PasswordHash: HashPassword("s3cret")}, nil).Once()
	cache := &mapCache{entries: map[string]models.Principal{}}
	r := authRouter(users, cache)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, basicRequest("alice@tourbook.test", "s3cret"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":2,"role":"CUSTOMER"}`, w.Body.String())

	// Second request is served from the cache.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, basicRequest("alice@tourbook.test", "s3cret"))
	assert.Equal(t, http.StatusOK, w.Code)
	users.AssertExpectations(t)
}

func TestBasicAuthRejects(t *testing.T) {
	users := &mockUsers{}
	users.On("GetByEmail", mock.Anything, "alice@tourbook.test").
		Return(&models.User{ID: 2, Role: models.RoleCustomer, PasswordHash: HashPassword("s3cret")}, nil)
	users.On("GetByEmail", mock.Anything, "ghost@tourbook.test").
		Return(nil, apperrors.NotFound("User", "ghost@tourbook.test"))
	users.On("GetByEmail", mock.Anything, "short@tourbook.test").
		Return(&models.User{ID: 3, Role: models.RoleCustomer, PasswordHash: HashPassword("s3cret")[:32]}, nil)
	r := authRouter(users, nil)

	w, body := perform(r, basicRequest("alice@tourbook.test", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", body.Message)

	w, _ = perform(r, basicRequest("ghost@tourbook.test", "x"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = perform(r, basicRequest("short@tourbook.test", "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = perform(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
}

func TestRequireRole(t *testing.T) {
	users := &mockUsers{}
	users.On("GetByEmail", mock.Anything, "alice@tourbook.test").
		Return(&models.User{ID: 2, Role: models.RoleCustomer, PasswordHash: HashPassword("pw")}, nil)
	users.On("GetByEmail", mock.Anything, "admin@tourbook.test").
		Return(&models.User{ID: 1, Role: models.RoleAdmin, PasswordHash: HashPassword("pw")}, nil)
	r := authRouter(users, nil, models.RoleAdmin)

	w, _ := perform(r, basicRequest("alice@tourbook.test", "pw"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = perform(r, basicRequest("admin@tourbook.test", "pw"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRecoveryRendersInternalError(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w, body := perform(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", body.Message)
}
