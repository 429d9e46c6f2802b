package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
)

// CreateBooking - POST /api/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.CreateBookingRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.bookings.Create(c.Request.Context(), p, &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListBookings - GET /api/bookings
func (h *Handlers) ListBookings(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	filter, err := listFilter(c)
	if err != nil {
		fail(c, err)
		return
	}

	resp, err := h.bookings.List(c.Request.Context(), p, filter)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, name string) (int, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, apperrors.Validation("Invalid query parameters",
			apperrors.FieldError{Field: name, Message: "must be an integer"})
	}
	return v, true, nil
}

func listFilter(c *gin.Context) (models.BookingListFilter, error) {
	var f models.BookingListFilter
	var err error

	if f.Page, _, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	if f.Limit, _, err = queryInt(c, "limit"); err != nil {
		return f, err
	}

	userID, set, err := queryInt(c, "userId")
	if err != nil {
		return f, err
	}
	if set {
		id := int64(userID)
		f.UserID = &id
	}

	if raw := c.Query("status"); raw != "" {
		status := models.BookingStatus(raw)
		if !status.Valid() {
			return f, apperrors.Validation("Invalid query parameters",
				apperrors.FieldError{Field: "status", Message: "must be one of PENDING CONFIRMED CANCELLED COMPLETED"})
		}
		f.Status = &status
	}

	if raw := c.Query("type"); raw != "" {
		kind, err := models.ParseResourceKind(raw)
		if err != nil {
			return f, err
		}
		f.Type = &kind
	}

	f.Search = c.Query("search")
	return f, nil
}

// GetBooking - GET /api/bookings/:id
func (h *Handlers) GetBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.bookings.Get(c.Request.Context(), p, id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateBooking - PUT /api/bookings/:id
func (h *Handlers) UpdateBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateBookingRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.bookings.Update(c.Request.Context(), p, id, &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteBooking - DELETE /api/bookings/:id
func (h *Handlers) DeleteBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.bookings.Delete(c.Request.Context(), p, id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
