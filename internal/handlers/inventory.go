package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tourbook/internal/models"
)

// CheckAvailability - GET /api/availability/:type/:id
func (h *Handlers) CheckAvailability(c *gin.Context) {
	kind, err := models.ParseResourceKind(c.Param("type"))
	if err != nil {
		fail(c, err)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	avail, err := h.bookings.CheckAvailability(c.Request.Context(), models.BookingTarget{Kind: kind, ID: id})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, avail)
}

// ResizeCapacity returns the handler for PATCH /api/{tours,rooms,flights}/:id/capacity.
func (h *Handlers) ResizeCapacity(kind models.ResourceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req models.ResizeCapacityRequest
		if !bind(c, &req) {
			return
		}

		avail, err := h.bookings.ResizeCapacity(c.Request.Context(), p, models.BookingTarget{Kind: kind, ID: id}, *req.Capacity)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, avail)
	}
}
