package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
)

// SignatureHeader carries the gateway's HMAC-SHA512 of the webhook body.
const SignatureHeader = "x-paystack-signature"

// InitiatePayment - POST /api/payments
func (h *Handlers) InitiatePayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.InitiatePaymentRequest
	if !bind(c, &req) {
		return
	}

	resp, err := h.payments.Initiate(c.Request.Context(), p, &req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPayment - GET /api/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.Get(c.Request.Context(), p, id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// PaymentCallback - GET /api/payments/callback?reference=...
// The gateway redirects the payer here; the gateway also sends trxref.
func (h *Handlers) PaymentCallback(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		fail(c, apperrors.BadRequest("Payment reference is required"))
		return
	}

	result, err := h.payments.Verify(c.Request.Context(), reference)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// PaymentWebhook - POST /api/payments/webhook
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, apperrors.Wrap(apperrors.KindBadRequest, err, "Invalid request body"))
		return
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdatePaymentStatus - PATCH /api/payments/:id
func (h *Handlers) UpdatePaymentStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdatePaymentStatusRequest
	if !bind(c, &req) {
		return
	}

	payment, err := h.payments.UpdateStatus(c.Request.Context(), p, id, req.Status)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// RefundPayment - POST /api/payments/:id/refund
func (h *Handlers) RefundPayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.RefundPaymentRequest
	if !bind(c, &req) {
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), p, id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// DeletePayment - DELETE /api/payments/:id
func (h *Handlers) DeletePayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.payments.Delete(c.Request.Context(), p, id); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}
