package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/middleware"
	"doubtsolver-backend/internal/models"
)

// PaymentHandler handles proof submission and administrator review.
type PaymentHandler struct {
	paymentService core.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(ps core.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: ps, logger: logger}
}

// Instructions handles GET /payments/instructions
func (h *PaymentHandler) Instructions(c *gin.Context) {
	c.JSON(http.StatusOK, h.paymentService.Instructions())
}

// Status handles GET /payments/status
func (h *PaymentHandler) Status(c *gin.Context) {
	view, err := h.paymentService.GetPaymentStatus(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListMine handles GET /payments
func (h *PaymentHandler) ListMine(c *gin.Context) {
	payments, err := h.paymentService.ListMyPayments(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

// SubmitProof handles POST /payments with a multipart "proof" file.
func (h *PaymentHandler) SubmitProof(c *gin.Context) {
	maxBytes := h.paymentService.Instructions().MaxUploadBytes
	limitBody(c, maxBytes)

	fh, err := c.FormFile("proof")
	if err != nil {
		respondFormError(c, "proof", err)
		return
	}
	file, err := readUpload(fh, maxBytes)
	if err != nil {
		respondFormError(c, "proof", err)
		return
	}

	payment, err := h.paymentService.SubmitProof(c.Request.Context(), middleware.CurrentUser(c), file)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// List handles GET /admin/payments?status=&search=&limit=
func (h *PaymentHandler) List(c *gin.Context) {
	var filter models.PaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindError(c, err)
		return
	}
	payments, err := h.paymentService.ListPayments(c.Request.Context(), middleware.CurrentUser(c), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

// Review handles POST /admin/payments/:paymentId/review
func (h *PaymentHandler) Review(c *gin.Context) {
	var req models.ReviewPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	payment, err := h.paymentService.ReviewPayment(c.Request.Context(), middleware.CurrentUser(c), c.Param("paymentId"), req.Status, req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
