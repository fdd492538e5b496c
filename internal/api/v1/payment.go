package v1

import (
	"net/http"

	"github.com/dagdev/vpnbill/internal/api/dto"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *logger.Logger
}

func NewPaymentHandler(paymentService service.PaymentService, logger *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// HandleWebhook godoc
// @Summary Payment confirmation webhook
// @Description Records a successful payment from a billing channel and grants access. Replays return outcome "duplicate".
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared webhook secret"
// @Param payment body dto.PaymentConfirmationRequest true "Payment confirmation"
// @Success 200 {object} dto.PaymentIntakeResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} middleware.ErrorResponse
// @Router /payments/webhook [post]
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	var req dto.PaymentConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithContext(c.Request.Context()).Warnw("failed to bind payment confirmation", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.paymentService.HandlePaymentConfirmed(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PreCheckout godoc
// @Summary Approve a payment before charging
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared webhook secret"
// @Param payment body dto.PreCheckoutRequest true "Pending charge"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Router /payments/pre-checkout [post]
func (h *PaymentHandler) PreCheckout(c *gin.Context) {
	var req dto.PreCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.paymentService.PreCheckout(c.Request.Context(), req); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
