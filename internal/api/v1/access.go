package v1

import (
	"net/http"
	"strconv"

	"github.com/dagdev/vpnbill/internal/api/dto"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/gin-gonic/gin"
)

type AccessHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

func NewAccessHandler(subscriptionService service.SubscriptionService, logger *logger.Logger) *AccessHandler {
	return &AccessHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

func payerIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, ierr.NewErrorf("invalid payer id %q", c.Param("id")).
			WithHint("Payer ID must be a non-zero integer").
			Mark(ierr.ErrValidation)
	}
	return id, nil
}

// GetAccess godoc
// @Summary Get a payer's access status on the panel
// @Tags Access
// @Produce json
// @Param id path int true "Payer ID"
// @Success 200 {object} dto.AccessStatusResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /payers/{id}/access [get]
func (h *AccessHandler) GetAccess(c *gin.Context) {
	payerID, err := payerIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.subscriptionService.GetAccessStatus(c.Request.Context(), payerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SetAccessExpiry godoc
// @Summary Set a payer's access expiry
// @Tags Access
// @Accept json
// @Param id path int true "Payer ID"
// @Param expiry body dto.SetAccessExpiryRequest true "New expiry"
// @Success 204
// @Failure 400 {object} middleware.ErrorResponse
// @Router /payers/{id}/access [put]
func (h *AccessHandler) SetAccessExpiry(c *gin.Context) {
	payerID, err := payerIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.SetAccessExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	if err := h.subscriptionService.SetAccessExpiry(c.Request.Context(), payerID, req.ExpireAt); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RevokeAccess godoc
// @Summary Revoke a payer's access
// @Tags Access
// @Param id path int true "Payer ID"
// @Success 204
// @Router /payers/{id}/access [delete]
func (h *AccessHandler) RevokeAccess(c *gin.Context) {
	payerID, err := payerIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.subscriptionService.RevokeAccess(c.Request.Context(), payerID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
