package v1

import (
	"net/http"

	"github.com/dagdev/vpnbill/internal/api/dto"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService        service.InvoiceService
	paymentService        service.PaymentService
	reconciliationService service.ReconciliationService
	logger                *logger.Logger
}

func NewInvoiceHandler(
	invoiceService service.InvoiceService,
	paymentService service.PaymentService,
	reconciliationService service.ReconciliationService,
	logger *logger.Logger,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:        invoiceService,
		paymentService:        paymentService,
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// CreateInvoice godoc
// @Summary Issue an invoice
// @Description Issue a pending invoice for a payer and tariff
// @Tags Invoices
// @Accept json
// @Produce json
// @Param invoice body dto.CreateInvoiceRequest true "Invoice details"
// @Success 201 {object} dto.InvoiceResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	inv, err := h.paymentService.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewInvoiceResponse(inv))
}

// GetInvoice godoc
// @Summary Get an invoice by ID
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("invoice id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListInvoices godoc
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Param filter query types.InvoiceFilter false "Filter"
// @Success 200 {object} dto.ListInvoicesResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	var filter types.InvoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.invoiceService.ListInvoices(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListPendingInvoices godoc
// @Summary List invoices waiting for access delivery
// @Tags Invoices
// @Produce json
// @Success 200 {object} dto.PendingInvoicesResponse
// @Router /invoices/pending [get]
func (h *InvoiceHandler) ListPendingInvoices(c *gin.Context) {
	resp, err := h.invoiceService.ListPendingIDs(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RetryInvoice godoc
// @Summary Retry access delivery for one invoice
// @Description Runs one reconciliation step now, skipping the backoff wait but not the attempt limit
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.ReconcileResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /invoices/{id}/retry [post]
func (h *InvoiceHandler) RetryInvoice(c *gin.Context) {
	ctx := types.SetSource(c.Request.Context(), types.SourceManual)

	out, err := h.reconciliationService.RetryInvoice(ctx, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	resp := &dto.ReconcileResponse{
		InvoiceID: out.InvoiceID,
		Outcome:   out.Outcome,
		Status:    out.Status,
		Attempts:  out.Attempts,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
