package dto

import (
	"time"

	"github.com/dagdev/vpnbill/internal/domain/invoice"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/dagdev/vpnbill/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest issues a pending invoice for a payer
type CreateInvoiceRequest struct {
	// payer_id is the chat identity of the payer
	PayerID int64 `json:"payer_id" validate:"required"`

	// tariff_code selects the access period (m1, m3, m6, m12)
	TariffCode string `json:"tariff_code" validate:"required"`
}

func (r *CreateInvoiceRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// InvoiceResponse is the externally visible invoice state
type InvoiceResponse struct {
	InvoiceID        string              `json:"invoice_id"`
	PayerID          int64               `json:"payer_id"`
	TariffCode       string              `json:"tariff_code"`
	AmountMinor      int64               `json:"amount_minor"`
	Amount           decimal.Decimal     `json:"amount" swaggertype:"string"`
	Currency         string              `json:"currency"`
	Status           types.InvoiceStatus `json:"status"`
	Attempts         int                 `json:"attempts"`
	LastError        string              `json:"last_error,omitempty"`
	SubscriptionLink string              `json:"subscription_link,omitempty"`
	Granted          bool                `json:"granted"`
	CreatedAt        string              `json:"created_at"`
	UpdatedAt        string              `json:"updated_at"`
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{
		InvoiceID:        inv.ID,
		PayerID:          inv.PayerID,
		TariffCode:       inv.TariffCode,
		AmountMinor:      inv.AmountMinor,
		Amount:           inv.Amount,
		Currency:         inv.Currency,
		Status:           inv.Status,
		Attempts:         inv.Attempts,
		LastError:        inv.Error(),
		SubscriptionLink: inv.Link(),
		Granted:          inv.Granted(),
		CreatedAt:        inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        inv.UpdatedAt.Format(time.RFC3339),
	}
}

type ListInvoicesResponse struct {
	Items []*InvoiceResponse `json:"items"`
	Total int                `json:"total"`
}

func NewListInvoicesResponse(invoices []*invoice.Invoice) *ListInvoicesResponse {
	items := make([]*InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, NewInvoiceResponse(inv))
	}
	return &ListInvoicesResponse{
		Items: items,
		Total: len(items),
	}
}

// PendingInvoicesResponse lists invoices waiting for a provisioning retry
type PendingInvoicesResponse struct {
	InvoiceIDs []string `json:"invoice_ids"`
}

// ReconcileResponse reports a single reconciliation step
type ReconcileResponse struct {
	InvoiceID string                 `json:"invoice_id"`
	Outcome   types.ReconcileOutcome `json:"outcome"`
	Status    types.InvoiceStatus    `json:"status,omitempty"`
	Attempts  int                    `json:"attempts"`
	Error     string                 `json:"error,omitempty"`
}
