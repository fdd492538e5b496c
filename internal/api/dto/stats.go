package dto

import (
	"github.com/dagdev/vpnbill/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

type StatsResponse struct {
	PaidInvoices     int             `json:"paid_invoices"`
	PaidAmount       decimal.Decimal `json:"paid_amount" swaggertype:"string"`
	Currency         string          `json:"currency"`
	PaidPendingCount int             `json:"paid_pending_count"`
	FailedCount      int             `json:"failed_count"`
}

func NewStatsResponse(stats *invoice.Stats, currency string) *StatsResponse {
	return &StatsResponse{
		PaidInvoices:     stats.PaidInvoices,
		PaidAmount:       stats.PaidAmount,
		Currency:         currency,
		PaidPendingCount: stats.PendingCount,
		FailedCount:      stats.FailedCount,
	}
}
