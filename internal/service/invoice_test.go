package service

import (
	"testing"

	"github.com/dagdev/vpnbill/internal/types"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	serviceSuite
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) TestInspection() {
	ctx := s.GetContext()
	s.seed("inv_a", 1, "m1", types.InvoiceStatusCompleted, 0)
	s.seed("inv_b", 1, "m3", types.InvoiceStatusPaidPending, 2)
	s.seed("inv_c", 2, "m1", types.InvoiceStatusPending, 0)
	s.seed("inv_d", 3, "m6", types.InvoiceStatusFailed, 5)

	got, err := s.invoices.GetInvoice(ctx, "inv_b")
	s.Require().NoError(err)
	s.Equal(2, got.Attempts)
	s.Equal("provisioning unavailable", got.LastError)

	list, err := s.invoices.ListInvoices(ctx, &types.InvoiceFilter{PayerID: 1})
	s.Require().NoError(err)
	s.Equal(2, list.Total)

	list, err = s.invoices.ListInvoices(ctx, &types.InvoiceFilter{Statuses: []types.InvoiceStatus{types.InvoiceStatusFailed}})
	s.Require().NoError(err)
	s.Require().Len(list.Items, 1)
	s.Equal("inv_d", list.Items[0].InvoiceID)

	pending, err := s.invoices.ListPendingIDs(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"inv_b"}, pending.InvoiceIDs)

	processed, err := s.invoices.WasProcessed(ctx, "inv_a")
	s.Require().NoError(err)
	s.True(processed)
	processed, err = s.invoices.WasProcessed(ctx, "inv_c")
	s.Require().NoError(err)
	s.False(processed)
}

func (s *InvoiceServiceSuite) TestStatsAreCached() {
	ctx := s.GetContext()
	s.seed("inv_a", 1, "m1", types.InvoiceStatusCompleted, 0)
	s.seed("inv_b", 2, "m1", types.InvoiceStatusPaidPending, 1)
	s.seed("inv_c", 3, "m1", types.InvoiceStatusFailed, 5)
	s.seed("inv_d", 4, "m1", types.InvoiceStatusPending, 0)

	stats, err := s.stats.GetStats(ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.PaidInvoices)
	s.Equal("398", stats.PaidAmount.String())
	s.Equal(1, stats.PaidPendingCount)
	s.Equal(1, stats.FailedCount)
	s.Equal("RUB", stats.Currency)

	s.seed("inv_e", 5, "m1", types.InvoiceStatusCompleted, 0)
	cached, err := s.stats.GetStats(ctx)
	s.Require().NoError(err)
	s.Equal(2, cached.PaidInvoices)
}
