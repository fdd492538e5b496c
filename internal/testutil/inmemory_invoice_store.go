package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/dagdev/vpnbill/internal/domain/invoice"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InMemoryInvoiceStore implements invoice.Repository with the same status
// predicates as the postgres repository.
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
	clock func() time.Time
}

// NewInMemoryInvoiceStore creates a new in-memory invoice store
func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created_at and updated_at
func (s *InMemoryInvoiceStore) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Put stores an invoice as-is, overwriting any existing row. Used to seed tests.
func (s *InMemoryInvoiceStore) Put(inv *invoice.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[inv.ID] = copyInvoice(inv)
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	if inv.LastError != nil {
		c.LastError = lo.ToPtr(*inv.LastError)
	}
	if inv.SubscriptionLink != nil {
		c.SubscriptionLink = lo.ToPtr(*inv.SubscriptionLink)
	}
	if inv.GrantedAt != nil {
		c.GrantedAt = lo.ToPtr(*inv.GrantedAt)
	}
	return &c
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	inv.Status = types.InvoiceStatusPending
	if err := inv.Validate(); err != nil {
		return false, err
	}

	now := s.clock()
	row := copyInvoice(inv)
	row.Attempts = 0
	row.LastError = nil
	row.SubscriptionLink = nil
	row.GrantedAt = nil
	row.CreatedAt = now
	row.UpdatedAt = now
	return s.Insert(row.ID, row), nil
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, ok := s.InMemoryStore.Get(id)
	if !ok {
		return nil, invoice.NotFound(id)
	}
	return copyInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, inv.Status) {
			return false
		}
		return filter.PayerID == 0 || inv.PayerID == filter.PayerID
	}, func(a, b *invoice.Invoice) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})

	if len(items) > filter.GetLimit() {
		items = items[:filter.GetLimit()]
	}
	return lo.Map(items, func(inv *invoice.Invoice, _ int) *invoice.Invoice { return copyInvoice(inv) }), nil
}

// transition applies fn only when the current status is one of from
func (s *InMemoryInvoiceStore) transition(id string, from []types.InvoiceStatus, fn func(inv *invoice.Invoice)) bool {
	return s.Mutate(id, func(inv *invoice.Invoice) (*invoice.Invoice, bool) {
		if !lo.Contains(from, inv.Status) {
			return inv, false
		}
		next := copyInvoice(inv)
		fn(next)
		next.UpdatedAt = s.clock()
		return next, true
	})
}

func (s *InMemoryInvoiceStore) CompleteOrSkip(ctx context.Context, id string) (bool, error) {
	return s.transition(id, []types.InvoiceStatus{types.InvoiceStatusPending}, func(inv *invoice.Invoice) {
		inv.Status = types.InvoiceStatusPaid
	}), nil
}

func (s *InMemoryInvoiceStore) MarkPaidPending(ctx context.Context, id string, lastError string) (bool, error) {
	return s.transition(id, types.ReconcilableInvoiceStatuses, func(inv *invoice.Invoice) {
		inv.Status = types.InvoiceStatusPaidPending
		inv.Attempts++
		inv.LastError = lo.ToPtr(lastError)
	}), nil
}

func (s *InMemoryInvoiceStore) MarkGranted(ctx context.Context, id string) (bool, error) {
	return s.Mutate(id, func(inv *invoice.Invoice) (*invoice.Invoice, bool) {
		if !inv.Status.NeedsReconciliation() || inv.GrantedAt != nil {
			return inv, false
		}
		next := copyInvoice(inv)
		next.GrantedAt = lo.ToPtr(s.clock())
		return next, true
	}), nil
}

func (s *InMemoryInvoiceStore) MarkCompleted(ctx context.Context, id string, subscriptionLink string) (bool, error) {
	return s.transition(id, types.ReconcilableInvoiceStatuses, func(inv *invoice.Invoice) {
		inv.Status = types.InvoiceStatusCompleted
		inv.SubscriptionLink = lo.ToPtr(subscriptionLink)
	}), nil
}

func (s *InMemoryInvoiceStore) MarkFailed(ctx context.Context, id string, lastError string) (bool, error) {
	return s.transition(id, []types.InvoiceStatus{
		types.InvoiceStatusPending,
		types.InvoiceStatusPaid,
		types.InvoiceStatusPaidPending,
	}, func(inv *invoice.Invoice) {
		inv.Status = types.InvoiceStatusFailed
		inv.LastError = lo.ToPtr(lastError)
	}), nil
}

func (s *InMemoryInvoiceStore) ClaimForRetry(ctx context.Context, id string, status types.InvoiceStatus, updatedAt time.Time) (bool, error) {
	return s.Mutate(id, func(inv *invoice.Invoice) (*invoice.Invoice, bool) {
		if inv.Status != status || !inv.UpdatedAt.Equal(updatedAt) {
			return inv, false
		}
		next := copyInvoice(inv)
		next.UpdatedAt = s.clock()
		// the claim must be observable even when the clock has not moved
		if !next.UpdatedAt.After(inv.UpdatedAt) {
			next.UpdatedAt = inv.UpdatedAt.Add(time.Microsecond)
		}
		return next, true
	}), nil
}

func (s *InMemoryInvoiceStore) ListPaidPending(ctx context.Context) ([]*invoice.Invoice, error) {
	items := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		return inv.Status.NeedsReconciliation()
	}, func(a, b *invoice.Invoice) bool {
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
	return lo.Map(items, func(inv *invoice.Invoice, _ int) *invoice.Invoice { return copyInvoice(inv) }), nil
}

func (s *InMemoryInvoiceStore) ListPendingIDs(ctx context.Context) ([]string, error) {
	items := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		return inv.Status == types.InvoiceStatusPaidPending
	}, func(a, b *invoice.Invoice) bool {
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
	return lo.Map(items, func(inv *invoice.Invoice, _ int) string { return inv.ID }), nil
}

func (s *InMemoryInvoiceStore) WasProcessed(ctx context.Context, id string) (bool, error) {
	inv, ok := s.InMemoryStore.Get(id)
	return ok && lo.Contains(types.ConfirmedInvoiceStatuses, inv.Status), nil
}

func (s *InMemoryInvoiceStore) CountSuccessfulPayments(ctx context.Context, payerID int64) (int, error) {
	items := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		return inv.PayerID == payerID && lo.Contains(types.ConfirmedInvoiceStatuses, inv.Status)
	}, nil)
	return len(items), nil
}

func (s *InMemoryInvoiceStore) ListActivePayers(ctx context.Context) ([]int64, error) {
	items := s.InMemoryStore.List(ctx, func(_ context.Context, inv *invoice.Invoice) bool {
		return inv.Status == types.InvoiceStatusCompleted
	}, nil)
	payers := lo.Uniq(lo.Map(items, func(inv *invoice.Invoice, _ int) int64 { return inv.PayerID }))
	sort.Slice(payers, func(i, j int) bool { return payers[i] < payers[j] })
	return payers, nil
}

func (s *InMemoryInvoiceStore) GetStats(ctx context.Context) (*invoice.Stats, error) {
	stats := &invoice.Stats{PaidAmount: decimal.Zero}
	for _, inv := range s.InMemoryStore.List(ctx, nil, nil) {
		switch {
		case lo.Contains(types.ConfirmedInvoiceStatuses, inv.Status):
			stats.PaidInvoices++
			stats.PaidAmount = stats.PaidAmount.Add(inv.Amount)
		case inv.Status == types.InvoiceStatusFailed:
			stats.FailedCount++
		}
		if inv.Status == types.InvoiceStatusPaidPending {
			stats.PendingCount++
		}
	}
	return stats, nil
}
