package types

import (
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/samber/lo"
)

// InvoiceStatus represents the reconciliation state of an invoice
type InvoiceStatus string

const (
	// InvoiceStatusPending is an issued invoice whose payment has not been observed yet
	InvoiceStatusPending InvoiceStatus = "pending"
	// InvoiceStatusPaid is a confirmed payment whose provisioning has not been attempted
	// or is in flight
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusPaidPending is a confirmed payment with at least one failed provisioning attempt
	InvoiceStatusPaidPending InvoiceStatus = "paid_pending"
	// InvoiceStatusCompleted means access was granted and the subscription link stored
	InvoiceStatusCompleted InvoiceStatus = "completed"
	// InvoiceStatusFailed is terminal; no further automatic retries happen
	InvoiceStatusFailed InvoiceStatus = "failed"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusPending,
		InvoiceStatusPaid,
		InvoiceStatusPaidPending,
		InvoiceStatusCompleted,
		InvoiceStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewErrorf("invalid invoice status: %s", s).
			WithHintf("Status must be one of %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether no further transition is possible
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCompleted || s == InvoiceStatusFailed
}

// IsConfirmed reports whether the payment behind the invoice has been observed
func (s InvoiceStatus) IsConfirmed() bool {
	return s != InvoiceStatusPending
}

// NeedsReconciliation reports whether the scheduler should drive this status
func (s InvoiceStatus) NeedsReconciliation() bool {
	return lo.Contains(ReconcilableInvoiceStatuses, s)
}

// ReconcilableInvoiceStatuses are the statuses listed for the reconciliation scheduler
var ReconcilableInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPaid,
	InvoiceStatusPaidPending,
}

// ConfirmedInvoiceStatuses are counted as revenue in statistics
var ConfirmedInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPaid,
	InvoiceStatusPaidPending,
	InvoiceStatusCompleted,
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	Statuses []InvoiceStatus `form:"status" json:"status,omitempty"`
	PayerID  int64           `form:"payer_id" json:"payer_id,omitempty"`
	Limit    int             `form:"limit" json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// Validate validates the filter
func (f *InvoiceFilter) Validate() error {
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if f.Limit < 0 || f.Limit > 500 {
		return ierr.NewErrorf("invalid limit: %d", f.Limit).
			WithHint("Limit must be between 1 and 500").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetLimit returns the effective page size
func (f *InvoiceFilter) GetLimit() int {
	return lo.Ternary(f.Limit == 0, 100, f.Limit)
}
