package invoice

import (
	ierr "github.com/dagdev/vpnbill/internal/errors"
)

// NotFound builds the error returned when no invoice has the id
func NotFound(id string) error {
	return ierr.NewErrorf("invoice %s not found", id).
		WithHint("Invoice not found").
		WithReportableDetails(map[string]any{"invoice_id": id}).
		Mark(ierr.ErrNotFound)
}
