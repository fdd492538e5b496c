package errors

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestBuilderMarksSentinel(t *testing.T) {
	err := NewError("invoice not found").
		WithHint("Invoice does not exist").
		WithReportableDetails(map[string]any{"invoice_id": "inv_1"}).
		Mark(ErrNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(err))
	assert.Contains(t, errors.GetAllHints(err), "Invoice does not exist")
}

func TestWrappedErrorKeepsMark(t *testing.T) {
	base := WithError(errors.New("connection reset")).Mark(ErrProvisioningUnavailable)
	wrapped := errors.Wrap(base, "renew access")

	assert.True(t, Is(wrapped, ErrProvisioningUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromErr(wrapped))
}

func TestHTTPStatusDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromErr(errors.New("boom")))
}

func TestHTTPStatusPrefersCallerFacingMark(t *testing.T) {
	backend := NewError("panel returned 404").Mark(ErrProvisioningRejected)
	err := WithError(backend).
		WithHint("No access found").
		Mark(ErrNotFound)

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(err))
	}
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromErr(backend))
}
