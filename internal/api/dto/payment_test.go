package dto

import (
	"testing"

	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentConfirmationRequestValidate(t *testing.T) {
	req := PaymentConfirmationRequest{
		Reference:   "vpn_1m",
		PayerID:     42,
		TotalAmount: 19900,
		Currency:    "RUB",
	}
	assert.NoError(t, req.Validate())

	req.Currency = ""
	assert.True(t, ierr.IsValidation(req.Validate()))
}

func TestChargeInvoiceID(t *testing.T) {
	req := PaymentConfirmationRequest{Reference: "vpn_1m", PayerID: 42, Currency: "RUB"}
	_, err := req.ChargeInvoiceID()
	assert.True(t, ierr.IsValidation(err))

	req.ProviderChargeID = "ch_123"
	id, err := req.ChargeInvoiceID()
	require.NoError(t, err)
	assert.Equal(t, "chg_ch_123", id)
}
