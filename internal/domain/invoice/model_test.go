package invoice

import (
	"testing"

	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNewDerivesDecimalAmount(t *testing.T) {
	inv := New("inv_1", 42, "m1", 19900, "RUB")
	assert.Equal(t, "199", inv.Amount.String())
	assert.Equal(t, types.InvoiceStatusPending, inv.Status)
	assert.NoError(t, inv.Validate())
	assert.Equal(t, "", inv.Link())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Invoice)
	}{
		{"missing id", func(i *Invoice) { i.ID = "" }},
		{"missing payer", func(i *Invoice) { i.PayerID = 0 }},
		{"missing tariff", func(i *Invoice) { i.TariffCode = "" }},
		{"negative amount", func(i *Invoice) { i.AmountMinor = -1 }},
		{"bad currency", func(i *Invoice) { i.Currency = "RUBLE" }},
		{"bad status", func(i *Invoice) { i.Status = "refunded" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := New("inv_1", 42, "m1", 19900, "RUB")
			tt.mutate(inv)
			err := inv.Validate()
			assert.Error(t, err)
			assert.True(t, ierr.IsValidation(err))
		})
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("inv_x")
	assert.True(t, ierr.IsNotFound(err))
}
