package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffCatalog_Resolve(t *testing.T) {
	catalog := NewTariffCatalog(nil)

	byPayload, ok := catalog.Resolve("vpn_3m")
	require.True(t, ok)
	assert.Equal(t, "m3", byPayload.Code)
	assert.Equal(t, 90, byPayload.Days)

	byCode, ok := catalog.Resolve("m12")
	require.True(t, ok)
	assert.Equal(t, "vpn_12m", byCode.Payload)

	_, ok = catalog.Resolve("vpn_2y")
	assert.False(t, ok)
}

func TestTariffCatalog_AllSortedByDays(t *testing.T) {
	catalog := NewTariffCatalog([]Tariff{
		{Code: "y", Payload: "p_y", Days: 365, PriceMinor: 100},
		{Code: "w", Payload: "p_w", Days: 7, PriceMinor: 10},
		{Code: "m", Payload: "p_m", Days: 30, PriceMinor: 30},
	})

	all := catalog.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"w", "m", "y"}, []string{all[0].Code, all[1].Code, all[2].Code})
}

func TestInvoiceStatus(t *testing.T) {
	assert.NoError(t, InvoiceStatusPaidPending.Validate())
	assert.Error(t, InvoiceStatus("refunded").Validate())

	assert.True(t, InvoiceStatusCompleted.IsTerminal())
	assert.True(t, InvoiceStatusFailed.IsTerminal())
	assert.False(t, InvoiceStatusPaidPending.IsTerminal())

	assert.False(t, InvoiceStatusPending.IsConfirmed())
	assert.True(t, InvoiceStatusPaid.IsConfirmed())

	assert.True(t, InvoiceStatusPaid.NeedsReconciliation())
	assert.True(t, InvoiceStatusPaidPending.NeedsReconciliation())
	assert.False(t, InvoiceStatusPending.NeedsReconciliation())
	assert.False(t, InvoiceStatusCompleted.NeedsReconciliation())
}

func TestGenerateUUIDWithPrefix(t *testing.T) {
	id := GenerateUUIDWithPrefix(UUID_PREFIX_INVOICE)
	assert.Regexp(t, `^inv_[0-9A-Z]{26}$`, id)
	assert.NotEqual(t, id, GenerateUUIDWithPrefix(UUID_PREFIX_INVOICE))
}
