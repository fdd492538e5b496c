package types

import (
	"sort"

	"github.com/samber/lo"
)

// Tariff is a purchasable access period
type Tariff struct {
	Code        string  `mapstructure:"code" json:"code" validate:"required"`
	Payload     string  `mapstructure:"payload" json:"payload" validate:"required"`
	Title       string  `mapstructure:"title" json:"title"`
	Days        int     `mapstructure:"days" json:"days" validate:"required,min=1"`
	PriceMinor  int64   `mapstructure:"price_minor" json:"price_minor" validate:"required,min=1"`
	TrafficGB   float64 `mapstructure:"traffic_gb" json:"traffic_gb,omitempty"`
	ResetPeriod string  `mapstructure:"reset_period" json:"reset_period,omitempty"`
}

// DefaultTariffs mirrors the catalog the bot was launched with
var DefaultTariffs = []Tariff{
	{Code: "m1", Payload: "vpn_1m", Title: "1 month", Days: 30, PriceMinor: 19900},
	{Code: "m3", Payload: "vpn_3m", Title: "3 months", Days: 90, PriceMinor: 54900},
	{Code: "m6", Payload: "vpn_6m", Title: "6 months", Days: 180, PriceMinor: 99900},
	{Code: "m12", Payload: "vpn_12m", Title: "12 months", Days: 365, PriceMinor: 189900},
}

// TariffCatalog resolves tariffs by code or by payment payload
type TariffCatalog struct {
	byCode    map[string]Tariff
	byPayload map[string]Tariff
}

// NewTariffCatalog builds a catalog, falling back to DefaultTariffs when empty
func NewTariffCatalog(tariffs []Tariff) *TariffCatalog {
	if len(tariffs) == 0 {
		tariffs = DefaultTariffs
	}
	return &TariffCatalog{
		byCode:    lo.KeyBy(tariffs, func(t Tariff) string { return t.Code }),
		byPayload: lo.KeyBy(tariffs, func(t Tariff) string { return t.Payload }),
	}
}

// ByCode returns the tariff with the given code
func (c *TariffCatalog) ByCode(code string) (Tariff, bool) {
	t, ok := c.byCode[code]
	return t, ok
}

// ByPayload returns the tariff whose payment payload matches
func (c *TariffCatalog) ByPayload(payload string) (Tariff, bool) {
	t, ok := c.byPayload[payload]
	return t, ok
}

// Resolve accepts either a tariff code or a payment payload
func (c *TariffCatalog) Resolve(ref string) (Tariff, bool) {
	if t, ok := c.byPayload[ref]; ok {
		return t, true
	}
	return c.ByCode(ref)
}

// All returns the catalog sorted by duration
func (c *TariffCatalog) All() []Tariff {
	all := lo.Values(c.byCode)
	sort.Slice(all, func(i, j int) bool { return all[i].Days < all[j].Days })
	return all
}
