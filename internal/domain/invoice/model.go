package invoice

import (
	"time"

	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is one payment event and its provisioning outcome
type Invoice struct {
	ID               string              `db:"invoice_id" json:"invoice_id"`
	PayerID          int64               `db:"payer_id" json:"payer_id"`
	TariffCode       string              `db:"tariff_code" json:"tariff_code"`
	AmountMinor      int64               `db:"amount_minor" json:"amount_minor"`
	Amount           decimal.Decimal     `db:"amount" json:"amount" swaggertype:"string"`
	Currency         string              `db:"currency" json:"currency"`
	Status           types.InvoiceStatus `db:"status" json:"status"`
	Attempts         int                 `db:"attempts" json:"attempts"`
	LastError        *string             `db:"last_error" json:"last_error,omitempty"`
	SubscriptionLink *string             `db:"subscription_link" json:"subscription_link,omitempty"`
	GrantedAt        *time.Time          `db:"granted_at" json:"granted_at,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

func (i *Invoice) TableName() string {
	return "invoices"
}

// New builds a pending invoice. The decimal amount is derived from minor units.
func New(id string, payerID int64, tariffCode string, amountMinor int64, currency string) *Invoice {
	return &Invoice{
		ID:          id,
		PayerID:     payerID,
		TariffCode:  tariffCode,
		AmountMinor: amountMinor,
		Amount:      decimal.New(amountMinor, -2),
		Currency:    currency,
		Status:      types.InvoiceStatusPending,
	}
}

func (i *Invoice) Validate() error {
	if i.ID == "" {
		return ierr.NewError("invoice id is required").
			WithHint("Invoice id must not be empty").
			Mark(ierr.ErrValidation)
	}
	if i.PayerID == 0 {
		return ierr.NewError("payer id is required").
			WithHint("Payer id must be set").
			Mark(ierr.ErrValidation)
	}
	if i.TariffCode == "" {
		return ierr.NewError("tariff code is required").
			WithHint("Tariff code must not be empty").
			Mark(ierr.ErrValidation)
	}
	if i.AmountMinor < 0 || i.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if len(i.Currency) != 3 {
		return ierr.NewError("invalid currency").
			WithHintf("Currency %q must be a three-letter code", i.Currency).
			Mark(ierr.ErrValidation)
	}
	if err := i.Status.Validate(); err != nil {
		return err
	}
	return nil
}

// Link returns the subscription link or "" when none is stored
func (i *Invoice) Link() string {
	if i.SubscriptionLink == nil {
		return ""
	}
	return *i.SubscriptionLink
}

// Granted reports whether the panel grant for this invoice already happened
func (i *Invoice) Granted() bool {
	return i.GrantedAt != nil
}

// Error returns the last recorded error or ""
func (i *Invoice) Error() string {
	if i.LastError == nil {
		return ""
	}
	return *i.LastError
}

// Stats aggregates confirmed payments
type Stats struct {
	PaidInvoices int             `db:"paid_invoices" json:"paid_invoices"`
	PaidAmount   decimal.Decimal `db:"paid_amount" json:"paid_amount" swaggertype:"string"`
	PendingCount int             `db:"pending_count" json:"paid_pending_count"`
	FailedCount  int             `db:"failed_count" json:"failed_count"`
}
