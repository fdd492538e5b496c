package dto

import (
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/dagdev/vpnbill/internal/validator"
)

// PaymentConfirmationRequest is a one-shot "payment succeeded" signal from a billing channel
type PaymentConfirmationRequest struct {
	// reference is the opaque payment payload: an issued invoice id or a tariff payload (vpn_1m)
	Reference string `json:"reference" validate:"required"`

	// payer_id is the chat identity of the payer
	PayerID int64 `json:"payer_id" validate:"required"`

	// total_amount is the charged amount in minor units
	TotalAmount int64 `json:"total_amount" validate:"min=0"`

	// currency is the three-letter ISO currency code
	Currency string `json:"currency" validate:"required,len=3"`

	// provider_charge_id identifies the charge at the payment provider. Required when
	// reference is a tariff payload, since it becomes part of the invoice id.
	ProviderChargeID string `json:"provider_charge_id,omitempty"`

	// channel_charge_id identifies the charge at the billing channel (Telegram)
	ChannelChargeID string `json:"channel_charge_id,omitempty"`
}

func (r *PaymentConfirmationRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ChargeInvoiceID derives a stable invoice id for a confirmation that carries no
// issued invoice, so replays of the same charge land on the same row.
func (r *PaymentConfirmationRequest) ChargeInvoiceID() (string, error) {
	if r.ProviderChargeID == "" {
		return "", ierr.NewError("provider_charge_id is required").
			WithHint("A payment without an issued invoice must carry the provider charge id").
			Mark(ierr.ErrValidation)
	}
	return types.ChargeInvoicePrefix + "_" + r.ProviderChargeID, nil
}

// PaymentIntakeResponse reports what a confirmation resulted in
type PaymentIntakeResponse struct {
	InvoiceID        string              `json:"invoice_id,omitempty"`
	Outcome          types.IntakeOutcome `json:"outcome"`
	FirstPayment     bool                `json:"first_payment"`
	SubscriptionLink string              `json:"subscription_link,omitempty"`
}

// PreCheckoutRequest is the channel's last check before charging the payer
type PreCheckoutRequest struct {
	Reference   string `json:"reference" validate:"required"`
	PayerID     int64  `json:"payer_id" validate:"required"`
	TotalAmount int64  `json:"total_amount" validate:"min=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

func (r *PreCheckoutRequest) Validate() error {
	return validator.ValidateRequest(r)
}
