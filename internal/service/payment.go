package service

import (
	"context"
	"fmt"

	"github.com/dagdev/vpnbill/internal/api/dto"
	"github.com/dagdev/vpnbill/internal/domain/invoice"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/metrics"
	"github.com/dagdev/vpnbill/internal/notify"
	"github.com/dagdev/vpnbill/internal/types"
)

// PaymentService issues invoices and takes in payment confirmations from billing channels
type PaymentService interface {
	CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*invoice.Invoice, error)

	// PreCheckout approves or rejects a charge before the channel takes the money
	PreCheckout(ctx context.Context, req dto.PreCheckoutRequest) error

	// HandlePaymentConfirmed records the payment, makes one synchronous provisioning
	// attempt and tells the payer either the link or that delivery is delayed.
	// Replays of the same confirmation are reported as duplicates with no side effects.
	HandlePaymentConfirmed(ctx context.Context, req dto.PaymentConfirmationRequest) (*dto.PaymentIntakeResponse, error)
}

type paymentService struct {
	ServiceParams
	subscriptions SubscriptionService
}

func NewPaymentService(params ServiceParams, subscriptions SubscriptionService) PaymentService {
	return &paymentService{
		ServiceParams: params,
		subscriptions: subscriptions,
	}
}

// resolvedPayment is what a payment reference points at
type resolvedPayment struct {
	invoiceID string
	tariff    types.Tariff
	// issued is the invoice the reference names, nil for tariff payloads
	issued *invoice.Invoice
}

func (s *paymentService) CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tariff, ok := s.Tariffs.ByCode(req.TariffCode)
	if !ok {
		return nil, ierr.NewErrorf("unknown tariff %s", req.TariffCode).
			WithHintf("Tariff %s does not exist", req.TariffCode).
			Mark(ierr.ErrValidation)
	}

	inv := invoice.New(
		types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		req.PayerID,
		tariff.Code,
		tariff.PriceMinor,
		s.Config.Payment.Currency,
	)
	if _, err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	metrics.PaymentEvents.WithLabelValues("invoice_issued").Inc()
	s.Logger.WithContext(ctx).Infow("invoice issued",
		"invoice_id", inv.ID,
		"payer_id", inv.PayerID,
		"tariff_code", inv.TariffCode,
		"amount", inv.Amount,
	)
	return inv, nil
}

func (s *paymentService) PreCheckout(ctx context.Context, req dto.PreCheckoutRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	res, err := s.resolve(ctx, req.Reference, func() (string, error) { return "", nil })
	if err != nil {
		return err
	}
	if res == nil {
		return ierr.NewErrorf("unknown payment reference %s", req.Reference).
			WithHint("Tariff not found").
			Mark(ierr.ErrValidation)
	}

	expectedAmount, expectedCurrency := res.tariff.PriceMinor, s.Config.Payment.Currency
	if res.issued != nil {
		if res.issued.Status != types.InvoiceStatusPending {
			return ierr.NewErrorf("invoice %s is %s", res.issued.ID, res.issued.Status).
				WithHint("This invoice has already been paid").
				Mark(ierr.ErrInvalidOperation)
		}
		if res.issued.PayerID != req.PayerID {
			return ierr.NewErrorf("invoice %s belongs to another payer", res.issued.ID).
				WithHint("This invoice was issued to someone else").
				Mark(ierr.ErrPermissionDenied)
		}
		expectedAmount, expectedCurrency = res.issued.AmountMinor, res.issued.Currency
	}
	if req.TotalAmount != expectedAmount || req.Currency != expectedCurrency {
		return ierr.NewErrorf("amount %d %s does not match %d %s", req.TotalAmount, req.Currency, expectedAmount, expectedCurrency).
			WithHint("Payment amount does not match the tariff price").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (s *paymentService) HandlePaymentConfirmed(ctx context.Context, req dto.PaymentConfirmationRequest) (*dto.PaymentIntakeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = types.SetPayerID(ctx, req.PayerID)
	ctx = types.SetSource(ctx, types.SourceIntake)
	log := s.Logger.WithContext(ctx)

	res, err := s.resolve(ctx, req.Reference, req.ChargeInvoiceID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		metrics.PaymentEvents.WithLabelValues("unknown_tariff").Inc()
		log.Warnw("payment with unknown reference", "reference", req.Reference)
		s.Notifier.Notify(ctx, fmt.Sprintf(
			"Payment received but the tariff was not found.\nPayer: %d\nReference: %s\nAmount: %d %s",
			req.PayerID, req.Reference, req.TotalAmount, req.Currency,
		))
		if err := s.Messenger.SendText(ctx, req.PayerID, notify.MessageUnknownTariff); err != nil {
			log.Errorw("failed to tell payer about unknown tariff", "error", err)
		}
		return &dto.PaymentIntakeResponse{Outcome: types.IntakeOutcomeUnknownTariff}, nil
	}

	ctx = types.SetInvoiceID(ctx, res.invoiceID)
	log = s.Logger.WithContext(ctx)

	if res.issued == nil {
		inv := invoice.New(res.invoiceID, req.PayerID, res.tariff.Code, req.TotalAmount, req.Currency)
		if _, err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return nil, err
		}
	} else if res.issued.PayerID != req.PayerID || res.issued.AmountMinor != req.TotalAmount {
		log.Warnw("confirmation differs from issued invoice",
			"issued_payer_id", res.issued.PayerID,
			"issued_amount_minor", res.issued.AmountMinor,
			"total_amount", req.TotalAmount,
		)
	}

	confirmed, err := s.InvoiceRepo.CompleteOrSkip(ctx, res.invoiceID)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		metrics.PaymentEvents.WithLabelValues("duplicate").Inc()
		log.Infow("payment confirmation already processed")
		return &dto.PaymentIntakeResponse{
			InvoiceID: res.invoiceID,
			Outcome:   types.IntakeOutcomeDuplicate,
		}, nil
	}
	metrics.PaymentEvents.WithLabelValues("confirmed").Inc()

	// The payment is recorded; the follow-ups must not be cut short by the caller going away.
	ctx = context.WithoutCancel(ctx)

	resp := &dto.PaymentIntakeResponse{InvoiceID: res.invoiceID}
	if count, err := s.InvoiceRepo.CountSuccessfulPayments(ctx, req.PayerID); err != nil {
		log.Errorw("failed to count payer payments", "error", err)
	} else {
		resp.FirstPayment = count == 1
	}

	link, err := s.subscriptions.ProvisionInvoice(ctx, res.invoiceID)
	if err != nil {
		log.Errorw("provisioning after payment failed, handing off to reconciliation", "error", err)
		if _, merr := s.InvoiceRepo.MarkPaidPending(ctx, res.invoiceID, err.Error()); merr != nil {
			log.Errorw("failed to park invoice as paid_pending", "error", merr)
		}
		s.Notifier.Notify(ctx, fmt.Sprintf(
			"Payment accepted but access delivery is delayed.\nInvoice: %s\nError: %s",
			res.invoiceID, err,
		))
		if err := s.Messenger.SendDelayed(ctx, req.PayerID); err != nil {
			log.Errorw("failed to tell payer about delayed delivery", "error", err)
		}
		metrics.PaymentEvents.WithLabelValues("delayed").Inc()
		resp.Outcome = types.IntakeOutcomeDelayed
		return resp, nil
	}

	if err := s.Messenger.SendAccessLink(ctx, req.PayerID, link); err != nil {
		log.Errorw("failed to deliver access link", "error", err)
	}
	metrics.PaymentEvents.WithLabelValues("delivered").Inc()
	resp.Outcome = types.IntakeOutcomeDelivered
	resp.SubscriptionLink = link
	return resp, nil
}

// resolve maps a payment reference to an issued invoice or to a tariff payload.
// chargeID supplies the invoice id for tariff payloads. A nil result means the
// reference is unknown.
func (s *paymentService) resolve(ctx context.Context, reference string, chargeID func() (string, error)) (*resolvedPayment, error) {
	issued, err := s.InvoiceRepo.Get(ctx, reference)
	if err == nil {
		tariff, ok := s.Tariffs.ByCode(issued.TariffCode)
		if !ok {
			return nil, nil
		}
		return &resolvedPayment{invoiceID: issued.ID, tariff: tariff, issued: issued}, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	tariff, ok := s.Tariffs.Resolve(reference)
	if !ok {
		return nil, nil
	}
	id, err := chargeID()
	if err != nil {
		return nil, err
	}
	return &resolvedPayment{invoiceID: id, tariff: tariff}, nil
}
