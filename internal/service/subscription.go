package service

import (
	"context"
	"strconv"
	"time"

	"github.com/dagdev/vpnbill/internal/api/dto"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/provisioning"
	"github.com/dagdev/vpnbill/internal/sentry"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/samber/lo"
)

// Provisioner is the panel contract used to grant and inspect access.
// *provisioning.Client implements it.
type Provisioner interface {
	CreateUser(ctx context.Context, params provisioning.AccessParams) (*provisioning.User, error)
	RenewUser(ctx context.Context, username string, days int) error
	SetExpiry(ctx context.Context, username string, expireAt time.Time) error
	SetTrafficPolicy(ctx context.Context, username string, limitGB *float64, resetPeriod string) error
	GetStatus(ctx context.Context, username string) (*provisioning.Status, error)
	DeleteUser(ctx context.Context, username string) error
	GetSubscriptionLink(ctx context.Context, username string) (string, error)
}

// SubscriptionService grants access for paid invoices
type SubscriptionService interface {
	// ProvisionInvoice creates or extends the payer's access for a paid invoice,
	// marks it completed and returns the subscription link. A completed invoice
	// returns its stored link without touching the panel.
	ProvisionInvoice(ctx context.Context, invoiceID string) (string, error)
	GetAccessStatus(ctx context.Context, payerID int64) (*dto.AccessStatusResponse, error)
	SetAccessExpiry(ctx context.Context, payerID int64, expireAt time.Time) error
	RevokeAccess(ctx context.Context, payerID int64) error
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
	}
}

// UsernameFor maps a payer to its panel username
func UsernameFor(payerID int64) string {
	return "tg_" + strconv.FormatInt(payerID, 10)
}

func (s *subscriptionService) ProvisionInvoice(ctx context.Context, invoiceID string) (link string, err error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return "", err
	}

	switch inv.Status {
	case types.InvoiceStatusCompleted:
		return inv.Link(), nil
	case types.InvoiceStatusPending, types.InvoiceStatusFailed:
		return "", ierr.NewErrorf("invoice %s is %s", inv.ID, inv.Status).
			WithHint("Only paid invoices can be provisioned").
			WithReportableDetails(map[string]any{"invoice_id": inv.ID, "status": inv.Status}).
			Mark(ierr.ErrInvalidOperation)
	}

	tariff, ok := s.Tariffs.ByCode(inv.TariffCode)
	if !ok {
		return "", ierr.NewErrorf("unknown tariff %s", inv.TariffCode).
			WithHintf("Tariff %s is not in the catalog", inv.TariffCode).
			WithReportableDetails(map[string]any{"invoice_id": inv.ID, "tariff_code": inv.TariffCode}).
			Mark(ierr.ErrNotFound)
	}

	span, ctx := s.Sentry.StartSpan(ctx, "provisioning", "provision_invoice", map[string]interface{}{
		"invoice_id":  inv.ID,
		"tariff_code": tariff.Code,
	})
	defer func() { sentry.FinishSpan(span, err) }()

	username := UsernameFor(inv.PayerID)
	log := s.Logger.WithContext(ctx)

	var user *provisioning.User
	if inv.Granted() {
		// an earlier attempt already created or renewed the user for this invoice
		log.Infow("access already granted for invoice, finishing delivery",
			"username", username,
			"granted_at", inv.GrantedAt,
		)
	} else {
		user, err = s.grantAccess(ctx, username, tariff)
		if err != nil {
			return "", err
		}
		marked, err := s.InvoiceRepo.MarkGranted(ctx, inv.ID)
		if err != nil {
			return "", err
		}
		if !marked {
			log.Warnw("grant marker not recorded, invoice changed state", "username", username)
		}
	}

	// a created user carries its traffic policy already
	if user == nil && tariff.TrafficGB > 0 {
		if err := s.Provisioner.SetTrafficPolicy(ctx, username, lo.ToPtr(tariff.TrafficGB), tariff.ResetPeriod); err != nil {
			return "", err
		}
	}

	link = ""
	if user != nil {
		link = user.SubscriptionURL
	}
	if link == "" {
		if link, err = s.Provisioner.GetSubscriptionLink(ctx, username); err != nil {
			return "", err
		}
	}

	changed, err := s.InvoiceRepo.MarkCompleted(ctx, inv.ID, link)
	if err != nil {
		return "", err
	}
	if !changed {
		current, err := s.InvoiceRepo.Get(ctx, inv.ID)
		if err != nil {
			return "", err
		}
		if current.Status == types.InvoiceStatusCompleted {
			return current.Link(), nil
		}
		return "", ierr.NewErrorf("invoice %s moved to %s while provisioning", inv.ID, current.Status).
			WithHint("Invoice changed state while access was being granted").
			Mark(ierr.ErrStoreConflict)
	}

	log.Infow("invoice provisioned",
		"invoice_id", inv.ID,
		"username", username,
		"days", tariff.Days,
	)
	return link, nil
}

// grantAccess creates the panel user, or extends it by the tariff days when it
// already exists. The created user is returned; nil means it was renewed.
func (s *subscriptionService) grantAccess(ctx context.Context, username string, tariff types.Tariff) (*provisioning.User, error) {
	user, err := s.Provisioner.CreateUser(ctx, provisioning.AccessParams{
		Username:    username,
		ExpireAt:    s.now().AddDate(0, 0, tariff.Days),
		TrafficGB:   tariff.TrafficGB,
		ResetPeriod: tariff.ResetPeriod,
	})
	if err == nil {
		return user, nil
	}
	if !isUserExists(err) {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("panel user exists, renewing",
		"username", username,
		"days", tariff.Days,
	)
	if err := s.Provisioner.RenewUser(ctx, username, tariff.Days); err != nil {
		return nil, err
	}
	return nil, nil
}

func isUserExists(err error) bool {
	var perr *provisioning.Error
	return ierr.As(err, &perr) && perr.Kind == provisioning.KindRejected && perr.StatusCode == 409
}

func (s *subscriptionService) GetAccessStatus(ctx context.Context, payerID int64) (*dto.AccessStatusResponse, error) {
	username := UsernameFor(payerID)
	st, err := s.Provisioner.GetStatus(ctx, username)
	if err != nil {
		if provisioning.IsRejected(err) || provisioning.IsRouteMissing(err) {
			s.Logger.WithContext(ctx).Debugw("panel has no user for payer", "username", username, "error", err)
			return nil, ierr.NewErrorf("no panel user %s", username).
				WithHintf("No access found for payer %d", payerID).
				WithReportableDetails(map[string]any{"payer_id": payerID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, err
	}
	return dto.NewAccessStatusResponse(payerID, username, st), nil
}

func (s *subscriptionService) SetAccessExpiry(ctx context.Context, payerID int64, expireAt time.Time) error {
	if !expireAt.After(s.now()) {
		return ierr.NewError("expiry must be in the future").
			WithHint("Expiry must be in the future").
			Mark(ierr.ErrValidation)
	}
	username := UsernameFor(payerID)
	if err := s.Provisioner.SetExpiry(ctx, username, expireAt); err != nil {
		return err
	}
	s.Logger.WithContext(ctx).Infow("panel user expiry updated", "username", username, "expire_at", expireAt)
	return nil
}

func (s *subscriptionService) RevokeAccess(ctx context.Context, payerID int64) error {
	username := UsernameFor(payerID)
	if err := s.Provisioner.DeleteUser(ctx, username); err != nil {
		return err
	}
	s.Logger.WithContext(ctx).Infow("panel user deleted", "username", username)
	return nil
}

// invoiceNotFound reports whether err means the invoice or its tariff is gone for good
func invoiceNotFound(err error) bool {
	return ierr.IsNotFound(err) && !ierr.IsProvisioning(err)
}
