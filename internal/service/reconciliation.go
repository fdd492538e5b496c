package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dagdev/vpnbill/internal/domain/invoice"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/metrics"
	"github.com/dagdev/vpnbill/internal/types"
)

const exhaustedReason = "max retry attempts exceeded"

// InvoiceOutcome is the folded result of one reconciliation step
type InvoiceOutcome struct {
	InvoiceID string
	Outcome   types.ReconcileOutcome
	Status    types.InvoiceStatus
	Attempts  int
	Link      string
	Err       error
}

// TickResult folds every per-invoice outcome of one tick
type TickResult struct {
	StartedAt time.Time
	Scanned   int
	Outcomes  []InvoiceOutcome
}

// Count returns how many invoices ended the tick with the given outcome
func (r *TickResult) Count(outcome types.ReconcileOutcome) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			n++
		}
	}
	return n
}

// TickError is a failure of the tick as a whole, as opposed to one invoice
type TickError struct {
	Err error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("reconciliation tick: %v", e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

func (e *TickError) Is(target error) bool {
	return target == ierr.ErrSchedulerTick
}

// ReconciliationService re-drives paid invoices whose access has not been granted
type ReconciliationService interface {
	// Tick runs one pass over paid and paid_pending invoices. Per-invoice
	// failures are folded into the result; only a failure to list invoices
	// returns a *TickError.
	Tick(ctx context.Context) (*TickResult, error)

	// RetryInvoice runs one step for one invoice immediately, ignoring the
	// backoff window but not the attempt limit.
	RetryInvoice(ctx context.Context, invoiceID string) (*InvoiceOutcome, error)
}

type reconciliationService struct {
	ServiceParams
	subscriptions SubscriptionService
	backoff       BackoffPolicy
}

func NewReconciliationService(params ServiceParams, subscriptions SubscriptionService) ReconciliationService {
	cfg := params.Config.Reconciliation
	return &reconciliationService{
		ServiceParams: params,
		subscriptions: subscriptions,
		backoff:       NewBackoffPolicy(cfg.BaseDelay, cfg.MaxDelay),
	}
}

func (s *reconciliationService) Tick(ctx context.Context) (*TickResult, error) {
	result := &TickResult{StartedAt: s.now()}
	ctx = types.SetSource(ctx, types.SourceScheduler)

	invoices, err := s.InvoiceRepo.ListPaidPending(ctx)
	if err != nil {
		metrics.ReconciliationTicks.WithLabelValues("error").Inc()
		tickErr := &TickError{Err: err}
		s.Logger.WithContext(ctx).Errorw("reconciliation tick failed", "error", err)
		s.Sentry.CaptureException(tickErr)
		return result, tickErr
	}
	result.Scanned = len(invoices)

	for _, inv := range invoices {
		if ctx.Err() != nil {
			s.Logger.Infow("reconciliation tick interrupted", "remaining", len(invoices)-len(result.Outcomes))
			break
		}
		outcome := s.reconcileSafely(ctx, inv, false)
		metrics.ReconciliationOutcomes.WithLabelValues(string(outcome.Outcome)).Inc()
		result.Outcomes = append(result.Outcomes, outcome)
	}

	metrics.ReconciliationTicks.WithLabelValues("ok").Inc()
	if result.Scanned > 0 {
		s.Logger.Infow("reconciliation tick finished",
			"scanned", result.Scanned,
			"completed", result.Count(types.ReconcileOutcomeCompleted),
			"retried", result.Count(types.ReconcileOutcomeRetried),
			"skipped", result.Count(types.ReconcileOutcomeSkipped),
			"exhausted", result.Count(types.ReconcileOutcomeExhausted),
			"not_found", result.Count(types.ReconcileOutcomeNotFound),
			"errored", result.Count(types.ReconcileOutcomeErrored),
			"duration", s.now().Sub(result.StartedAt),
		)
	}
	return result, nil
}

func (s *reconciliationService) RetryInvoice(ctx context.Context, invoiceID string) (*InvoiceOutcome, error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch inv.Status {
	case types.InvoiceStatusCompleted:
		return &InvoiceOutcome{
			InvoiceID: inv.ID,
			Outcome:   types.ReconcileOutcomeCompleted,
			Status:    inv.Status,
			Attempts:  inv.Attempts,
			Link:      inv.Link(),
		}, nil
	case types.InvoiceStatusPending, types.InvoiceStatusFailed:
		return nil, ierr.NewErrorf("invoice %s is %s", inv.ID, inv.Status).
			WithHintf("Invoice is %s and cannot be retried", inv.Status).
			WithReportableDetails(map[string]any{"invoice_id": inv.ID, "status": inv.Status}).
			Mark(ierr.ErrInvalidOperation)
	}

	ctx = types.SetSource(ctx, types.SourceManual)
	outcome := s.reconcileSafely(ctx, inv, true)
	metrics.ReconciliationOutcomes.WithLabelValues(string(outcome.Outcome)).Inc()
	return &outcome, nil
}

func (s *reconciliationService) reconcileSafely(ctx context.Context, inv *invoice.Invoice, manual bool) (out InvoiceOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := ierr.NewErrorf("panic while reconciling invoice %s: %v", inv.ID, r).
				Mark(ierr.ErrSystem)
			s.Logger.Errorw("recovered panic in reconciliation", "invoice_id", inv.ID, "panic", r)
			s.Sentry.CaptureException(err)
			out = InvoiceOutcome{
				InvoiceID: inv.ID,
				Outcome:   types.ReconcileOutcomeErrored,
				Status:    inv.Status,
				Attempts:  inv.Attempts,
				Err:       err,
			}
		}
	}()
	return s.reconcile(ctx, inv, manual)
}

func (s *reconciliationService) reconcile(ctx context.Context, inv *invoice.Invoice, manual bool) InvoiceOutcome {
	ctx = types.SetInvoiceID(ctx, inv.ID)
	ctx = types.SetPayerID(ctx, inv.PayerID)
	log := s.Logger.WithContext(ctx)

	out := InvoiceOutcome{
		InvoiceID: inv.ID,
		Status:    inv.Status,
		Attempts:  inv.Attempts,
	}
	errored := func(err error) InvoiceOutcome {
		log.Errorw("reconciliation step failed", "error", err)
		out.Outcome = types.ReconcileOutcomeErrored
		out.Err = err
		return out
	}

	if inv.Attempts >= s.Config.Reconciliation.MaxAttempts {
		reason := inv.Error()
		if reason == "" {
			reason = exhaustedReason
		}
		changed, err := s.InvoiceRepo.MarkFailed(ctx, inv.ID, reason)
		if err != nil {
			return errored(err)
		}
		out.Outcome = types.ReconcileOutcomeSkipped
		if changed {
			out.Outcome = types.ReconcileOutcomeExhausted
			out.Status = types.InvoiceStatusFailed
			log.Warnw("invoice exhausted retry attempts", "attempts", inv.Attempts, "last_error", reason)
			s.Notifier.Notify(ctx, fmt.Sprintf(
				"Payment marked failed after the maximum number of attempts.\nInvoice: %s\nAttempts: %d\nLast error: %s",
				inv.ID, inv.Attempts, reason,
			))
			s.Sentry.CaptureInvoiceFailure(ctx, ierr.NewErrorf("invoice %s failed after %d attempts: %s", inv.ID, inv.Attempts, reason).
				Mark(ierr.ErrSchedulerTick))
		}
		return out
	}

	if !manual {
		wait := s.backoff.Delay(inv.Attempts)
		if inv.Status == types.InvoiceStatusPaid && wait < s.Config.Reconciliation.InFlightGrace {
			// paid with no recorded attempt: intake may still be provisioning it
			wait = s.Config.Reconciliation.InFlightGrace
		}
		if elapsed := s.now().Sub(inv.UpdatedAt); elapsed < wait {
			out.Outcome = types.ReconcileOutcomeSkipped
			return out
		}
	}

	claimed, err := s.InvoiceRepo.ClaimForRetry(ctx, inv.ID, inv.Status, inv.UpdatedAt)
	if err != nil {
		return errored(err)
	}
	if !claimed {
		log.Debugw("invoice changed since listing, skipping")
		out.Outcome = types.ReconcileOutcomeSkipped
		return out
	}

	link, err := s.subscriptions.ProvisionInvoice(ctx, inv.ID)
	if err == nil {
		out.Outcome = types.ReconcileOutcomeCompleted
		out.Status = types.InvoiceStatusCompleted
		out.Link = link
		return out
	}

	if invoiceNotFound(err) {
		reason := "invoice not found during retry: " + err.Error()
		changed, merr := s.InvoiceRepo.MarkFailed(ctx, inv.ID, reason)
		if merr != nil {
			return errored(merr)
		}
		out.Outcome = types.ReconcileOutcomeNotFound
		out.Err = err
		if changed {
			out.Status = types.InvoiceStatusFailed
			log.Warnw("invoice cannot be provisioned, marked failed", "error", err)
			s.Notifier.Notify(ctx, fmt.Sprintf("Retry failed: invoice not found.\nInvoice: %s", inv.ID))
			s.Sentry.CaptureInvoiceFailure(ctx, err)
		}
		return out
	}

	log.Warnw("provisioning retry failed", "attempts", inv.Attempts+1, "error", err)
	changed, merr := s.InvoiceRepo.MarkPaidPending(ctx, inv.ID, err.Error())
	if merr != nil {
		return errored(merr)
	}
	out.Outcome = types.ReconcileOutcomeRetried
	out.Err = err
	if changed {
		out.Status = types.InvoiceStatusPaidPending
		out.Attempts = inv.Attempts + 1
		s.Sentry.AddBreadcrumb("invoice", "provisioning retry failed", map[string]interface{}{
			"invoice_id": inv.ID,
			"attempts":   out.Attempts,
		})
	}
	return out
}
