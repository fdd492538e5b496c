package service

import (
	"context"
	"time"

	"github.com/dagdev/vpnbill/internal/cache"
	"github.com/dagdev/vpnbill/internal/metrics"
	"github.com/dagdev/vpnbill/internal/notify"
	"github.com/dagdev/vpnbill/internal/provisioning"
	"github.com/samber/lo"
)

// reminderMarkerTTL outlives the widest reminder window so a payer is not
// reminded twice for the same expiry.
const reminderMarkerTTL = 8 * 24 * time.Hour

// ReminderResult summarizes one reminder pass
type ReminderResult struct {
	Checked int
	Sent    int
	Failed  int
}

// ReminderService tells payers their access is about to end
type ReminderService interface {
	// SendExpiryReminders checks every payer with a completed invoice and sends
	// one reminder per configured day before expiry. One payer's failure does
	// not stop the pass.
	SendExpiryReminders(ctx context.Context) (*ReminderResult, error)
}

type reminderService struct {
	ServiceParams
}

func NewReminderService(params ServiceParams) ReminderService {
	return &reminderService{
		ServiceParams: params,
	}
}

func (s *reminderService) SendExpiryReminders(ctx context.Context) (*ReminderResult, error) {
	payers, err := s.InvoiceRepo.ListActivePayers(ctx)
	if err != nil {
		return nil, err
	}

	result := &ReminderResult{}
	today := startOfDay(s.now())
	for _, payerID := range payers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		switch s.remind(ctx, payerID, today) {
		case reminderSent:
			result.Sent++
			metrics.ExpiryReminders.WithLabelValues("sent").Inc()
		case reminderFailed:
			result.Failed++
			metrics.ExpiryReminders.WithLabelValues("failed").Inc()
		}
	}
	return result, nil
}

type reminderOutcome int

const (
	reminderSkipped reminderOutcome = iota
	reminderSent
	reminderFailed
)

func (s *reminderService) remind(ctx context.Context, payerID int64, today time.Time) reminderOutcome {
	username := UsernameFor(payerID)
	log := s.Logger.WithContext(ctx)

	st, err := s.Provisioner.GetStatus(ctx, username)
	if err != nil {
		if provisioning.IsRejected(err) {
			// access was revoked on the panel
			return reminderSkipped
		}
		log.Warnw("failed to read panel status for reminder", "username", username, "error", err)
		return reminderFailed
	}
	if st.ExpireAt == nil || st.Status == "disabled" {
		return reminderSkipped
	}

	daysLeft := int(startOfDay(*st.ExpireAt).Sub(today).Hours() / 24)
	if !lo.Contains(s.Config.Reminders.Days, daysLeft) {
		return reminderSkipped
	}

	key := cache.GenerateKey(cache.PrefixExpiryReminder, payerID, st.ExpireAt.Unix(), daysLeft)
	if s.Cache != nil {
		if _, done := s.Cache.Get(ctx, key); done {
			return reminderSkipped
		}
	}

	if err := s.Messenger.SendText(ctx, payerID, notify.ExpiryReminderText(daysLeft)); err != nil {
		log.Warnw("failed to send expiry reminder", "payer_id", payerID, "days_left", daysLeft, "error", err)
		return reminderFailed
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, key, true, reminderMarkerTTL)
	}
	log.Infow("expiry reminder sent", "payer_id", payerID, "days_left", daysLeft)
	return reminderSent
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
