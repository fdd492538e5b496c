package scheduler

import (
	"context"

	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
)

// JobExpiryReminders is the name of the expiry reminder job
const JobExpiryReminders = "expiry_reminders"

// RegisterReminders schedules the expiry reminder pass
func RegisterReminders(s *Scheduler, cfg *config.Configuration, svc service.ReminderService, log *logger.Logger) error {
	if !cfg.Reminders.Enabled {
		log.Warn("expiry reminders are disabled")
		return nil
	}

	return s.Every(JobExpiryReminders, cfg.Reminders.Interval, func(ctx context.Context) error {
		_, err := svc.SendExpiryReminders(ctx)
		return err
	})
}
