package scheduler

import (
	"context"

	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
)

// JobReconciliation is the name of the paid-invoice reconciliation job
const JobReconciliation = "reconciliation"

// RegisterReconciliation schedules the reconciliation tick. A disabled
// reconciler registers nothing.
func RegisterReconciliation(s *Scheduler, cfg *config.Configuration, svc service.ReconciliationService, log *logger.Logger) error {
	if !cfg.Reconciliation.Enabled {
		log.Warn("reconciliation is disabled, paid invoices will not be retried")
		return nil
	}

	return s.Every(JobReconciliation, cfg.Reconciliation.TickInterval, func(ctx context.Context) error {
		// a failed tick is logged by the scheduler and retried next interval
		_, err := svc.Tick(ctx)
		return err
	})
}
