package service

import (
	"time"

	"github.com/dagdev/vpnbill/internal/cache"
	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/domain/invoice"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/notify"
	"github.com/dagdev/vpnbill/internal/sentry"
	"github.com/dagdev/vpnbill/internal/types"
)

// Clock returns the current time. Tests replace it to move through backoff windows.
type Clock func() time.Time

// SystemClock is the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Cache  cache.Cache
	Sentry *sentry.Service
	Clock  Clock

	// Repositories
	InvoiceRepo invoice.Repository

	// Collaborators
	Provisioner Provisioner
	Notifier    notify.Notifier
	Messenger   notify.Messenger
	Tariffs     *types.TariffCatalog
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	cache cache.Cache,
	sentry *sentry.Service,
	invoiceRepo invoice.Repository,
	provisioner Provisioner,
	notifier notify.Notifier,
	messenger notify.Messenger,
	tariffs *types.TariffCatalog,
) ServiceParams {
	return ServiceParams{
		Logger:      logger,
		Config:      config,
		Cache:       cache,
		Sentry:      sentry,
		Clock:       SystemClock,
		InvoiceRepo: invoiceRepo,
		Provisioner: provisioner,
		Notifier:    notifier,
		Messenger:   messenger,
		Tariffs:     tariffs,
	}
}

func (p ServiceParams) now() time.Time {
	if p.Clock == nil {
		return SystemClock()
	}
	return p.Clock()
}
