package service

import (
	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/domain/invoice"
	"github.com/dagdev/vpnbill/internal/testutil"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/samber/lo"
)

// serviceSuite wires every service against the in-memory fakes
type serviceSuite struct {
	testutil.BaseServiceTestSuite
	params         ServiceParams
	subscriptions  SubscriptionService
	payments       PaymentService
	reconciliation ReconciliationService
	invoices       InvoiceService
	stats          StatsService
	reminders      ReminderService
}

func (s *serviceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.GetConfig().Reconciliation = config.GetDefaultConfig().Reconciliation
	s.params = ServiceParams{
		Logger:      s.GetLogger(),
		Config:      s.GetConfig(),
		Cache:       s.GetCache(),
		Clock:       s.Now,
		InvoiceRepo: s.GetStores().InvoiceRepo,
		Provisioner: s.GetProvisioner(),
		Notifier:    s.GetNotifier(),
		Messenger:   s.GetMessenger(),
		Tariffs:     s.GetTariffs(),
	}
	s.rebuild()
}

func (s *serviceSuite) rebuild() {
	s.subscriptions = NewSubscriptionService(s.params)
	s.payments = NewPaymentService(s.params, s.subscriptions)
	s.reconciliation = NewReconciliationService(s.params, s.subscriptions)
	s.invoices = NewInvoiceService(s.params)
	s.stats = NewStatsService(s.params)
	s.reminders = NewReminderService(s.params)
}

func (s *serviceSuite) store() *testutil.InMemoryInvoiceStore {
	return s.GetStores().InvoiceRepo
}

// seed stores an invoice in the given state with updated_at at the suite clock
func (s *serviceSuite) seed(id string, payerID int64, tariffCode string, status types.InvoiceStatus, attempts int) *invoice.Invoice {
	inv := invoice.New(id, payerID, tariffCode, 19900, "RUB")
	inv.Status = status
	inv.Attempts = attempts
	if attempts > 0 {
		inv.LastError = lo.ToPtr("provisioning unavailable")
	}
	inv.CreatedAt = s.Now()
	inv.UpdatedAt = s.Now()
	s.store().Put(inv)
	return inv
}

func (s *serviceSuite) get(id string) *invoice.Invoice {
	inv, err := s.store().Get(s.GetContext(), id)
	s.Require().NoError(err)
	return inv
}

func (s *serviceSuite) messagesOfKind(kind string) []testutil.PayerMessage {
	return lo.Filter(s.GetMessenger().Messages(), func(m testutil.PayerMessage, _ int) bool {
		return m.Kind == kind
	})
}
