package telegram

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dagdev/vpnbill/internal/domain/invoice"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/dagdev/vpnbill/internal/testutil"
	"github.com/dagdev/vpnbill/internal/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

const (
	payer = int64(42)
	admin = int64(1001)
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeClient) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeClient) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeClient) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeClient) invoices() []tgbotapi.InvoiceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.InvoiceConfig
	for _, c := range f.sent {
		if inv, ok := c.(tgbotapi.InvoiceConfig); ok {
			out = append(out, inv)
		}
	}
	return out
}

func (f *fakeClient) preCheckoutAnswers() []tgbotapi.PreCheckoutConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PreCheckoutConfig
	for _, c := range f.requests {
		if a, ok := c.(tgbotapi.PreCheckoutConfig); ok {
			out = append(out, a)
		}
	}
	return out
}

type PollerSuite struct {
	testutil.BaseServiceTestSuite
	client *fakeClient
	poller *Poller
}

func TestPoller(t *testing.T) {
	suite.Run(t, new(PollerSuite))
}

func (s *PollerSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.client = newFakeClient()

	params := service.NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetCache(),
		nil,
		s.GetStores().InvoiceRepo,
		s.GetProvisioner(),
		s.GetNotifier(),
		s.GetMessenger(),
		s.GetTariffs(),
	)
	params.Clock = s.Now

	subscriptions := service.NewSubscriptionService(params)
	s.poller = NewPoller(s.client, Services{
		Payments:       service.NewPaymentService(params, subscriptions),
		Subscriptions:  subscriptions,
		Invoices:       service.NewInvoiceService(params),
		Reconciliation: service.NewReconciliationService(params, subscriptions),
		Stats:          service.NewStatsService(params),
	}, s.GetConfig(), s.GetTariffs(), s.GetLogger())
}

func command(from int64, text string) tgbotapi.Update {
	length := strings.IndexByte(text, ' ')
	if length < 0 {
		length = len(text)
	}
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: from},
			Chat:     &tgbotapi.Chat{ID: from},
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		},
	}
}

func (s *PollerSuite) lastText() string {
	texts := s.client.texts()
	s.Require().NotEmpty(texts)
	return texts[len(texts)-1]
}

func (s *PollerSuite) TestBuyIssuesInvoice() {
	s.poller.HandleUpdate(s.GetContext(), command(payer, "/buy m3"))

	invoices := s.client.invoices()
	s.Require().Len(invoices, 1)
	sent := invoices[0]
	s.Equal(payer, sent.ChatID)
	s.Equal("RUB", sent.Currency)
	s.Require().Len(sent.Prices, 1)
	s.Equal(54900, sent.Prices[0].Amount)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), sent.Payload)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPending, inv.Status)
	s.Equal("m3", inv.TariffCode)
	s.Equal(payer, inv.PayerID)
}

func (s *PollerSuite) TestBuyUnknownTariff() {
	s.poller.HandleUpdate(s.GetContext(), command(payer, "/buy m99"))

	s.Empty(s.client.invoices())
	s.Equal("Tariff m99 does not exist", s.lastText())
}

func (s *PollerSuite) TestBuyWithoutCodeListsTariffs() {
	s.poller.HandleUpdate(s.GetContext(), command(payer, "/buy"))

	text := s.lastText()
	s.Contains(text, msgUsageBuy)
	s.Contains(text, "/buy m12")
	s.Contains(text, "199.00 RUB")
}

func (s *PollerSuite) issue() *invoice.Invoice {
	s.poller.HandleUpdate(s.GetContext(), command(payer, "/buy m1"))
	invoices := s.client.invoices()
	s.Require().NotEmpty(invoices)
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), invoices[len(invoices)-1].Payload)
	s.Require().NoError(err)
	return inv
}

func (s *PollerSuite) TestPreCheckout() {
	inv := s.issue()

	s.poller.HandleUpdate(s.GetContext(), tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
		ID:             "q1",
		From:           &tgbotapi.User{ID: payer},
		Currency:       "RUB",
		TotalAmount:    19900,
		InvoicePayload: inv.ID,
	}})
	s.poller.HandleUpdate(s.GetContext(), tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
		ID:             "q2",
		From:           &tgbotapi.User{ID: payer},
		Currency:       "RUB",
		TotalAmount:    100,
		InvoicePayload: inv.ID,
	}})

	answers := s.client.preCheckoutAnswers()
	s.Require().Len(answers, 2)
	s.Equal("q1", answers[0].PreCheckoutQueryID)
	s.True(answers[0].OK)
	s.Equal("q2", answers[1].PreCheckoutQueryID)
	s.False(answers[1].OK)
	s.Equal("Payment amount does not match the tariff price", answers[1].ErrorMessage)
}

func (s *PollerSuite) TestSuccessfulPaymentProvisions() {
	inv := s.issue()

	s.poller.HandleUpdate(s.GetContext(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: payer},
		Chat: &tgbotapi.Chat{ID: payer},
		SuccessfulPayment: &tgbotapi.SuccessfulPayment{
			Currency:                "RUB",
			TotalAmount:             19900,
			InvoicePayload:          inv.ID,
			TelegramPaymentChargeID: "tg-charge",
			ProviderPaymentChargeID: "provider-charge",
		},
	}})

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusCompleted, stored.Status)

	links := lo.Filter(s.GetMessenger().Messages(), func(m testutil.PayerMessage, _ int) bool {
		return m.Kind == testutil.PayerMessageLink
	})
	s.Require().Len(links, 1)
	s.Equal(payer, links[0].PayerID)
}

func (s *PollerSuite) TestAdminCommandsRequireAdmin() {
	s.poller.HandleUpdate(s.GetContext(), command(payer, "/stats"))
	s.Equal(msgAccessDenied, s.lastText())

	s.poller.HandleUpdate(s.GetContext(), command(payer, "/retry_pending"))
	s.Equal(msgAccessDenied, s.lastText())
}

func (s *PollerSuite) TestRetryPending() {
	s.poller.HandleUpdate(s.GetContext(), command(admin, "/retry_pending"))
	s.Equal(msgNoPending, s.lastText())

	inv := invoice.New("inv_parked", payer, "m1", 19900, "RUB")
	inv.Status = types.InvoiceStatusPaidPending
	inv.Attempts = 1
	inv.CreatedAt = s.Now()
	inv.UpdatedAt = s.Now()
	s.GetStores().InvoiceRepo.Put(inv)

	s.poller.HandleUpdate(s.GetContext(), command(admin, "/retry_pending"))
	s.Equal("Retry finished.\nSucceeded: 1\nFailed: 0", s.lastText())

	s.poller.HandleUpdate(s.GetContext(), command(admin, "/stats"))
	s.Contains(s.lastText(), "Paid invoices: 1")
}

func (s *PollerSuite) TestStatusWithoutAccess() {
	s.poller.HandleUpdate(s.GetContext(), command(payer, "/status"))
	s.Equal(msgNoAccess, s.lastText())
}

func (s *PollerSuite) TestStartConsumesUpdatesUntilStopped() {
	s.poller.Start()
	s.client.updates <- command(payer, "/start")

	s.Eventually(func() bool { return len(s.client.texts()) == 1 }, time.Second, 10*time.Millisecond)

	s.poller.Stop()
	s.True(s.client.stopped)
}
