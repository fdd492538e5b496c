package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dagdev/vpnbill/internal/api/dto"
	"github.com/dagdev/vpnbill/internal/config"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/dagdev/vpnbill/internal/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/fx"
)

const (
	invoiceTitle      = "VPN subscription"
	msgAccessDenied   = "Access denied."
	msgGenericFailure = "Something went wrong. Please try again later."
	msgNoPending      = "No payments are waiting for delivery."
	msgUsageBuy       = "Usage: /buy <tariff>"
	msgNoAccess       = "You have no active subscription yet. Use /buy to get one."
)

// Services are the operations reachable from chat
type Services struct {
	Payments       service.PaymentService
	Subscriptions  service.SubscriptionService
	Invoices       service.InvoiceService
	Reconciliation service.ReconciliationService
	Stats          service.StatsService
}

// Poller consumes Bot API updates: payment approvals, payment confirmations
// and the purchase and admin commands.
type Poller struct {
	client   Client
	services Services
	cfg      *config.Configuration
	tariffs  *types.TariffCatalog
	admins   map[int64]struct{}
	log      *logger.Logger

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func NewPoller(client Client, services Services, cfg *config.Configuration, tariffs *types.TariffCatalog, log *logger.Logger) *Poller {
	return &Poller{
		client:   client,
		services: services,
		cfg:      cfg,
		tariffs:  tariffs,
		admins:   lo.SliceToMap(cfg.Telegram.AdminIDs, func(id int64) (int64, struct{}) { return id, struct{}{} }),
		log:      log,
	}
}

// Start begins long polling in the background
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout(p.cfg.Telegram)
	u.AllowedUpdates = []string{"message", "pre_checkout_query"}
	updates := p.client.GetUpdatesChan(u)

	p.log.Infow("starting telegram poller", "poll_timeout", u.Timeout)
	p.wg.Go(func() { p.consume(ctx, updates) })
}

// Stop ends polling and waits for the update being handled
func (p *Poller) Stop() {
	p.client.StopReceivingUpdates()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) consume(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			p.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. Failures are logged and answered in
// chat; they never stop the poller.
func (p *Poller) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = types.SetRequestID(ctx, types.GenerateUUID())
	defer func() {
		if r := recover(); r != nil {
			p.log.WithContext(ctx).Errorw("panic while handling telegram update",
				"update_id", update.UpdateID,
				"panic", r)
		}
	}()

	switch {
	case update.PreCheckoutQuery != nil:
		p.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		p.handleSuccessfulPayment(ctx, update.Message)
	case update.Message != nil && update.Message.IsCommand():
		p.handleCommand(ctx, update.Message)
	}
}

func (p *Poller) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	var payerID int64
	if q.From != nil {
		payerID = q.From.ID
	}
	ctx = types.SetPayerID(ctx, payerID)

	err := p.services.Payments.PreCheckout(ctx, dto.PreCheckoutRequest{
		Reference:   q.InvoicePayload,
		PayerID:     payerID,
		TotalAmount: int64(q.TotalAmount),
		Currency:    q.Currency,
	})

	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: q.ID,
		OK:                 err == nil,
	}
	if err != nil {
		p.log.WithContext(ctx).Warnw("pre-checkout rejected", "reference", q.InvoicePayload, "error", err)
		answer.ErrorMessage = userMessage(err)
	}
	if _, err := p.client.Request(answer); err != nil {
		p.log.WithContext(ctx).Errorw("failed to answer pre-checkout query", "error", err)
	}
}

func (p *Poller) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	payment := msg.SuccessfulPayment
	req := dto.PaymentConfirmationRequest{
		Reference:        payment.InvoicePayload,
		PayerID:          payerOf(msg),
		TotalAmount:      int64(payment.TotalAmount),
		Currency:         payment.Currency,
		ProviderChargeID: payment.ProviderPaymentChargeID,
		ChannelChargeID:  payment.TelegramPaymentChargeID,
	}

	// the payment service answers the payer itself
	resp, err := p.services.Payments.HandlePaymentConfirmed(ctx, req)
	if err != nil {
		p.log.WithContext(ctx).Errorw("failed to record telegram payment",
			"reference", req.Reference,
			"channel_charge_id", req.ChannelChargeID,
			"error", err)
		p.reply(ctx, msg.Chat.ID, msgGenericFailure)
		return
	}
	p.log.WithContext(ctx).Infow("telegram payment handled",
		"invoice_id", resp.InvoiceID,
		"outcome", resp.Outcome,
		"first_payment", resp.FirstPayment)
}

func (p *Poller) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	payerID := payerOf(msg)
	ctx = types.SetPayerID(ctx, payerID)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		p.reply(ctx, msg.Chat.ID, p.tariffList())
	case "buy":
		p.handleBuy(ctx, msg.Chat.ID, payerID, args)
	case "status":
		p.handleStatus(ctx, msg.Chat.ID, payerID)
	case "stats":
		if p.requireAdmin(ctx, msg.Chat.ID, payerID) {
			p.handleStats(ctx, msg.Chat.ID)
		}
	case "retry_pending":
		if p.requireAdmin(ctx, msg.Chat.ID, payerID) {
			p.handleRetryPending(ctx, msg.Chat.ID)
		}
	}
}

func (p *Poller) handleBuy(ctx context.Context, chatID, payerID int64, code string) {
	if code == "" {
		p.reply(ctx, chatID, msgUsageBuy+"\n\n"+p.tariffList())
		return
	}

	inv, err := p.services.Payments.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		PayerID:    payerID,
		TariffCode: code,
	})
	if err != nil {
		p.log.WithContext(ctx).Warnw("failed to issue invoice", "tariff_code", code, "error", err)
		p.reply(ctx, chatID, userMessage(err))
		return
	}

	tariff, _ := p.tariffs.ByCode(inv.TariffCode)
	invoice := tgbotapi.NewInvoice(
		chatID,
		invoiceTitle,
		"Tariff: "+tariff.Title,
		inv.ID,
		p.cfg.Telegram.PaymentProviderToken,
		"",
		inv.Currency,
		[]tgbotapi.LabeledPrice{{Label: tariff.Title, Amount: int(inv.AmountMinor)}},
	)
	invoice.SuggestedTipAmounts = []int{}

	if _, err := p.client.Send(invoice); err != nil {
		p.log.WithContext(ctx).Errorw("failed to send telegram invoice", "invoice_id", inv.ID, "error", err)
		p.reply(ctx, chatID, "Could not open the payment form. Please try again later.")
	}
}

func (p *Poller) handleStatus(ctx context.Context, chatID, payerID int64) {
	status, err := p.services.Subscriptions.GetAccessStatus(ctx, payerID)
	if err != nil {
		if ierr.IsNotFound(err) {
			p.reply(ctx, chatID, msgNoAccess)
			return
		}
		p.log.WithContext(ctx).Errorw("failed to load access status", "error", err)
		p.reply(ctx, chatID, msgGenericFailure)
		return
	}

	text := fmt.Sprintf("Status: %s\nUsed: %.2f GB", status.Status, float64(status.UsedBytes)/(1<<30))
	if status.ExpireAt != nil {
		text += "\nExpires: " + *status.ExpireAt
	}
	p.reply(ctx, chatID, text)
}

func (p *Poller) handleStats(ctx context.Context, chatID int64) {
	stats, err := p.services.Stats.GetStats(ctx)
	if err != nil {
		p.log.WithContext(ctx).Errorw("failed to load stats", "error", err)
		p.reply(ctx, chatID, msgGenericFailure)
		return
	}
	p.reply(ctx, chatID, fmt.Sprintf(
		"Paid invoices: %d\nRevenue: %s %s\nWaiting for delivery: %d\nFailed: %d",
		stats.PaidInvoices, stats.PaidAmount.StringFixed(2), stats.Currency,
		stats.PaidPendingCount, stats.FailedCount,
	))
}

func (p *Poller) handleRetryPending(ctx context.Context, chatID int64) {
	ctx = types.SetSource(ctx, types.SourceManual)
	pending, err := p.services.Invoices.ListPendingIDs(ctx)
	if err != nil {
		p.log.WithContext(ctx).Errorw("failed to list pending invoices", "error", err)
		p.reply(ctx, chatID, msgGenericFailure)
		return
	}
	if len(pending.InvoiceIDs) == 0 {
		p.reply(ctx, chatID, msgNoPending)
		return
	}

	var succeeded, failed int
	for _, id := range pending.InvoiceIDs {
		out, err := p.services.Reconciliation.RetryInvoice(ctx, id)
		if err == nil && out.Outcome == types.ReconcileOutcomeCompleted {
			succeeded++
			continue
		}
		failed++
	}
	p.reply(ctx, chatID, fmt.Sprintf("Retry finished.\nSucceeded: %d\nFailed: %d", succeeded, failed))
}

func (p *Poller) requireAdmin(ctx context.Context, chatID, payerID int64) bool {
	if _, ok := p.admins[payerID]; ok {
		return true
	}
	p.log.WithContext(ctx).Warnw("admin command from non-admin")
	p.reply(ctx, chatID, msgAccessDenied)
	return false
}

func (p *Poller) tariffList() string {
	var b strings.Builder
	b.WriteString("Choose a subscription period:\n")
	for _, t := range p.tariffs.All() {
		price := decimal.New(t.PriceMinor, -2).StringFixed(2)
		fmt.Fprintf(&b, "\n/buy %s  %s  %s %s", t.Code, t.Title, price, p.cfg.Payment.Currency)
	}
	return b.String()
}

func (p *Poller) reply(ctx context.Context, chatID int64, text string) {
	if _, err := p.client.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		p.log.WithContext(ctx).Errorw("failed to send telegram reply", "chat_id", chatID, "error", err)
	}
}

// RegisterWithLifecycle registers the poller with the fx lifecycle.
func (p *Poller) RegisterWithLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				p.Stop()
				close(done)
			}()

			select {
			case <-done:
				p.log.Info("telegram poller stopped")
			case <-ctx.Done():
				p.log.Error("timeout while stopping telegram poller")
			}
			return nil
		},
	})
}

func payerOf(msg *tgbotapi.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}

// userMessage picks the hint attached to err, which is safe to show a payer
func userMessage(err error) string {
	if hint := errors.FlattenHints(err); hint != "" {
		return strings.SplitN(hint, "\n", 2)[0]
	}
	return msgGenericFailure
}
