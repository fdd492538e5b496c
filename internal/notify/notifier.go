package notify

import (
	"context"
	"time"

	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

const maxParallelDeliveries = 4

// Sender is the subset of *tgbotapi.BotAPI used for outbound messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier delivers operator alerts. Notify never blocks on delivery and never fails.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// TelegramNotifier fans an alert out to every configured operator chat.
// Deliveries run in the background, share one rate limiter, and a failure
// for one operator does not affect the others.
type TelegramNotifier struct {
	sender   Sender
	adminIDs []int64
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *logger.Logger
	inflight conc.WaitGroup
}

// NewTelegramNotifier creates the operator notifier. sender may be nil, in which
// case alerts are only logged.
func NewTelegramNotifier(sender Sender, cfg config.TelegramConfig, log *logger.Logger) *TelegramNotifier {
	perSecond := cfg.NotifyRatePerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		sender:   sender,
		adminIDs: cfg.AdminIDs,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout:  timeout,
		logger:   log,
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) {
	log := n.logger.WithContext(ctx)
	if n.sender == nil || len(n.adminIDs) == 0 {
		log.Warnw("operator alert not delivered, no operator chat configured", "text", text)
		metrics.OperatorAlerts.WithLabelValues("dropped").Inc()
		return
	}

	log.Infow("sending operator alert", "operators", len(n.adminIDs), "text", text)
	ctx = context.WithoutCancel(ctx)
	n.inflight.Go(func() {
		n.deliver(ctx, text)
	})
}

func (n *TelegramNotifier) deliver(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	log := n.logger.WithContext(ctx)
	p := pool.New().WithMaxGoroutines(maxParallelDeliveries)
	for _, chatID := range n.adminIDs {
		chatID := chatID
		p.Go(func() {
			if err := n.limiter.Wait(ctx); err != nil {
				log.Warnw("operator alert dropped by rate limiter", "chat_id", chatID, "error", err)
				metrics.OperatorAlerts.WithLabelValues("dropped").Inc()
				return
			}
			if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
				log.Errorw("failed to deliver operator alert", "chat_id", chatID, "error", err)
				metrics.OperatorAlerts.WithLabelValues("failed").Inc()
				return
			}
			metrics.OperatorAlerts.WithLabelValues("sent").Inc()
		})
	}
	p.Wait()
}

// Wait blocks until every alert accepted so far has been delivered or dropped
func (n *TelegramNotifier) Wait() {
	n.inflight.Wait()
}
