package notify

import (
	"context"
	"fmt"
	"net/url"

	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	MessageAccessReady   = "Your VPN is ready.\nTap the button below to connect."
	MessageLinkNotReady  = "Payment confirmed, but the access link is not ready yet. We will send it shortly."
	MessageDelayed       = "Payment confirmed, but access delivery is delayed. We are already working on it."
	MessageUnknownTariff = "Payment received, but the tariff was not found. Please contact support."
	connectButtonLabel   = "Connect"
)

// ExpiryReminderText is the reminder sent daysLeft days before access ends
func ExpiryReminderText(daysLeft int) string {
	if daysLeft == 1 {
		return "Your VPN subscription ends in 1 day.\nRenew now with /buy to stay connected."
	}
	return fmt.Sprintf("Your VPN subscription ends in %d days.\nRenew now with /buy to stay connected.", daysLeft)
}

// Messenger sends payment outcome messages to payers
type Messenger interface {
	SendAccessLink(ctx context.Context, payerID int64, link string) error
	SendDelayed(ctx context.Context, payerID int64) error
	SendText(ctx context.Context, payerID int64, text string) error
}

type TelegramMessenger struct {
	sender Sender
	logger *logger.Logger
}

func NewTelegramMessenger(sender Sender, log *logger.Logger) *TelegramMessenger {
	return &TelegramMessenger{
		sender: sender,
		logger: log,
	}
}

// SendAccessLink sends the link behind a connect button. A link that is not an
// absolute http(s) URL cannot back a button, so the payer gets a not-ready notice.
func (m *TelegramMessenger) SendAccessLink(ctx context.Context, payerID int64, link string) error {
	if !isButtonURL(link) {
		m.logger.WithContext(ctx).Warnw("access link cannot be used for a button", "link", link)
		return m.SendText(ctx, payerID, MessageLinkNotReady)
	}

	msg := tgbotapi.NewMessage(payerID, MessageAccessReady)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(connectButtonLabel, link),
		),
	)
	return m.send(ctx, msg)
}

func (m *TelegramMessenger) SendDelayed(ctx context.Context, payerID int64) error {
	return m.SendText(ctx, payerID, MessageDelayed)
}

func (m *TelegramMessenger) SendText(ctx context.Context, payerID int64, text string) error {
	return m.send(ctx, tgbotapi.NewMessage(payerID, text))
}

func (m *TelegramMessenger) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if m.sender == nil {
		return ierr.NewError("payer messaging is not configured").
			WithHint("Set telegram.token to deliver payer messages").
			Mark(ierr.ErrInvalidOperation)
	}
	if _, err := m.sender.Send(msg); err != nil {
		m.logger.WithContext(ctx).Errorw("failed to message payer", "chat_id", msg.ChatID, "error", err)
		return ierr.WithError(err).
			WithHintf("Failed to message payer %d", msg.ChatID).
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}

func isButtonURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
