package telegram

import (
	"time"

	"github.com/dagdev/vpnbill/internal/config"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/httpclient"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/notify"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultPollTimeout = 30

// Client is the subset of *tgbotapi.BotAPI the poller needs
type Client interface {
	notify.Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBotAPI connects to the Bot API. It returns a nil bot when no token is
// configured, which leaves the process running without the Telegram channel.
func NewBotAPI(cfg *config.Configuration, log *logger.Logger) (*tgbotapi.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		log.Warn("telegram.token is empty, telegram channel disabled")
		return nil, nil
	}

	// long polling holds the request open for the poll timeout
	client := httpclient.NewRetryableClient(httpclient.ClientConfig{
		Timeout:       time.Duration(pollTimeout(cfg.Telegram)+10) * time.Second,
		MaxAttempts:   3,
		RetryWaitUnit: time.Second,
	}, log)

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, client.StandardClient())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to the Telegram Bot API").
			Mark(ierr.ErrHTTPClient)
	}

	log.Infow("connected to telegram", "bot", bot.Self.UserName)
	return bot, nil
}

// NewSender exposes the bot for outbound messages. A missing bot yields a
// nil Sender so the notifiers fall back to logging.
func NewSender(bot *tgbotapi.BotAPI) notify.Sender {
	if bot == nil {
		return nil
	}
	return bot
}

func pollTimeout(cfg config.TelegramConfig) int {
	if cfg.PollTimeout <= 0 {
		return defaultPollTimeout
	}
	return cfg.PollTimeout
}
