package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dagdev/vpnbill/internal/config"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/suite"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []tgbotapi.MessageConfig
	failTo map[int64]bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) chats() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.ChatID)
	}
	return out
}

type NotifySuite struct {
	suite.Suite
	ctx    context.Context
	sender *fakeSender
	log    *logger.Logger
}

func TestNotify(t *testing.T) {
	suite.Run(t, new(NotifySuite))
}

func (s *NotifySuite) SetupTest() {
	s.ctx = context.Background()
	s.sender = &fakeSender{failTo: map[int64]bool{}}
	s.log = logger.NewNopLogger()
}

func (s *NotifySuite) TestNotifyFansOutToEveryOperator() {
	n := NewTelegramNotifier(s.sender, config.TelegramConfig{
		AdminIDs:            []int64{1, 2, 3},
		NotifyRatePerSecond: 1000,
		SendTimeout:         time.Second,
	}, s.log)

	n.Notify(s.ctx, "invoice inv_1 failed")
	n.Wait()

	s.ElementsMatch([]int64{1, 2, 3}, s.sender.chats())
}

func (s *NotifySuite) TestOneFailingOperatorDoesNotBlockOthers() {
	s.sender.failTo[2] = true
	n := NewTelegramNotifier(s.sender, config.TelegramConfig{
		AdminIDs:            []int64{1, 2, 3},
		NotifyRatePerSecond: 1000,
	}, s.log)

	ctx, cancel := context.WithCancel(s.ctx)
	n.Notify(ctx, "alert")
	cancel()
	n.Wait()

	s.ElementsMatch([]int64{1, 3}, s.sender.chats())
}

func (s *NotifySuite) TestNotifyWithoutOperatorsIsDropped() {
	n := NewTelegramNotifier(nil, config.TelegramConfig{}, s.log)
	n.Notify(s.ctx, "alert")
	n.Wait()
}

func (s *NotifySuite) TestSendAccessLinkUsesButton() {
	m := NewTelegramMessenger(s.sender, s.log)
	s.Require().NoError(m.SendAccessLink(s.ctx, 42, "https://panel.example/sub/abc"))

	s.Require().Len(s.sender.sent, 1)
	msg := s.sender.sent[0]
	s.Equal(MessageAccessReady, msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	s.Require().True(ok)
	s.Equal("https://panel.example/sub/abc", *markup.InlineKeyboard[0][0].URL)
}

func (s *NotifySuite) TestSendAccessLinkRejectsRelativeLink() {
	m := NewTelegramMessenger(s.sender, s.log)
	s.Require().NoError(m.SendAccessLink(s.ctx, 42, "/sub/abc"))

	s.Require().Len(s.sender.sent, 1)
	s.Equal(MessageLinkNotReady, s.sender.sent[0].Text)
}

func (s *NotifySuite) TestMessengerWithoutSender() {
	m := NewTelegramMessenger(nil, s.log)
	err := m.SendDelayed(s.ctx, 42)
	s.True(ierr.IsInvalidOperation(err))
}
