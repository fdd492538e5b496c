package testutil

import (
	"context"
	"sync"
)

// RecordingNotifier captures operator alerts
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// PayerMessage is one message sent to a payer
type PayerMessage struct {
	PayerID int64
	Kind    string
	Text    string
}

const (
	PayerMessageLink    = "link"
	PayerMessageDelayed = "delayed"
	PayerMessageText    = "text"
)

// RecordingMessenger captures payer messages
type RecordingMessenger struct {
	mu       sync.Mutex
	messages []PayerMessage
}

func NewRecordingMessenger() *RecordingMessenger {
	return &RecordingMessenger{}
}

func (m *RecordingMessenger) add(msg PayerMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *RecordingMessenger) SendAccessLink(_ context.Context, payerID int64, link string) error {
	m.add(PayerMessage{PayerID: payerID, Kind: PayerMessageLink, Text: link})
	return nil
}

func (m *RecordingMessenger) SendDelayed(_ context.Context, payerID int64) error {
	m.add(PayerMessage{PayerID: payerID, Kind: PayerMessageDelayed})
	return nil
}

func (m *RecordingMessenger) SendText(_ context.Context, payerID int64, text string) error {
	m.add(PayerMessage{PayerID: payerID, Kind: PayerMessageText, Text: text})
	return nil
}

func (m *RecordingMessenger) Messages() []PayerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PayerMessage(nil), m.messages...)
}
