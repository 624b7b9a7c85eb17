package chat

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Sent records one outbound delivery made through the MockAdapter.
type Sent struct {
	ChatID    string
	Text      string
	Keyboard  *Keyboard
	MediaURLs []string
	MessageID string
	Edited    bool
}

// MockAdapter implements Adapter for testing. It records sent messages and
// allows simulating inbound events via SimulateText and SimulateCallback.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan Inbound
	sent      []Sent
	nextID    int
	botUserID string
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan Inbound, 100),
	}
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

func (m *MockAdapter) record(s Sent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", fmt.Errorf("mock adapter: not connected")
	}
	m.nextID++
	s.MessageID = strconv.Itoa(m.nextID)
	m.sent = append(m.sent, s)
	return s.MessageID, nil
}

// SendText records a plain text delivery.
func (m *MockAdapter) SendText(ctx context.Context, chatID, text string) (string, error) {
	return m.record(Sent{ChatID: chatID, Text: text})
}

// SendKeyboard records a keyboard delivery.
func (m *MockAdapter) SendKeyboard(ctx context.Context, chatID, text string, kb Keyboard) (string, error) {
	return m.record(Sent{ChatID: chatID, Text: text, Keyboard: &kb})
}

// SendMediaGroup records a media batch delivery.
func (m *MockAdapter) SendMediaGroup(ctx context.Context, chatID string, urls []string) error {
	copied := make([]string, len(urls))
	copy(copied, urls)
	_, err := m.record(Sent{ChatID: chatID, MediaURLs: copied})
	return err
}

// EditMessage records an edit of a previously sent message.
func (m *MockAdapter) EditMessage(ctx context.Context, chatID, messageID, text string, kb *Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.sent = append(m.sent, Sent{ChatID: chatID, Text: text, Keyboard: kb, MessageID: messageID, Edited: true})
	return nil
}

// Close marks the adapter closed and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// SimulateText injects an inbound text message.
func (m *MockAdapter) SimulateText(chatID, text string) {
	m.inbound <- Inbound{
		Platform:  "mock",
		ChatID:    chatID,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// SimulateCallback injects an inbound inline-button selection.
func (m *MockAdapter) SimulateCallback(chatID, data, messageID string) {
	m.inbound <- Inbound{
		Platform:     "mock",
		ChatID:       chatID,
		CallbackData: data,
		MessageID:    messageID,
		Timestamp:    time.Now(),
	}
}

// SentMessages returns a snapshot of recorded deliveries.
func (m *MockAdapter) SentMessages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastSent returns the most recent delivery, or a zero Sent if none.
func (m *MockAdapter) LastSent() Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Sent{}
	}
	return m.sent[len(m.sent)-1]
}

// Reset clears recorded deliveries.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
