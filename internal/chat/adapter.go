// Package chat bridges the bot core to chat platforms (Discord, Slack, etc.).
package chat

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management, message delivery and
// inline-selection rendering for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Inbound, error)

	// SendText delivers a plain text message and returns the platform
	// message ID (used later by EditMessage).
	SendText(ctx context.Context, chatID, text string) (string, error)

	// SendKeyboard delivers a text message with an inline selection
	// keyboard attached.
	SendKeyboard(ctx context.Context, chatID, text string, kb Keyboard) (string, error)

	// SendMediaGroup delivers a batch of photo URLs as one album.
	SendMediaGroup(ctx context.Context, chatID string, urls []string) error

	// EditMessage replaces the text (and optionally the keyboard) of a
	// previously sent message. A nil keyboard removes any keyboard.
	EditMessage(ctx context.Context, chatID, messageID, text string, kb *Keyboard) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Inbound represents an event received from the chat platform: either a
// plain text message or an inline-button selection.
type Inbound struct {
	Platform     string    // e.g. "discord", "slack"
	ChatID       string    // conversation identifier, scopes all session state
	UserID       string    // platform-specific user identifier
	UserName     string    // human-readable username
	Text         string    // raw message text (empty for button selections)
	CallbackData string    // inline button payload (empty for text messages)
	MessageID    string    // platform message the event belongs to
	Timestamp    time.Time // when the event was produced
}

// IsCallback reports whether the event is an inline-button selection.
func (in Inbound) IsCallback() bool {
	return in.CallbackData != ""
}

// Button is a single inline keyboard button.
type Button struct {
	Label string // visible text
	Data  string // callback payload delivered on selection
}

// Keyboard is an inline selection keyboard: rows of buttons.
type Keyboard struct {
	Rows [][]Button
}

// NewKeyboard lays out buttons into rows of perRow columns.
func NewKeyboard(perRow int, buttons ...Button) Keyboard {
	if perRow < 1 {
		perRow = 1
	}
	var kb Keyboard
	for len(buttons) > 0 {
		n := perRow
		if n > len(buttons) {
			n = len(buttons)
		}
		kb.Rows = append(kb.Rows, buttons[:n])
		buttons = buttons[n:]
	}
	return kb
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. The dispatcher uses it to drop any echo
// of the bot's own messages that an adapter fails to filter.
type BotUserIDer interface {
	BotUserID() string
}
