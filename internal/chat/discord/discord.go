// Package discord implements the chat Adapter for Discord using the Gateway
// WebSocket. Inline keyboards are rendered as message components and photo
// albums as embeds.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bionicsv26/telegram-bot/internal/chat"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageEditComplex(m, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}

// Adapter implements chat.Adapter for Discord via the Gateway WebSocket.
// The Discord channel ID doubles as the conversation ID.
type Adapter struct {
	sess           session
	botToken       string
	botUserID      string
	mu             sync.Mutex
	connected      bool
	closed         bool
	inbound        chan chat.Inbound
	cancelFunc     context.CancelFunc
	removeHandlers []func()
	baseBackoff    time.Duration
	maxBackoff     time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string // Discord bot token
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}

	a := &Adapter{
		botToken:    opts.BotToken,
		inbound:     make(chan chat.Inbound, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if opts.Session != nil {
		a.sess = opts.Session
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
		a.sess = &realSession{s: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})

	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// Listen returns a channel of inbound events from Discord: plain messages
// and component interactions. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.Inbound, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	removeMsg := a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})
	removeInteraction := a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		a.handleInteraction(i)
	})

	a.mu.Lock()
	a.cancelFunc = cancel
	a.removeHandlers = append(a.removeHandlers, removeMsg, removeInteraction)
	a.mu.Unlock()

	go func() {
		<-listenCtx.Done()
	}()

	return a.inbound, nil
}

// SendText delivers a plain text message.
func (a *Adapter) SendText(ctx context.Context, chatID, text string) (string, error) {
	return a.send(ctx, chatID, &discordgo.MessageSend{Content: text})
}

// SendKeyboard delivers a text message with the keyboard rendered as button
// component rows. Discord allows at most five rows of five buttons each;
// larger keyboards are re-laid out to fit.
func (a *Adapter) SendKeyboard(ctx context.Context, chatID, text string, kb chat.Keyboard) (string, error) {
	return a.send(ctx, chatID, &discordgo.MessageSend{
		Content:    text,
		Components: buildComponents(kb),
	})
}

// SendMediaGroup delivers photo URLs as one message with image embeds.
func (a *Adapter) SendMediaGroup(ctx context.Context, chatID string, urls []string) error {
	embeds := make([]*discordgo.MessageEmbed, 0, len(urls))
	for _, u := range urls {
		embeds = append(embeds, &discordgo.MessageEmbed{
			Image: &discordgo.MessageEmbedImage{URL: u},
		})
	}
	_, err := a.send(ctx, chatID, &discordgo.MessageSend{Embeds: embeds})
	return err
}

// EditMessage replaces the text and keyboard of a previously sent message.
func (a *Adapter) EditMessage(ctx context.Context, chatID, messageID, text string, kb *chat.Keyboard) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	components := []discordgo.MessageComponent{}
	if kb != nil {
		components = buildComponents(*kb)
	}
	edit := &discordgo.MessageEdit{
		Channel:    chatID,
		ID:         messageID,
		Content:    &text,
		Components: &components,
	}
	err := a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelMessageEditComplex(edit)
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	for _, remove := range a.removeHandlers {
		remove()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

func (a *Adapter) send(ctx context.Context, chatID string, data *discordgo.MessageSend) (string, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return "", fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	if chatID == "" {
		return "", fmt.Errorf("discord: no channel specified")
	}

	var sent *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		sent, apiErr = a.sess.ChannelMessageSendComplex(chatID, data)
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return sent.ID, nil
}

// handleMessage converts a Discord message event to an Inbound.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()

	if m.Author.ID == botID || m.Author.Bot {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)

	a.inbound <- chat.Inbound{
		Platform:  "discord",
		ChatID:    m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
		MessageID: m.ID,
		Timestamp: ts,
	}
}

// handleInteraction converts a button press to an Inbound carrying the
// component's custom ID as callback data. The interaction is acknowledged
// with a deferred update so Discord does not show a failure to the user.
func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}

	if err := a.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		log.Printf("discord: acknowledge interaction: %v", err)
	}

	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}

	var messageID string
	if i.Message != nil {
		messageID = i.Message.ID
	}

	a.inbound <- chat.Inbound{
		Platform:     "discord",
		ChatID:       i.ChannelID,
		UserID:       user.ID,
		UserName:     user.Username,
		CallbackData: i.MessageComponentData().CustomID,
		MessageID:    messageID,
		Timestamp:    time.Now(),
	}
}

// maxButtons is Discord's component capacity: five action rows of five.
const maxButtons = 25

// buildComponents renders a keyboard as action rows of secondary buttons.
// Discord allows at most five rows of five; wider rows are re-laid out and
// anything beyond 25 buttons is dropped with a warning. Large pickers are
// unusable on Discord, so the wizard also accepts typed input wherever it
// shows a keyboard this size.
func buildComponents(kb chat.Keyboard) []discordgo.MessageComponent {
	var flat []chat.Button
	for _, row := range kb.Rows {
		flat = append(flat, row...)
	}
	if len(flat) > maxButtons {
		log.Printf("discord: keyboard of %d buttons truncated to %d", len(flat), maxButtons)
		flat = flat[:maxButtons]
	}

	perRow := 1
	if len(kb.Rows) > 0 {
		perRow = len(kb.Rows[0])
	}
	if perRow > 5 {
		perRow = 5
	}
	for len(flat) > perRow*5 {
		perRow++ // widen rows until the keyboard fits
	}

	var components []discordgo.MessageComponent
	for len(flat) > 0 {
		n := perRow
		if n > len(flat) {
			n = len(flat)
		}
		row := discordgo.ActionsRow{}
		for _, b := range flat[:n] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: b.Data,
			})
		}
		components = append(components, row)
		flat = flat[n:]
	}
	return components
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}

		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}

		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
