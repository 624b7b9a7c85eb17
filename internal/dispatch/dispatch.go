// Package dispatch routes inbound chat events to per-participant workers.
// Events from different conversations are handled concurrently; events from
// the same conversation are handled strictly in arrival order by a single
// worker, so no two turns of one participant ever race on the session record.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/history"
	"github.com/bionicsv26/telegram-bot/internal/session"
	"github.com/bionicsv26/telegram-bot/internal/wizard"
)

// queueDepth bounds each participant's pending-event queue. A participant
// spamming faster than their worker drains gets further events dropped, not
// the whole bot stalled.
const queueDepth = 16

// Sort strategies by entry command.
var sortCommands = map[string]string{
	"/lowprice":  "PRICE",
	"/highprice": "PRICE_HIGHEST_FIRST",
	"/bestdeal":  "DISTANCE_FROM_LANDMARK",
}

const (
	msgGreeting = "Hello! I find hotels for you.\n" +
		"/lowprice - cheapest hotels\n" +
		"/highprice - most expensive hotels\n" +
		"/bestdeal - best price and distance from the centre\n" +
		"/history - your recent searches\n" +
		"/help - this message"
	msgNoHistory = "No searches yet. Start one with /lowprice, /highprice or /bestdeal."
	msgHistory   = "Your recent searches:"
	msgFallback  = "I did not catch that. Use /help to see what I can do."
	msgStorage   = "Something went wrong on my side. Please try again."
)

// Dispatcher owns the inbound event loop and the worker map.
type Dispatcher struct {
	db      *gorm.DB
	adapter chat.Adapter
	wizard  *wizard.Engine
	store   *artifacts.Store

	mu      sync.Mutex
	workers map[string]chan chat.Inbound
	wg      sync.WaitGroup
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	DB      *gorm.DB
	Adapter chat.Adapter
	Wizard  *wizard.Engine
	Store   *artifacts.Store
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("dispatch: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("dispatch: adapter is required")
	}
	if opts.Wizard == nil {
		return nil, fmt.Errorf("dispatch: wizard is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("dispatch: artifact store is required")
	}
	return &Dispatcher{
		db:      opts.DB,
		adapter: opts.Adapter,
		wizard:  opts.Wizard,
		store:   opts.Store,
		workers: make(map[string]chan chat.Inbound),
	}, nil
}

// Run consumes the adapter's inbound channel until ctx is cancelled or the
// channel closes, then waits for every worker to drain.
func (d *Dispatcher) Run(ctx context.Context) error {
	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: listen: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			d.closeWorkers()
			d.wg.Wait()
			return ctx.Err()
		case in, ok := <-inbound:
			if !ok {
				d.closeWorkers()
				d.wg.Wait()
				return nil
			}
			d.route(ctx, in)
		}
	}
}

// route hands an event to its conversation's worker, spawning one on first
// contact. A full queue drops the event rather than blocking the loop.
func (d *Dispatcher) route(ctx context.Context, in chat.Inbound) {
	if in.ChatID == "" {
		return
	}
	// Adapters filter their own messages, but an echo that slips through
	// must never feed the wizard.
	if ider, ok := d.adapter.(chat.BotUserIDer); ok {
		if id := ider.BotUserID(); id != "" && id == in.UserID {
			return
		}
	}

	d.mu.Lock()
	queue, ok := d.workers[in.ChatID]
	if !ok {
		queue = make(chan chat.Inbound, queueDepth)
		d.workers[in.ChatID] = queue
		d.wg.Add(1)
		go d.worker(ctx, in.ChatID, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- in:
	default:
		log.Printf("dispatch: queue full for chat %s, dropping event", in.ChatID)
	}
}

func (d *Dispatcher) closeWorkers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, queue := range d.workers {
		close(queue)
		delete(d.workers, id)
	}
}

// worker drains one conversation's queue in FIFO order.
func (d *Dispatcher) worker(ctx context.Context, chatID string, queue <-chan chat.Inbound) {
	defer d.wg.Done()
	for in := range queue {
		d.handle(ctx, chatID, in)
	}
}

// handle processes one event. Panics are contained to the turn and storage
// errors are reported to the participant instead of killing the worker.
func (d *Dispatcher) handle(ctx context.Context, chatID string, in chat.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: panic handling event for chat %s: %v\n%s", chatID, r, debug.Stack())
			if _, err := d.adapter.SendText(ctx, chatID, msgStorage); err != nil {
				log.Printf("dispatch: report panic to chat %s: %v", chatID, err)
			}
		}
	}()

	var err error
	switch {
	case in.IsCallback():
		err = d.handleCallback(ctx, chatID, in)
	case strings.HasPrefix(strings.TrimSpace(in.Text), "/"):
		err = d.handleCommand(ctx, chatID, strings.TrimSpace(in.Text))
	default:
		err = d.handleText(ctx, chatID, in.Text)
	}
	if err != nil {
		log.Printf("dispatch: handle event for chat %s: %v", chatID, err)
		if _, sendErr := d.adapter.SendText(ctx, chatID, msgStorage); sendErr != nil {
			log.Printf("dispatch: report error to chat %s: %v", chatID, sendErr)
		}
	}
}

// handleCommand routes slash commands.
func (d *Dispatcher) handleCommand(ctx context.Context, chatID, command string) error {
	if sort, ok := sortCommands[command]; ok {
		return d.wizard.Start(ctx, chatID, sort)
	}
	switch command {
	case "/start", "/help":
		_, err := d.adapter.SendText(ctx, chatID, msgGreeting)
		return err
	case "/history":
		return d.sendHistoryMenu(ctx, chatID)
	}
	_, err := d.adapter.SendText(ctx, chatID, msgFallback)
	return err
}

// handleCallback routes button presses: history selections replay from the
// artifact store, everything else belongs to the wizard.
func (d *Dispatcher) handleCallback(ctx context.Context, chatID string, in chat.Inbound) error {
	if strings.HasSuffix(in.CallbackData, history.MenuData) {
		timestamp := strings.TrimSuffix(in.CallbackData, history.MenuData)
		err := history.Replay(ctx, d.db, d.store, d.adapter, chatID, timestamp)
		if errors.Is(err, history.ErrNotFound) {
			_, err = d.adapter.SendText(ctx, chatID, msgNoHistory)
		}
		return err
	}
	err := d.wizard.HandleCallback(ctx, chatID, in.MessageID, in.CallbackData)
	if errors.Is(err, session.ErrNoSession) {
		_, err = d.adapter.SendText(ctx, chatID, msgFallback)
	}
	return err
}

// handleText forwards free text to the wizard. Text arriving before any
// wizard flow has started gets the fallback reply.
func (d *Dispatcher) handleText(ctx context.Context, chatID, text string) error {
	err := d.wizard.HandleText(ctx, chatID, text)
	if errors.Is(err, session.ErrNoSession) {
		_, err = d.adapter.SendText(ctx, chatID, msgFallback)
	}
	return err
}

// sendHistoryMenu offers the recent searches as a keyboard.
func (d *Dispatcher) sendHistoryMenu(ctx context.Context, chatID string) error {
	entries, err := history.List(d.db, chatID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := d.adapter.SendText(ctx, chatID, msgNoHistory)
		return err
	}
	_, err = d.adapter.SendKeyboard(ctx, chatID, msgHistory, history.Menu(entries))
	return err
}
