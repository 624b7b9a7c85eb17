// Package history is the bounded cache of completed queries: the three most
// recent per chat, each pointing at its artifact subtree on disk. Recording
// a fourth entry evicts the oldest row together with its artifacts.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/models"
)

// MaxEntries is the retention bound per chat.
const MaxEntries = 3

// ErrNotFound is returned when a requested history entry does not exist.
var ErrNotFound = errors.New("history: entry not found")

var sortLabels = map[string]string{
	"PRICE":                  "lowprice",
	"PRICE_HIGHEST_FIRST":    "highprice",
	"DISTANCE_FROM_LANDMARK": "bestdeal",
}

// SortLabel maps a sort strategy to its display label.
func SortLabel(strategy string) string {
	if label, ok := sortLabels[strategy]; ok {
		return label
	}
	return strategy
}

// Record inserts a completed-query entry and evicts the overflow, removing
// the evicted entry's artifact subtree from disk.
func Record(gdb *gorm.DB, store *artifacts.Store, entry *models.HistoryQuery) error {
	if entry.ChatID == "" {
		return fmt.Errorf("history: record: chat id is required")
	}
	if err := gdb.Create(entry).Error; err != nil {
		return fmt.Errorf("history: record for %s: %w", entry.ChatID, err)
	}
	return evictOverflow(gdb, store, entry.ChatID)
}

// evictOverflow deletes every entry beyond the newest MaxEntries for chatID,
// artifacts first. With single-worker-per-participant access this removes at
// most one entry per Record call.
func evictOverflow(gdb *gorm.DB, store *artifacts.Store, chatID string) error {
	var rows []models.HistoryQuery
	if err := gdb.Where("chat_id = ?", chatID).Order("id DESC").Find(&rows).Error; err != nil {
		return fmt.Errorf("history: list for eviction: %w", err)
	}
	for _, row := range rows[min(len(rows), MaxEntries):] {
		if err := store.RemoveQuery(chatID, row.DatetimeQuery); err != nil {
			return err
		}
		if err := gdb.Delete(&models.HistoryQuery{}, row.ID).Error; err != nil {
			return fmt.Errorf("history: evict entry %d: %w", row.ID, err)
		}
		log.Printf("history: evicted query %s for chat %s", row.DatetimeQuery, chatID)
	}
	return nil
}

// List returns up to MaxEntries entries for chatID, most recent first.
func List(gdb *gorm.DB, chatID string) ([]models.HistoryQuery, error) {
	var rows []models.HistoryQuery
	err := gdb.Where("chat_id = ?", chatID).Order("id DESC").
		Limit(MaxEntries).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history: list for %s: %w", chatID, err)
	}
	return rows, nil
}

// Find locates one entry by its timestamp label.
func Find(gdb *gorm.DB, chatID, timestamp string) (*models.HistoryQuery, error) {
	var row models.HistoryQuery
	err := gdb.Where("chat_id = ? AND datetime_query = ?", chatID, timestamp).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: find %s/%s: %w", chatID, timestamp, err)
	}
	return &row, nil
}

// MenuData is the callback payload suffix for history selections.
const MenuData = ".his"

// Menu builds the selection keyboard for a chat's history entries, one
// button per entry, most recent first.
func Menu(entries []models.HistoryQuery) chat.Keyboard {
	buttons := make([]chat.Button, 0, len(entries))
	for _, e := range entries {
		label := fmt.Sprintf("%s · %s · %s · hotels: %d",
			e.SortOrder, e.DatetimeQuery, e.City, len(strings.Fields(e.HotelsID)))
		buttons = append(buttons, chat.Button{Label: label, Data: e.DatetimeQuery + MenuData})
	}
	return chat.NewKeyboard(1, buttons...)
}

// Replay re-emits one completed query from its artifacts: per hotel, the
// stored detail text and photo list. No provider call is made.
func Replay(ctx context.Context, gdb *gorm.DB, store *artifacts.Store, adapter chat.Adapter, chatID, timestamp string) error {
	entry, err := Find(gdb, chatID, timestamp)
	if err != nil {
		return err
	}
	for _, hotelID := range strings.Fields(entry.HotelsID) {
		detail, ok, err := store.ReadDetail(chatID, timestamp, hotelID)
		if err != nil {
			return err
		}
		if ok {
			if _, err := adapter.SendText(ctx, chatID, detail); err != nil {
				return fmt.Errorf("history: replay detail %s: %w", hotelID, err)
			}
		}
		urls, ok, err := store.ReadPhotos(chatID, timestamp, hotelID)
		if err != nil {
			return err
		}
		if ok && len(urls) > 0 {
			if err := adapter.SendMediaGroup(ctx, chatID, urls); err != nil {
				return fmt.Errorf("history: replay photos %s: %w", hotelID, err)
			}
		}
	}
	return nil
}
