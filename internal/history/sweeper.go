package history

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/models"
)

// DefaultSweepSchedule runs the sweep nightly.
const DefaultSweepSchedule = "30 3 * * *"

// Sweeper periodically removes artifact subtrees that no history row
// references anymore. Eviction already deletes artifacts inline; the sweeper
// mops up after crashes between the filesystem write and the row delete.
type Sweeper struct {
	gdb      *gorm.DB
	store    *artifacts.Store
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a Sweeper. schedule is a standard 5-field cron
// expression; empty means DefaultSweepSchedule.
func NewSweeper(gdb *gorm.DB, store *artifacts.Store, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{gdb: gdb, store: store, schedule: schedule}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		removed, err := s.Sweep()
		if err != nil {
			log.Printf("history: sweep: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("history: sweep removed %d orphaned artifact dirs", removed)
		}
	}); err != nil {
		return fmt.Errorf("history: schedule sweep %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule. Safe to call before Start.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep removes artifact query dirs with no matching history row and
// returns how many were removed.
func (s *Sweeper) Sweep() (int, error) {
	chats, err := s.store.ListChats()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, chatID := range chats {
		queries, err := s.store.ListQueries(chatID)
		if err != nil {
			return removed, err
		}
		for _, timestamp := range queries {
			var count int64
			err := s.gdb.Model(&models.HistoryQuery{}).
				Where("chat_id = ? AND datetime_query = ?", chatID, timestamp).
				Count(&count).Error
			if err != nil {
				return removed, fmt.Errorf("history: sweep count %s/%s: %w", chatID, timestamp, err)
			}
			if count > 0 {
				continue
			}
			if err := s.store.RemoveQuery(chatID, timestamp); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
