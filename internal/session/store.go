// Package session persists the per-participant "current query" record.
//
// The sessions table is an append-only log: Begin inserts a fresh blank row,
// and every later write targets exactly one column of the latest row for that
// chat (a real partial UPDATE, never read-modify-write), so sparse updates
// can never clobber fields collected on earlier turns. The latest-inserted
// row is the current record; older rows are immutable history of prior
// turn-groups and are never reused.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/fields"
	"github.com/bionicsv26/telegram-bot/internal/models"
)

// ErrNoSession is returned when Set or Get is called for a chat that has no
// record yet. The wizard always calls Begin first, so hitting this is a
// wiring bug, not a user error.
var ErrNoSession = errors.New("session: no record for participant")

// Begin inserts a new blank record for chatID with the chosen sort strategy.
// Page number starts at 1 and the creation timestamp label is stamped
// immediately; it later names the artifact directory for this query.
func Begin(gdb *gorm.DB, chatID, sortOrder string) (uint, error) {
	rec := models.SearchSession{
		ChatID:        chatID,
		SortOrder:     sortOrder,
		PageNumber:    "1",
		DatetimeQuery: time.Now().Format(fields.TimestampLayout),
	}
	if err := gdb.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("session: begin for %s: %w", chatID, err)
	}
	return rec.ID, nil
}

// currentID resolves the id of the latest record for chatID.
func currentID(gdb *gorm.DB, chatID string) (uint, error) {
	var rec models.SearchSession
	err := gdb.Select("id").Where("chat_id = ?", chatID).
		Order("id DESC").Limit(1).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("session: resolve current record for %s: %w", chatID, err)
	}
	return rec.ID, nil
}

// Set writes value into exactly one column of the current record. All other
// columns keep their previously stored values.
func Set(gdb *gorm.DB, chatID string, f fields.Field, value string) error {
	column, err := fields.Column(f)
	if err != nil {
		return err
	}
	id, err := currentID(gdb, chatID)
	if err != nil {
		return err
	}
	res := gdb.Model(&models.SearchSession{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("session: set %s for %s: %w", f, chatID, res.Error)
	}
	return nil
}

// SetDate stores a date-kind field.
func SetDate(gdb *gorm.DB, chatID string, f fields.Field, t time.Time) error {
	return Set(gdb, chatID, f, fields.FormatDate(t))
}

// SetFloat stores a float-kind field.
func SetFloat(gdb *gorm.DB, chatID string, f fields.Field, v float64) error {
	return Set(gdb, chatID, f, strconv.FormatFloat(v, 'f', -1, 64))
}

// Get reads one field from the current record. A blank string means the
// field has not been collected yet.
func Get(gdb *gorm.DB, chatID string, f fields.Field) (string, error) {
	column, err := fields.Column(f)
	if err != nil {
		return "", err
	}
	id, err := currentID(gdb, chatID)
	if err != nil {
		return "", err
	}
	var value string
	err = gdb.Model(&models.SearchSession{}).Select(column).
		Where("id = ?", id).Scan(&value).Error
	if err != nil {
		return "", fmt.Errorf("session: get %s for %s: %w", f, chatID, err)
	}
	return value, nil
}

// GetDate reads a date-kind field. ok is false while the field is blank.
func GetDate(gdb *gorm.DB, chatID string, f fields.Field) (t time.Time, ok bool, err error) {
	v, err := Get(gdb, chatID, f)
	if err != nil {
		return time.Time{}, false, err
	}
	return fields.ParseDate(v)
}

// GetFloat reads a float-kind field. ok is false while the field is blank.
func GetFloat(gdb *gorm.DB, chatID string, f fields.Field) (v float64, ok bool, err error) {
	s, err := Get(gdb, chatID, f)
	if err != nil {
		return 0, false, err
	}
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("session: parse %s value %q: %w", f, s, err)
	}
	return v, true, nil
}

// WireName resolves the provider wire parameter name for f. Exposed here so
// callers assembling requests depend on the store, not on the dictionary's
// internals.
func WireName(f fields.Field) (string, error) {
	return fields.WireName(f)
}
