package dashboard

import (
	"strings"

	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/history"
	"github.com/bionicsv26/telegram-bot/internal/models"
)

// BotStats holds the totals shown on the overview.
type BotStats struct {
	Sessions  int64 `json:"sessions"`
	Histories int64 `json:"histories"`
	Chats     int64 `json:"chats"`
}

// Stats counts session records, retained queries, and distinct chats.
func Stats(db *gorm.DB) (BotStats, error) {
	var s BotStats
	if err := db.Model(&models.SearchSession{}).Count(&s.Sessions).Error; err != nil {
		return s, err
	}
	if err := db.Model(&models.HistoryQuery{}).Count(&s.Histories).Error; err != nil {
		return s, err
	}
	err := db.Model(&models.SearchSession{}).Distinct("chat_id").Count(&s.Chats).Error
	return s, err
}

// ChatRow summarizes one conversation.
type ChatRow struct {
	ChatID    string `json:"chat_id"`
	Sessions  int64  `json:"sessions"`
	Histories int64  `json:"histories"`
}

// ChatSummary lists every conversation with its record counts.
func ChatSummary(db *gorm.DB) ([]ChatRow, error) {
	var chatIDs []string
	if err := db.Model(&models.SearchSession{}).Distinct("chat_id").
		Order("chat_id ASC").Pluck("chat_id", &chatIDs).Error; err != nil {
		return nil, err
	}

	rows := make([]ChatRow, 0, len(chatIDs))
	for _, id := range chatIDs {
		row := ChatRow{ChatID: id}
		if err := db.Model(&models.SearchSession{}).Where("chat_id = ?", id).
			Count(&row.Sessions).Error; err != nil {
			return nil, err
		}
		if err := db.Model(&models.HistoryQuery{}).Where("chat_id = ?", id).
			Count(&row.Histories).Error; err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// HistoryRow is one retained query as the API presents it.
type HistoryRow struct {
	Timestamp string   `json:"timestamp"`
	Sort      string   `json:"sort"`
	City      string   `json:"city"`
	HotelIDs  []string `json:"hotel_ids"`
}

// HistoryRows lists a chat's retained queries, most recent first.
func HistoryRows(db *gorm.DB, chatID string) ([]HistoryRow, error) {
	entries, err := history.List(db, chatID)
	if err != nil {
		return nil, err
	}
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{
			Timestamp: e.DatetimeQuery,
			Sort:      e.SortOrder,
			City:      e.City,
			HotelIDs:  strings.Fields(e.HotelsID),
		})
	}
	return rows, nil
}

// ArtifactRow is one hotel's stored artifacts within a query.
type ArtifactRow struct {
	HotelID string   `json:"hotel_id"`
	Detail  string   `json:"detail,omitempty"`
	Photos  []string `json:"photos,omitempty"`
}

// ArtifactRows reads the stored artifacts for one retained query.
func ArtifactRows(db *gorm.DB, store *artifacts.Store, chatID, timestamp string) ([]ArtifactRow, error) {
	entry, err := history.Find(db, chatID, timestamp)
	if err != nil {
		return nil, err
	}
	rows := make([]ArtifactRow, 0)
	for _, hotelID := range strings.Fields(entry.HotelsID) {
		row := ArtifactRow{HotelID: hotelID}
		if detail, ok, err := store.ReadDetail(chatID, timestamp, hotelID); err != nil {
			return nil, err
		} else if ok {
			row.Detail = detail
		}
		if photos, ok, err := store.ReadPhotos(chatID, timestamp, hotelID); err != nil {
			return nil, err
		} else if ok {
			row.Photos = photos
		}
		rows = append(rows, row)
	}
	return rows, nil
}
