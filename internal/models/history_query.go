package models

import "time"

// HistoryQuery records one fully completed search. At most three rows are
// retained per chat; internal/history evicts the oldest row together with
// its artifact subtree when a fourth is recorded.
type HistoryQuery struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ChatID        string `gorm:"size:64;not null;index"`
	SortOrder     string `gorm:"size:32"` // display label: lowprice, highprice, bestdeal
	DatetimeQuery string `gorm:"size:32"` // timestamp label, doubles as the artifact dir name
	City          string `gorm:"size:128"`
	HotelsID      string `gorm:"size:512"` // space-joined hotel IDs
	RootUserQuery string `gorm:"size:256"` // artifact root for this chat
	CreatedAt     time.Time
}
