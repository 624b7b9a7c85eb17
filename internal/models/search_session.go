package models

import "time"

// SearchSession is one wizard turn-group: a row is created blank when a
// participant starts a new search and is filled in column by column as the
// wizard advances. The table is append-only; the latest row (highest ID) for
// a chat is the current record, older rows are retained as prior-turn history.
//
// All collectible columns are stored as text with "" meaning "not collected
// yet", so a fresh record never echoes a stale value from an earlier
// turn-group. Typed access lives in internal/fields.
type SearchSession struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ChatID        string `gorm:"size:64;not null;index"`
	SortOrder     string `gorm:"size:32"`
	Query         string `gorm:"size:128"`
	CityID        string `gorm:"size:32"`
	Locale        string `gorm:"size:8"`
	Currency      string `gorm:"size:8"`
	PageNumber    string `gorm:"size:8"`
	NumberHotels  string `gorm:"size:8"`
	NumberPersons string `gorm:"size:8"`
	CheckIn       string `gorm:"size:16"`
	CheckOut      string `gorm:"size:16"`
	HotelID       string `gorm:"size:32"`
	HotelPics     string `gorm:"size:8"`
	PriceStart    string `gorm:"size:16"`
	PriceStop     string `gorm:"size:16"`
	Distance      string `gorm:"size:16"`
	DatetimeQuery string `gorm:"size:32"`
	RootUserQuery string `gorm:"size:256"`
	CreatedAt     time.Time
}
