// Package db opens GORM connections for the bot's session and history tables.
// SQLite is the default backing store; MySQL is available for deployments
// that already run one.
package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bionicsv26/telegram-bot/internal/models"
)

// DSN builds a MySQL DSN from connection settings.
func DSN(user, host string, port int, database string) string {
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", user, host, port, database)
}

// Open opens a GORM connection for the given driver. driver is "sqlite" or
// "mysql"; path is the database file for sqlite (":memory:" works) and the
// database name for mysql.
func Open(driver, path, user, host string, port int) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	switch driver {
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
		}
		return gdb, nil
	case "mysql":
		dsn := DSN(user, host, port, path)
		gdb, err := gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, path, err)
		}
		return gdb, nil
	default:
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}
}

// Migrate creates or updates the session and history tables. Safe to run
// repeatedly.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&models.SearchSession{}, &models.HistoryQuery{}); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
