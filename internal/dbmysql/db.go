// Package dbmysql persists notification records, delivery history, the
// in-app inbox and push device tokens.
package dbmysql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"classlink/internal/config"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	return db, nil
}

// Migrate creates or updates every table this package owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&NotificationRow{},
		&HistoryRow{},
		&InboxItem{},
		&Device{},
	)
}
