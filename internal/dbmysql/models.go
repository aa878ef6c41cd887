package dbmysql

import (
	"time"

	"classlink/internal/common"
)

// NotificationRow is the audit record of one request's trip through the
// pipeline.
type NotificationRow struct {
	ID             string  `gorm:"primaryKey;size:36"`
	UserID         string  `gorm:"not null;index;size:36"`
	Title          string  `gorm:"not null;size:255"`
	Message        string  `gorm:"not null;type:text"`
	Type           string  `gorm:"not null;size:50;index"`
	Priority       string  `gorm:"not null;size:10"`
	Subject        string  `gorm:"size:100"`
	Context        string  `gorm:"size:20"`
	Status         string  `gorm:"default:'pending';size:20;index"`
	FilteredBy     string  `gorm:"size:30"`
	RelevanceScore float64 `gorm:"default:0"`
	Attempts       int     `gorm:"default:0"`
	ScheduledAt    *time.Time
	DeliveredAt    *time.Time
	ActionURL      string                      `gorm:"size:512"`
	Results        common.DeliveryResults      `gorm:"type:json"`
	Metadata       common.NotificationMetadata `gorm:"type:json"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime"`
}

// HistoryRow is the durable mirror of one history entry.
type HistoryRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"not null;index;size:36"`
	Type      string    `gorm:"not null;size:50"`
	Subject   string    `gorm:"size:100"`
	Delivered bool      `gorm:"default:false"`
	Timestamp time.Time `gorm:"not null;index"`
}

// InboxItem is one entry in the user's in-app feed.
type InboxItem struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"not null;index;size:36"`
	Title     string `gorm:"not null;size:255"`
	Message   string `gorm:"not null;type:text"`
	Type      string `gorm:"not null;size:50"`
	Priority  string `gorm:"not null;size:10"`
	ActionURL string `gorm:"size:512"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Device is a registered push token.
type Device struct {
	DeviceToken  string    `gorm:"primaryKey;size:255"`
	UserID       string    `gorm:"not null;index;size:36"`
	Platform     string    `gorm:"not null;size:10"`
	IsActive     bool      `gorm:"default:true"`
	RegisteredAt time.Time `gorm:"autoCreateTime"`
	LastActive   time.Time `gorm:"autoUpdateTime"`
}
