package dbmysql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classlink/internal/common"
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) common.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Save(ctx context.Context, n *common.SmartNotification) error {
	row := &NotificationRow{
		ID:             n.ID,
		UserID:         n.Request.UserID,
		Title:          n.Request.Title,
		Message:        n.Request.Message,
		Type:           string(n.Request.Type),
		Priority:       string(n.Request.Priority),
		Subject:        n.Request.Subject,
		Context:        string(n.Context),
		Status:         string(n.Status),
		FilteredBy:     n.FilteredBy,
		RelevanceScore: n.RelevanceScore,
		Attempts:       n.Attempts,
		ScheduledAt:    n.ScheduledAt,
		DeliveredAt:    n.Analytics.DeliveredAt,
		ActionURL:      n.Request.ActionURL,
		Results:        n.Results,
		Metadata:       n.Request.Metadata,
		CreatedAt:      n.Analytics.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) UpdateStatus(ctx context.Context, id string, status common.Status) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationRow{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update notification status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}

func (r *notificationRepository) ByUserID(ctx context.Context, userID string, limit, offset int) ([]*common.NotificationRecord, error) {
	var rows []*NotificationRow

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}

	records := make([]*common.NotificationRecord, len(rows))
	for i, row := range rows {
		records[i] = &common.NotificationRecord{
			ID:          row.ID,
			UserID:      row.UserID,
			Title:       row.Title,
			Message:     row.Message,
			Subject:     row.Subject,
			ActionURL:   row.ActionURL,
			Type:        common.NotificationType(row.Type),
			Priority:    common.Priority(row.Priority),
			Status:      common.Status(row.Status),
			FilteredBy:  row.FilteredBy,
			ScheduledAt: row.ScheduledAt,
			Results:     row.Results,
			Context:     common.NotificationContext(row.Context),
			CreatedAt:   row.CreatedAt,
		}
	}
	return records, nil
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) common.HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Append(ctx context.Context, userID string, entry common.HistoryEntry) error {
	row := &HistoryRow{
		ID:        entry.ID,
		UserID:    userID,
		Type:      string(entry.Type),
		Subject:   entry.Subject,
		Delivered: entry.Delivered,
		Timestamp: entry.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *historyRepository) ByUserID(ctx context.Context, userID string, limit int) ([]common.HistoryEntry, error) {
	var rows []*HistoryRow
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	entries := make([]common.HistoryEntry, len(rows))
	for i, row := range rows {
		entries[i] = common.HistoryEntry{
			ID:        row.ID,
			Type:      common.NotificationType(row.Type),
			Subject:   row.Subject,
			Timestamp: row.Timestamp,
			Delivered: row.Delivered,
		}
	}
	return entries, nil
}

func (r *historyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	if err := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&HistoryRow{}).Error; err != nil {
		return fmt.Errorf("failed to sweep history: %w", err)
	}
	return nil
}

type inboxRepository struct {
	db *gorm.DB
}

// NewInboxRepository persists in-app feed items for the dashboard.
func NewInboxRepository(db *gorm.DB) *inboxRepository {
	return &inboxRepository{db: db}
}

func (r *inboxRepository) Add(ctx context.Context, userID string, record *common.NotificationRecord) error {
	item := &InboxItem{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     record.Title,
		Message:   record.Message,
		Type:      string(record.Type),
		Priority:  string(record.Priority),
		ActionURL: record.ActionURL,
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to add inbox item: %w", err)
	}
	return nil
}

func (r *inboxRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&InboxItem{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread inbox items: %w", err)
	}
	return count, nil
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) common.DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) CreateOrUpdate(ctx context.Context, userID, deviceToken, platform string) error {
	device := &Device{
		DeviceToken: deviceToken,
		UserID:      userID,
		Platform:    platform,
		IsActive:    true,
		LastActive:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(device).Error; err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (r *deviceRepository) ActiveByUserID(ctx context.Context, userID string) ([]common.Device, error) {
	var rows []*Device
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	devices := make([]common.Device, len(rows))
	for i, row := range rows {
		devices[i] = common.Device{
			Token:    row.DeviceToken,
			UserID:   row.UserID,
			Platform: row.Platform,
		}
	}
	return devices, nil
}

func (r *deviceRepository) UpdateTokenStatus(ctx context.Context, deviceToken string, isActive bool) error {
	if err := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_token = ?", deviceToken).
		Update("is_active", isActive).Error; err != nil {
		return fmt.Errorf("failed to update token status: %w", err)
	}
	return nil
}
