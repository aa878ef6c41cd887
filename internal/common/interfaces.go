package common

import (
	"context"
	"time"
)

// ChannelAdapter delivers a notification over one channel. Send either
// returns a result or an error; the dispatcher isolates failures per channel.
type ChannelAdapter interface {
	Name() Channel
	Available() bool
	MaxContentLength() int
	Send(ctx context.Context, n *SmartNotification) (*DeliveryResult, error)
}

// EngagementPredictor estimates how likely a user is to act on a
// notification delivered at the given time, in [0, 1]. Real models plug in
// behind this without the timing optimizer changing.
type EngagementPredictor interface {
	Predict(now time.Time) float64
}

// NotificationRepository persists pipeline records for audit and the
// history/stats endpoints.
type NotificationRepository interface {
	Save(ctx context.Context, n *SmartNotification) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	ByUserID(ctx context.Context, userID string, limit, offset int) ([]*NotificationRecord, error)
}

// HistoryRepository is the durable side of the history store.
type HistoryRepository interface {
	Append(ctx context.Context, userID string, entry HistoryEntry) error
	ByUserID(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

// PreferenceRepository is the durable side of the preference store. Get
// returns (nil, nil) when the user has never saved preferences.
type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (*UserPreferences, error)
	Upsert(ctx context.Context, userID string, prefs UserPreferences) error
}

// DeviceRepository tracks push tokens per user.
type DeviceRepository interface {
	CreateOrUpdate(ctx context.Context, userID, deviceToken, platform string) error
	ActiveByUserID(ctx context.Context, userID string) ([]Device, error)
	UpdateTokenStatus(ctx context.Context, deviceToken string, isActive bool) error
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SMSService interface {
	SendSMS(to, body string) error
}

// ContextResolver looks up the user's current academic context. The host
// application supplies a real implementation; the zero resolver returns an
// empty context.
type ContextResolver interface {
	ContextFor(ctx context.Context, userID string) (UserContext, error)
}

type ContextResolverFunc func(ctx context.Context, userID string) (UserContext, error)

func (f ContextResolverFunc) ContextFor(ctx context.Context, userID string) (UserContext, error) {
	return f(ctx, userID)
}
