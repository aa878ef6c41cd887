package channels

import (
	"context"
	"fmt"

	"classlink/internal/common"
)

// InboxRepository is the durable in-app feed the dashboard reads.
type InboxRepository interface {
	Add(ctx context.Context, userID string, record *common.NotificationRecord) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// InAppAdapter lands the notification in the user's inbox. It is the
// always-available baseline channel.
type InAppAdapter struct {
	inbox InboxRepository
}

func NewInAppAdapter(inbox InboxRepository) *InAppAdapter {
	return &InAppAdapter{inbox: inbox}
}

func (a *InAppAdapter) Name() common.Channel { return common.ChannelInApp }

func (a *InAppAdapter) Available() bool { return a.inbox != nil }

func (a *InAppAdapter) MaxContentLength() int { return common.MaxInAppContentLength }

func (a *InAppAdapter) Send(ctx context.Context, n *common.SmartNotification) (*common.DeliveryResult, error) {
	if err := a.inbox.Add(ctx, n.Request.UserID, n.Record()); err != nil {
		return nil, fmt.Errorf("inbox write failed: %w", err)
	}
	return &common.DeliveryResult{Channel: common.ChannelInApp, Success: true}, nil
}
