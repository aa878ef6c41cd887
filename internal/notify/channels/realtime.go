package channels

import (
	"context"
	"fmt"

	"classlink/internal/common"
)

// NotificationBus is the outbound slice of the realtime router this adapter
// needs.
type NotificationBus interface {
	SendNotification(targets []string, record *common.NotificationRecord) error
	Connected() bool
}

// RealtimeAdapter pushes the notification over the live transport to the
// user's active session. Only available while the transport is connected.
type RealtimeAdapter struct {
	bus NotificationBus
}

func NewRealtimeAdapter(bus NotificationBus) *RealtimeAdapter {
	return &RealtimeAdapter{bus: bus}
}

func (a *RealtimeAdapter) Name() common.Channel { return common.ChannelRealtime }

func (a *RealtimeAdapter) Available() bool { return a.bus != nil && a.bus.Connected() }

func (a *RealtimeAdapter) MaxContentLength() int { return common.MaxInAppContentLength }

func (a *RealtimeAdapter) Send(_ context.Context, n *common.SmartNotification) (*common.DeliveryResult, error) {
	if err := a.bus.SendNotification([]string{n.Request.UserID}, n.Record()); err != nil {
		return nil, fmt.Errorf("realtime send failed: %w", err)
	}
	return &common.DeliveryResult{Channel: common.ChannelRealtime, Success: true}, nil
}
