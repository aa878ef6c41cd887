// Package channels holds the delivery adapters the dispatcher fans out to.
// Every adapter declares its availability and content limit; failures stay
// inside the returned error and never touch sibling channels.
package channels

import (
	"context"
	"fmt"
	"log"

	"firebase.google.com/go/v4/messaging"

	"classlink/internal/common"
)

// PushAdapter delivers over Firebase Cloud Messaging to every active device
// the user registered. Invalid tokens are pruned as FCM reports them.
type PushAdapter struct {
	client  *messaging.Client
	devices common.DeviceRepository
}

func NewPushAdapter(client *messaging.Client, devices common.DeviceRepository) *PushAdapter {
	return &PushAdapter{client: client, devices: devices}
}

func (a *PushAdapter) Name() common.Channel { return common.ChannelPush }

func (a *PushAdapter) Available() bool { return a.client != nil && a.devices != nil }

func (a *PushAdapter) MaxContentLength() int { return common.MaxPushContentLength }

func (a *PushAdapter) Send(ctx context.Context, n *common.SmartNotification) (*common.DeliveryResult, error) {
	devices, err := a.devices.ActiveByUserID(ctx, n.Request.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no active devices for user %s", n.Request.UserID)
	}

	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}

	msg := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: n.Request.Title,
			Body:  n.Request.Message,
		},
		Data: map[string]string{
			"notification_id": n.ID,
			"type":            string(n.Request.Type),
			"priority":        string(n.Request.Priority),
			"subject":         n.Request.Subject,
		},
		Tokens: tokens,
	}
	if n.Request.ActionURL != "" {
		msg.Data["action_url"] = n.Request.ActionURL
	}

	resp, err := a.client.SendMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("fcm send failed: %w", err)
	}

	a.pruneFailedTokens(ctx, resp, devices)

	if resp.SuccessCount == 0 {
		return nil, fmt.Errorf("fcm rejected all %d tokens", len(tokens))
	}
	return &common.DeliveryResult{
		Channel: common.ChannelPush,
		Success: true,
		Detail:  fmt.Sprintf("%d/%d devices", resp.SuccessCount, len(tokens)),
	}, nil
}

func (a *PushAdapter) pruneFailedTokens(ctx context.Context, resp *messaging.BatchResponse, devices []common.Device) {
	for i, result := range resp.Responses {
		if result.Success || i >= len(devices) {
			continue
		}
		if messaging.IsRegistrationTokenNotRegistered(result.Error) || messaging.IsInvalidArgument(result.Error) {
			if err := a.devices.UpdateTokenStatus(ctx, devices[i].Token, false); err != nil {
				log.Printf("failed to deactivate token: %v", err)
			}
		}
	}
}
