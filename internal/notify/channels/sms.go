package channels

import (
	"context"
	"fmt"
	"log"

	"classlink/internal/common"
)

// SMSAdapter delivers through the configured SMSService. The phone number
// rides in the request metadata.
type SMSAdapter struct {
	service common.SMSService
}

func NewSMSAdapter(service common.SMSService) *SMSAdapter {
	return &SMSAdapter{service: service}
}

func (a *SMSAdapter) Name() common.Channel { return common.ChannelSMS }

func (a *SMSAdapter) Available() bool { return a.service != nil }

func (a *SMSAdapter) MaxContentLength() int { return common.MaxSMSContentLength }

func (a *SMSAdapter) Send(_ context.Context, n *common.SmartNotification) (*common.DeliveryResult, error) {
	phone, _ := n.Request.Metadata["phone"].(string)
	if phone == "" {
		return nil, fmt.Errorf("no phone number for user %s", n.Request.UserID)
	}
	if err := a.service.SendSMS(phone, n.Request.Message); err != nil {
		return nil, fmt.Errorf("sms send failed: %w", err)
	}
	return &common.DeliveryResult{Channel: common.ChannelSMS, Success: true, Detail: phone}, nil
}

// ConsoleSMSService logs instead of sending; the development default.
type ConsoleSMSService struct {
	Sender string
}

func (s ConsoleSMSService) SendSMS(to, body string) error {
	log.Printf("sms (console) from=%s to=%s len=%d", s.Sender, to, len(body))
	return nil
}
