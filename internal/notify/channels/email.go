package channels

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"classlink/internal/common"
	"classlink/internal/config"
)

// EmailAdapter delivers through the configured EmailService. The recipient
// address rides in the request metadata; a notification without one cannot
// use this channel.
type EmailAdapter struct {
	service common.EmailService
}

func NewEmailAdapter(service common.EmailService) *EmailAdapter {
	return &EmailAdapter{service: service}
}

func (a *EmailAdapter) Name() common.Channel { return common.ChannelEmail }

func (a *EmailAdapter) Available() bool { return a.service != nil }

func (a *EmailAdapter) MaxContentLength() int { return common.MaxEmailContentLength }

func (a *EmailAdapter) Send(_ context.Context, n *common.SmartNotification) (*common.DeliveryResult, error) {
	email, _ := n.Request.Metadata["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("no email address for user %s", n.Request.UserID)
	}
	if err := a.service.SendEmail(email, n.Request.Title, n.Request.Message); err != nil {
		return nil, fmt.Errorf("email send failed: %w", err)
	}
	return &common.DeliveryResult{Channel: common.ChannelEmail, Success: true, Detail: email}, nil
}

// SMTPEmailService sends through a plain SMTP relay per the email config.
type SMTPEmailService struct {
	cfg config.EmailConfig
}

func NewSMTPEmailService(cfg config.EmailConfig) *SMTPEmailService {
	return &SMTPEmailService{cfg: cfg}
}

func (s *SMTPEmailService) SendEmail(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.FromName, s.cfg.FromEmail, to, subject, body))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	return smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, msg)
}

// ConsoleEmailService logs instead of sending; the development default.
type ConsoleEmailService struct{}

func (ConsoleEmailService) SendEmail(to, subject, _ string) error {
	log.Printf("email (console) to=%s subject=%q", to, subject)
	return nil
}
