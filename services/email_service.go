package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"rentscore/config"

	"gopkg.in/gomail.v2"
)

// EmailService delivers event notifications by e-mail
type EmailService struct {
	dialer *gomail.Dialer
	from   string
	send   func(m ...*gomail.Message) error
}

// NewEmailService creates an e-mail notifier from the SMTP settings
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer: dialer,
		from:   cfg.SMTP.From,
		send:   dialer.DialAndSend,
	}
}

// SendEmail sends one HTML message
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// Publish implements EventPublisher. Events without a recipient are ignored.
func (s *EmailService) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	switch eventType {
	case EventBadgeEarned:
		var event BadgeEarnedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		if event.Email == "" {
			return nil
		}
		return s.SendBadgeNotification(event)
	case EventReportGenerated:
		var event ReportGeneratedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		if event.Email == "" {
			return nil
		}
		return s.SendReportNotification(event)
	}
	return nil
}

// SendBadgeNotification tells the tenant about a new badge
func (s *EmailService) SendBadgeNotification(event BadgeEarnedEvent) error {
	subject := fmt.Sprintf("You earned the %s badge", event.Title)
	body := fmt.Sprintf(`
		<h2>Congratulations, %s!</h2>
		<p>You have unlocked the <strong>%s</strong> badge.</p>
		<p>Earned for the rent period due %s.</p>
		<p>Keep paying on time to grow your Rent Score.</p>
	`, html.EscapeString(event.Name), html.EscapeString(event.Title), event.EarnedAt.Format("02/01/2006"))

	return s.SendEmail(event.Email, subject, body)
}

// SendReportNotification tells the tenant a report is ready
func (s *EmailService) SendReportNotification(event ReportGeneratedEvent) error {
	subject := "Your rent report is ready"
	body := fmt.Sprintf(`
		<h2>Your %s report is ready</h2>
		<p>Report: %s</p>
		<p>Rent Score: %d / %d</p>
		<p>Generated: %s</p>
	`, html.EscapeString(string(event.ReportType)), html.EscapeString(event.ReportID), event.RentScore, MaxRentScore, event.GeneratedAt.Format("02/01/2006 15:04:05"))

	return s.SendEmail(event.Email, subject, body)
}
