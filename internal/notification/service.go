// Package notification delivers operator email. Delivery backend is chosen
// by the stored email configuration: SendGrid, plain SMTP or Resend.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hoteliq/ratewatch/internal/storage"
)

type Service struct {
	store  storage.Storage
	client *http.Client
}

func NewService(store storage.Storage) *Service {
	return &Service{
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send delivers one email using the configured backend. A missing or
// disabled configuration is not an error; the message is dropped with a
// log line.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	cfg, err := s.store.GetEmailConfig(ctx)
	if err != nil {
		return fmt.Errorf("notification: load email config: %w", err)
	}
	if cfg == nil || !cfg.Enabled {
		log.Printf("notification: email disabled, dropping %q to %s", subject, to)
		return nil
	}

	switch cfg.Provider {
	case "sendgrid":
		return s.sendViaSendGrid(cfg, to, subject, body)
	case "smtp":
		return s.sendViaSMTP(cfg, to, subject, body)
	case "resend":
		return s.sendViaResend(ctx, cfg, to, subject, body)
	default:
		return fmt.Errorf("notification: unknown email provider %q", cfg.Provider)
	}
}

func (s *Service) sendViaSendGrid(cfg *storage.EmailConfig, to, subject, body string) error {
	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	msg := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, body)
	client := sendgrid.NewSendClient(cfg.APIKey)
	resp, err := client.Send(msg)
	if err != nil {
		return fmt.Errorf("notification: sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *Service) sendViaSMTP(cfg *storage.EmailConfig, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		cfg.FromName, cfg.FromAddress, to, subject, body)
	if err := smtp.SendMail(addr, auth, cfg.FromAddress, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("notification: smtp: %w", err)
	}
	return nil
}

func (s *Service) sendViaResend(ctx context.Context, cfg *storage.EmailConfig, to, subject, body string) error {
	payload, err := json.Marshal(map[string]any{
		"from":    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
		"to":      []string{to},
		"subject": subject,
		"text":    body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification: resend: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification: resend returned %d", resp.StatusCode)
	}
	return nil
}

// ScanFinished emails the owning user a completion summary. Implements the
// orchestrator's Notifier; failures are logged, never propagated into the
// scan path.
func (s *Service) ScanFinished(session storage.ScanSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil || user == nil || user.Email == "" {
		return
	}

	subject := fmt.Sprintf("Rate scan %s", session.Status)
	body := fmt.Sprintf(
		"Scan session %s (%s) finished with status %s.\nHotels scanned: %d\nFailed lookups: %d\n",
		session.ID, session.SessionType, session.Status, session.HotelsCount, session.FailedCount)
	if session.Error != "" {
		body += "Error: " + session.Error + "\n"
	}

	if err := s.Send(ctx, user.Email, subject, body); err != nil {
		log.Printf("notification: scan summary for session %s: %v", session.ID, err)
	}
}
