package dispatch

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/rwandadisasteralert/alert-engine/internal/config"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

// EmailDispatcher delivers alerts over SMTP.
type EmailDispatcher struct {
	cfg    config.EmailProviderConfig
	dialer *gomail.Dialer
}

func NewEmailDispatcher(cfg config.EmailProviderConfig) *EmailDispatcher {
	return &EmailDispatcher{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (d *EmailDispatcher) Channel() models.Channel {
	return models.ChannelEmail
}

func (d *EmailDispatcher) Confirmable() bool {
	return false
}

func (d *EmailDispatcher) Send(ctx context.Context, sub *models.Subscriber, alert *models.Alert) error {
	if sub.Email == "" {
		return &ProviderError{Provider: "email", Message: "subscriber has no email address"}
	}
	if _, err := mail.ParseAddress(sub.Email); err != nil {
		return &ProviderError{Provider: "email", Message: fmt.Sprintf("invalid email address %q", sub.Email)}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", sub.Email)
	m.SetHeader("Subject", fmt.Sprintf("Emergency Alert: %s", alert.Title))
	m.SetBody("text/plain", emailBody(alert, sub.Language))

	// gomail has no context support; bound the SMTP exchange ourselves.
	errc := make(chan error, 1)
	go func() {
		errc <- d.dialer.DialAndSend(m)
	}()

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		if err != nil {
			return transportError("email", err)
		}
		return nil
	case <-timer.C:
		return &ProviderError{Provider: "email", Message: "smtp send timed out", Retryable: true}
	case <-ctx.Done():
		return transportError("email", ctx.Err())
	}
}

func emailBody(alert *models.Alert, lang string) string {
	return fmt.Sprintf("EMERGENCY ALERT\n================\n\nSeverity: %s\nType: %s\n\n%s\n\n---\nAlert ID: %s\nDo not reply to this email.",
		alert.Severity, alert.Type, localizedBody(alert, lang), alert.ID)
}
