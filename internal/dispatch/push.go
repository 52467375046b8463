package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rwandadisasteralert/alert-engine/internal/config"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

// PushDispatcher sends FCM-style push notifications over HTTP.
type PushDispatcher struct {
	cfg    config.PushProviderConfig
	client *http.Client
}

func NewPushDispatcher(cfg config.PushProviderConfig) *PushDispatcher {
	return &PushDispatcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (d *PushDispatcher) Channel() models.Channel {
	return models.ChannelPush
}

func (d *PushDispatcher) Confirmable() bool {
	return false
}

type pushRequest struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
	Data         map[string]any   `json:"data"`
}

type pushNotification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

func (d *PushDispatcher) Send(ctx context.Context, sub *models.Subscriber, alert *models.Alert) error {
	if sub.PushToken == "" {
		return &ProviderError{Provider: "push", Message: "subscriber has no device token"}
	}

	body := pushRequest{
		To: sub.PushToken,
		Notification: pushNotification{
			Title:    alert.Title,
			Body:     truncate(localizedBody(alert, sub.Language), 120),
			Priority: "high",
		},
		Data: map[string]any{
			"alert_id": alert.ID,
			"severity": alert.Severity,
			"type":     alert.Type,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+d.cfg.ServerKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return transportError("push", err)
	}
	defer resp.Body.Close()

	return classifyStatus("push", resp.StatusCode)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
