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

// SMSDispatcher posts messages to an HTTP SMS gateway.
type SMSDispatcher struct {
	cfg    config.SMSProviderConfig
	client *http.Client
}

func NewSMSDispatcher(cfg config.SMSProviderConfig) *SMSDispatcher {
	return &SMSDispatcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (d *SMSDispatcher) Channel() models.Channel {
	return models.ChannelSMS
}

func (d *SMSDispatcher) Confirmable() bool {
	return false
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (d *SMSDispatcher) Send(ctx context.Context, sub *models.Subscriber, alert *models.Alert) error {
	if sub.Phone == "" {
		return &ProviderError{Provider: "sms", Message: "subscriber has no phone number"}
	}

	body := smsRequest{
		To:      sub.Phone,
		From:    d.cfg.SenderID,
		Message: fmt.Sprintf("%s: %s\n%s", alert.Severity, alert.Title, localizedBody(alert, sub.Language)),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return transportError("sms", err)
	}
	defer resp.Body.Close()

	return classifyStatus("sms", resp.StatusCode)
}
