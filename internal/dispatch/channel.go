package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

// Dispatcher sends one alert to one recipient through a single provider.
// Implementations must be safe for concurrent use across recipients and must
// never block past their configured timeout.
type Dispatcher interface {
	Channel() models.Channel
	// Send returns nil when the provider accepted the message, or a
	// *ProviderError describing the failure.
	Send(ctx context.Context, sub *models.Subscriber, alert *models.Alert) error
	// Confirmable reports whether a successful Send is synchronously known to
	// have reached the recipient (e.g. a web-feed publish).
	Confirmable() bool
}

// ProviderError is a channel send failure. Retryable failures (timeouts,
// rate limits, provider 5xx) are sensible resend candidates; permanent ones
// (invalid endpoint, hard bounce) are flagged so operators don't blindly
// retry, though an explicit resend will still re-attempt them.
type ProviderError struct {
	Provider  string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, kind, e.Message)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// classifyStatus maps a provider HTTP status to a send outcome. 2xx is
// accepted; 429 and 5xx are transient backpressure; everything else is a
// permanent rejection.
func classifyStatus(provider string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return &ProviderError{
		Provider:  provider,
		Message:   fmt.Sprintf("provider returned HTTP %d", status),
		Retryable: status == 429 || status >= 500,
	}
}

// transportError wraps a network-level failure (dial, timeout) as retryable.
func transportError(provider string, err error) error {
	return &ProviderError{
		Provider:  provider,
		Message:   err.Error(),
		Retryable: true,
	}
}

// localizedBody picks the subscriber's language variant when the operator
// provided one; the engine treats the content itself as opaque.
func localizedBody(alert *models.Alert, lang string) string {
	if lang != "" {
		if msg, ok := alert.Localized[lang]; ok && msg != "" {
			return msg
		}
	}
	return alert.Message
}
