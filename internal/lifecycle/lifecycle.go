package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rwandadisasteralert/alert-engine/internal/dispatch"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
)

// ValidationError reports an activation or transition precondition failure.
// It is surfaced directly to the caller and never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a precondition failure rather than an
// internal fault.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Coordinator is the slice of the dispatch coordinator the lifecycle drives.
type Coordinator interface {
	DispatchAlert(ctx context.Context, alertID string) (dispatch.Summary, error)
	ResendFailed(ctx context.Context, alertID string) (int, dispatch.Summary, error)
	CancelAlert(alertID string)
}

// Lifecycle owns alert state transitions (draft -> active -> expired or
// cancelled) and is the single entry point external callers use to activate,
// cancel, or resend an alert.
type Lifecycle struct {
	alerts      repository.AlertRepository
	coordinator Coordinator
	now         func() time.Time

	sweep time.Duration
	wg    sync.WaitGroup
}

func New(alerts repository.AlertRepository, coordinator Coordinator, sweepInterval time.Duration) *Lifecycle {
	return &Lifecycle{
		alerts:      alerts,
		coordinator: coordinator,
		now:         time.Now,
		sweep:       sweepInterval,
	}
}

// Activate validates the alert's targeting invariants, flips draft -> active
// and runs the full fan-out. Validation failures leave the alert in draft
// with no delivery records written.
func (l *Lifecycle) Activate(ctx context.Context, alertID string) (dispatch.Summary, error) {
	alert, err := l.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("error loading alert: %w", err)
	}

	if err := validateForActivation(alert, l.now()); err != nil {
		return nil, err
	}

	issuedAt := l.now()
	ok, err := l.alerts.UpdateAlertStatus(ctx, alertID, models.AlertStatusDraft, models.AlertStatusActive, &issuedAt)
	if err != nil {
		return nil, fmt.Errorf("error activating alert: %w", err)
	}
	if !ok {
		// Lost a race with another activation or a cancel.
		return nil, &ValidationError{Reason: "only draft alerts can be activated"}
	}

	slog.Info("alert activated", "alert_id", alertID, "severity", alert.Severity)

	summary, err := l.coordinator.DispatchAlert(ctx, alertID)
	if err != nil {
		return summary, fmt.Errorf("error dispatching alert: %w", err)
	}
	return summary, nil
}

func validateForActivation(alert *models.Alert, now time.Time) error {
	if alert.Status != models.AlertStatusDraft {
		return &ValidationError{Reason: "only draft alerts can be activated"}
	}
	if len(alert.Channels) == 0 {
		return &ValidationError{Reason: "no delivery channels selected"}
	}
	for _, ch := range alert.Channels {
		if !ch.Valid() {
			return &ValidationError{Reason: fmt.Sprintf("unknown delivery channel %q", ch)}
		}
	}
	if alert.Target.Empty() {
		return &ValidationError{Reason: "no target location/polygon set"}
	}
	if alert.Expired(now) {
		return &ValidationError{Reason: "alert has already expired"}
	}
	return nil
}

// Cancel flips active -> cancelled and freezes new dispatch work. Cancelling
// an already-cancelled alert is a no-op. In-flight provider calls finish and
// record their outcome normally.
func (l *Lifecycle) Cancel(ctx context.Context, alertID string) error {
	alert, err := l.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("error loading alert: %w", err)
	}
	if alert.Status == models.AlertStatusCancelled {
		return nil
	}

	ok, err := l.alerts.UpdateAlertStatus(ctx, alertID, models.AlertStatusActive, models.AlertStatusCancelled, nil)
	if err != nil {
		return fmt.Errorf("error cancelling alert: %w", err)
	}
	if !ok {
		return &ValidationError{Reason: "only active alerts can be cancelled"}
	}

	l.coordinator.CancelAlert(alertID)
	slog.Info("alert cancelled", "alert_id", alertID)
	return nil
}

// ResendFailed re-drives only the failed deliveries of an active alert and
// returns the number queued.
func (l *Lifecycle) ResendFailed(ctx context.Context, alertID string) (int, dispatch.Summary, error) {
	alert, err := l.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return 0, nil, fmt.Errorf("error loading alert: %w", err)
	}
	if alert.Status != models.AlertStatusActive {
		return 0, nil, &ValidationError{Reason: "can only resend notifications for active alerts"}
	}
	return l.coordinator.ResendFailed(ctx, alertID)
}

// StartExpirySweeper launches the background tick that flips active alerts
// past their expiry to expired. Expired alerts behave like cancelled ones for
// dispatch purposes.
func (l *Lifecycle) StartExpirySweeper(ctx context.Context) {
	l.wg.Add(1)
	go l.runSweeper(ctx)
}

func (l *Lifecycle) runSweeper(ctx context.Context) {
	defer l.wg.Done()
	slog.Info("starting expiry sweeper", "interval", l.sweep)

	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("expiry sweeper shutting down")
			return
		case <-ticker.C:
			l.sweepExpired(ctx)
		}
	}
}

func (l *Lifecycle) sweepExpired(ctx context.Context) {
	ids, err := l.alerts.ExpireDue(ctx, l.now())
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		l.coordinator.CancelAlert(id)
		slog.Info("alert expired", "alert_id", id)
	}
}

// Stop waits for the sweeper goroutine to exit.
func (l *Lifecycle) Stop() {
	l.wg.Wait()
}
