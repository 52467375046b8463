package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rwandadisasteralert/alert-engine/internal/dispatch"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeCoordinator records lifecycle calls without running any fan-out.
type fakeCoordinator struct {
	mu         sync.Mutex
	dispatched []string
	resent     []string
	cancelled  []string
	resendN    int
}

func (f *fakeCoordinator) DispatchAlert(ctx context.Context, alertID string) (dispatch.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, alertID)
	return dispatch.Summary{models.ChannelSMS: &dispatch.Counts{Sent: 1}}, nil
}

func (f *fakeCoordinator) ResendFailed(ctx context.Context, alertID string) (int, dispatch.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resent = append(f.resent, alertID)
	return f.resendN, dispatch.Summary{}, nil
}

func (f *fakeCoordinator) CancelAlert(alertID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, alertID)
}

func (f *fakeCoordinator) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func setupLifecycle(t *testing.T) (*Lifecycle, *repository.SQLiteDB, *fakeCoordinator) {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	coordinator := &fakeCoordinator{}
	return New(db, coordinator, time.Minute), db, coordinator
}

func seedDraft(t *testing.T, db *repository.SQLiteDB, mutate func(*models.Alert)) string {
	t.Helper()
	alert := &models.Alert{
		ID:       "al_1",
		Type:     models.DisasterTypeFlood,
		Severity: models.SeveritySevere,
		Status:   models.AlertStatusDraft,
		Title:    "Flood warning",
		Message:  "Move to higher ground",
		Target: models.Target{
			Center:   &models.LatLng{Latitude: -1.9441, Longitude: 30.0619},
			RadiusKm: 5,
		},
		Channels:  []models.Channel{models.ChannelSMS},
		CreatedAt: time.Now(),
	}
	if mutate != nil {
		mutate(alert)
	}
	if err := db.CreateAlert(context.Background(), alert); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	return alert.ID
}

func TestLifecycle_Activate(t *testing.T) {
	lc, db, coordinator := setupLifecycle(t)
	id := seedDraft(t, db, nil)

	summary, err := lc.Activate(context.Background(), id)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if sent, _ := summary.Totals(); sent != 1 {
		t.Errorf("expected dispatch summary passed through, got %+v", summary)
	}

	alert, _ := db.GetAlert(context.Background(), id)
	if alert.Status != models.AlertStatusActive {
		t.Errorf("expected active, got %s", alert.Status)
	}
	if alert.IssuedAt == nil {
		t.Error("activation must stamp issued_at")
	}
	if len(coordinator.dispatched) != 1 || coordinator.dispatched[0] != id {
		t.Errorf("expected one dispatch for %s, got %v", id, coordinator.dispatched)
	}
}

func TestLifecycle_ActivateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Alert)
	}{
		{"no_channels", func(a *models.Alert) { a.Channels = nil }},
		{"unknown_channel", func(a *models.Alert) { a.Channels = []models.Channel{"fax"} }},
		{"empty_target", func(a *models.Alert) { a.Target = models.Target{} }},
		{"already_expired", func(a *models.Alert) {
			past := time.Now().Add(-time.Hour)
			a.ExpiresAt = &past
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, db, coordinator := setupLifecycle(t)
			id := seedDraft(t, db, tt.mutate)

			_, err := lc.Activate(context.Background(), id)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}

			// The alert stays in draft and nothing was dispatched.
			alert, _ := db.GetAlert(context.Background(), id)
			if alert.Status != models.AlertStatusDraft {
				t.Errorf("failed validation must leave the alert in draft, got %s", alert.Status)
			}
			if len(coordinator.dispatched) != 0 {
				t.Error("failed validation must not dispatch")
			}
		})
	}
}

func TestLifecycle_ActivateOnlyFromDraft(t *testing.T) {
	lc, db, _ := setupLifecycle(t)
	id := seedDraft(t, db, nil)

	if _, err := lc.Activate(context.Background(), id); err != nil {
		t.Fatalf("first Activate failed: %v", err)
	}
	_, err := lc.Activate(context.Background(), id)
	if err == nil || !IsValidation(err) {
		t.Fatalf("second activation must fail validation, got %v", err)
	}
}

func TestLifecycle_ActivateMissingAlert(t *testing.T) {
	lc, _, _ := setupLifecycle(t)
	_, err := lc.Activate(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for a missing alert")
	}
	if IsValidation(err) {
		t.Error("a missing alert is not a validation failure")
	}
}

func TestLifecycle_Cancel(t *testing.T) {
	lc, db, coordinator := setupLifecycle(t)
	id := seedDraft(t, db, nil)
	if _, err := lc.Activate(context.Background(), id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if err := lc.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	alert, _ := db.GetAlert(context.Background(), id)
	if alert.Status != models.AlertStatusCancelled {
		t.Errorf("expected cancelled, got %s", alert.Status)
	}
	if ids := coordinator.cancelledIDs(); len(ids) != 1 || ids[0] != id {
		t.Errorf("coordinator must be told about the cancel, got %v", ids)
	}

	// Cancelling again is a no-op, not an error.
	if err := lc.Cancel(context.Background(), id); err != nil {
		t.Errorf("repeat cancel must be a no-op, got %v", err)
	}
	if ids := coordinator.cancelledIDs(); len(ids) != 1 {
		t.Errorf("repeat cancel must not re-notify the coordinator, got %v", ids)
	}
}

func TestLifecycle_CancelDraftRejected(t *testing.T) {
	lc, db, _ := setupLifecycle(t)
	id := seedDraft(t, db, nil)

	err := lc.Cancel(context.Background(), id)
	if err == nil || !IsValidation(err) {
		t.Fatalf("cancelling a draft must fail validation, got %v", err)
	}
}

func TestLifecycle_ResendFailed(t *testing.T) {
	lc, db, coordinator := setupLifecycle(t)
	coordinator.resendN = 4
	id := seedDraft(t, db, nil)
	if _, err := lc.Activate(context.Background(), id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	queued, _, err := lc.ResendFailed(context.Background(), id)
	if err != nil {
		t.Fatalf("ResendFailed failed: %v", err)
	}
	if queued != 4 {
		t.Errorf("expected 4 queued, got %d", queued)
	}
}

func TestLifecycle_ResendRequiresActive(t *testing.T) {
	lc, db, coordinator := setupLifecycle(t)
	id := seedDraft(t, db, nil)

	_, _, err := lc.ResendFailed(context.Background(), id)
	if err == nil || !IsValidation(err) {
		t.Fatalf("resend on a draft must fail validation, got %v", err)
	}
	if len(coordinator.resent) != 0 {
		t.Error("coordinator must not be invoked for a non-active alert")
	}
}

func TestLifecycle_ExpirySweep(t *testing.T) {
	lc, db, coordinator := setupLifecycle(t)
	expires := time.Now().Add(time.Hour)
	id := seedDraft(t, db, func(a *models.Alert) { a.ExpiresAt = &expires })
	if _, err := lc.Activate(context.Background(), id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	// Jump the clock past the expiry, then run one sweep directly.
	lc.now = func() time.Time { return expires.Add(time.Minute) }
	lc.sweepExpired(context.Background())

	alert, _ := db.GetAlert(context.Background(), id)
	if alert.Status != models.AlertStatusExpired {
		t.Errorf("expected expired, got %s", alert.Status)
	}
	if ids := coordinator.cancelledIDs(); len(ids) != 1 || ids[0] != id {
		t.Errorf("expiry must freeze dispatch like a cancel, got %v", ids)
	}
}

func TestLifecycle_SweeperShutdown(t *testing.T) {
	lc, _, _ := setupLifecycle(t)
	lc.sweep = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	lc.StartExpirySweeper(ctx)

	time.Sleep(25 * time.Millisecond)
	cancel()
	lc.Stop()
}
