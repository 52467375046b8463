package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("not found")

// DeliveryFilter narrows ListByAlert results for the monitoring dashboards.
type DeliveryFilter struct {
	Channel *models.Channel
	Status  *models.DeliveryStatus
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

type AlertRepository interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	// UpdateAlertStatus transitions from -> to atomically and reports whether
	// the row was in the expected state. issuedAt is set when non-nil.
	UpdateAlertStatus(ctx context.Context, id string, from, to models.AlertStatus, issuedAt *time.Time) (bool, error)
	// ExpireDue flips every active alert whose expiry has passed and returns
	// the IDs that were flipped.
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
}

type SubscriberRepository interface {
	UpsertSubscriber(ctx context.Context, s *models.Subscriber) error
	GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
}

// DeliveryRepository is the authoritative ledger of delivery records. All
// status transitions are single-row atomic updates guarded so that status
// never moves backward.
type DeliveryRepository interface {
	// UpsertPending creates the record for the triple, or resets it to
	// pending when it is currently failed. ready is false when the triple
	// already exists in a non-failed state (the upsert is then a no-op).
	UpsertPending(ctx context.Context, alertID, subscriberID string, ch models.Channel) (id string, ready bool, err error)
	// Claim moves pending -> sending; only one caller wins the claim.
	Claim(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	// MarkRead succeeds only from sent or delivered.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	GetDelivery(ctx context.Context, id string) (*models.DeliveryRecord, error)
	ListByAlert(ctx context.Context, alertID string, f DeliveryFilter) ([]models.DeliveryRecord, error)
	ListFailed(ctx context.Context, alertID string) ([]models.DeliveryRecord, error)
	// CountByAlert returns per-channel, per-status counts for the alert.
	CountByAlert(ctx context.Context, alertID string) (map[models.Channel]map[models.DeliveryStatus]int, error)
}

// FeedEntry is one published item on the public web feed.
type FeedEntry struct {
	ID          string
	AlertID     string
	Title       string
	Message     string
	Severity    models.Severity
	Type        models.DisasterType
	PublishedAt time.Time
}

type FeedRepository interface {
	// PublishFeedEntry is idempotent per alert: republishing is a no-op.
	PublishFeedEntry(ctx context.Context, a *models.Alert, at time.Time) error
	ListFeed(ctx context.Context, limit int) ([]FeedEntry, error)
}
