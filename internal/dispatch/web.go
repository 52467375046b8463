package dispatch

import (
	"context"
	"time"

	"github.com/rwandadisasteralert/alert-engine/internal/feed"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
)

// WebDispatcher publishes the alert to the public web feed. Delivery is
// synchronously confirmable: once the feed entry is persisted the message is
// reachable by every web recipient.
type WebDispatcher struct {
	store       repository.FeedRepository
	broadcaster *feed.Broadcaster
	now         func() time.Time
}

func NewWebDispatcher(store repository.FeedRepository, broadcaster *feed.Broadcaster) *WebDispatcher {
	return &WebDispatcher{
		store:       store,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (d *WebDispatcher) Channel() models.Channel {
	return models.ChannelWeb
}

func (d *WebDispatcher) Confirmable() bool {
	return true
}

func (d *WebDispatcher) Send(ctx context.Context, sub *models.Subscriber, alert *models.Alert) error {
	if err := d.store.PublishFeedEntry(ctx, alert, d.now()); err != nil {
		return &ProviderError{Provider: "web", Message: err.Error(), Retryable: true}
	}
	if d.broadcaster != nil {
		d.broadcaster.Publish(alert)
	}
	return nil
}
