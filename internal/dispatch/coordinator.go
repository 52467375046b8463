package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rwandadisasteralert/alert-engine/internal/config"
	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
	"github.com/rwandadisasteralert/alert-engine/internal/worker"
)

// RecipientResolver computes the frozen recipient set for a target.
type RecipientResolver interface {
	Resolve(ctx context.Context, t models.Target) ([]string, error)
}

// Counts is the per-channel dispatch outcome of one fan-out.
type Counts struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Summary maps each channel that saw dispatch work to its outcome counts.
type Summary map[models.Channel]*Counts

func (s Summary) Totals() (sent, failed int) {
	for _, c := range s {
		sent += c.Sent
		failed += c.Failed
	}
	return sent, failed
}

// Coordinator drives alert fan-out: it expands the recipient set into
// delivery records and pushes one job per (recipient, channel) pair through a
// bounded per-channel worker pool. A record must be claimed
// (pending -> sending) before its job is enqueued, which keeps at most one
// attempt per triple in flight even when resend races an ongoing dispatch.
type Coordinator struct {
	alerts      repository.AlertRepository
	subscribers repository.SubscriberRepository
	deliveries  repository.DeliveryRepository
	resolver    RecipientResolver
	dispatchers map[models.Channel]Dispatcher
	pools       map[models.Channel]*worker.Pool

	cancelled sync.Map // alertID -> struct{}
	now       func() time.Time
}

func NewCoordinator(
	alerts repository.AlertRepository,
	subscribers repository.SubscriberRepository,
	deliveries repository.DeliveryRepository,
	resolver RecipientResolver,
	dispatchers []Dispatcher,
	cfg config.DispatchConfig,
) *Coordinator {
	c := &Coordinator{
		alerts:      alerts,
		subscribers: subscribers,
		deliveries:  deliveries,
		resolver:    resolver,
		dispatchers: make(map[models.Channel]Dispatcher, len(dispatchers)),
		pools:       make(map[models.Channel]*worker.Pool, len(dispatchers)),
		now:         time.Now,
	}
	for _, d := range dispatchers {
		ch := d.Channel()
		c.dispatchers[ch] = d
		c.pools[ch] = worker.NewPool(cfg.Workers(string(ch)), cfg.BufferSize)
	}
	return c
}

// Start launches the per-channel worker pools.
func (c *Coordinator) Start(ctx context.Context) {
	for _, p := range c.pools {
		p.Start(ctx)
	}
}

// Stop drains the pools, waiting for queued and in-flight jobs.
func (c *Coordinator) Stop() {
	for _, p := range c.pools {
		p.Stop()
	}
}

// CancelAlert prevents any new dispatch job for the alert from starting.
// Jobs already handed to a provider run to completion and record their
// outcome normally.
func (c *Coordinator) CancelAlert(alertID string) {
	c.cancelled.Store(alertID, struct{}{})
}

func (c *Coordinator) isCancelled(alertID string) bool {
	_, ok := c.cancelled.Load(alertID)
	return ok
}

// batch tracks one fan-out's jobs and aggregates their outcomes.
type batch struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	summary Summary
}

func newBatch() *batch {
	return &batch{summary: make(Summary)}
}

func (b *batch) record(ch models.Channel, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := b.summary[ch]
	if counts == nil {
		counts = &Counts{}
		b.summary[ch] = counts
	}
	if failed {
		counts.Failed++
	} else {
		counts.Sent++
	}
}

func (b *batch) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchAlert runs the full fan-out for an activated alert and blocks until
// every enqueued job has written its outcome. A recipient-set resolution
// failure aborts before any record is written; individual send failures never
// abort the batch.
func (c *Coordinator) DispatchAlert(ctx context.Context, alertID string) (Summary, error) {
	alert, err := c.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("error loading alert: %w", err)
	}
	if alert.Status != models.AlertStatusActive {
		return nil, fmt.Errorf("alert %s is %s, not active", alertID, alert.Status)
	}
	if len(alert.Channels) == 0 {
		return nil, fmt.Errorf("alert %s has no enabled channels", alertID)
	}

	recipientIDs, err := c.resolver.Resolve(ctx, alert.Target)
	if err != nil {
		return nil, fmt.Errorf("error resolving recipients: %w", err)
	}

	subs, err := c.subscriberIndex(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("dispatching alert", "alert_id", alertID, "recipients", len(recipientIDs), "channels", alert.Channels)

	b := newBatch()
	for _, id := range recipientIDs {
		sub, ok := subs[id]
		if !ok {
			continue
		}
		for _, ch := range alert.Channels {
			if c.isCancelled(alertID) {
				slog.Info("dispatch halted by cancellation", "alert_id", alertID)
				return c.finish(ctx, b)
			}
			dispatcher, ok := c.dispatchers[ch]
			if !ok || !sub.Reachable(ch) {
				continue
			}

			recordID, ready, err := c.deliveries.UpsertPending(ctx, alertID, sub.ID, ch)
			if err != nil {
				slog.Error("error upserting delivery", "alert_id", alertID, "subscriber_id", sub.ID, "channel", ch, "error", err)
				continue
			}
			if !ready {
				continue
			}
			c.enqueue(b, dispatcher, recordID, alert, sub)
		}
	}

	return c.finish(ctx, b)
}

// ResendFailed re-drives exactly the records currently failed for the alert.
// Records that were sent, delivered, or read are never touched. It returns
// the number of jobs queued alongside their outcome.
func (c *Coordinator) ResendFailed(ctx context.Context, alertID string) (int, Summary, error) {
	if c.isCancelled(alertID) {
		return 0, nil, fmt.Errorf("alert %s is cancelled", alertID)
	}
	alert, err := c.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return 0, nil, fmt.Errorf("error loading alert: %w", err)
	}
	if alert.Status != models.AlertStatusActive {
		return 0, nil, fmt.Errorf("alert %s is %s, not active", alertID, alert.Status)
	}

	failed, err := c.deliveries.ListFailed(ctx, alertID)
	if err != nil {
		return 0, nil, fmt.Errorf("error listing failed deliveries: %w", err)
	}

	subs, err := c.subscriberIndex(ctx)
	if err != nil {
		return 0, nil, err
	}

	b := newBatch()
	queued := 0
	for _, rec := range failed {
		if c.isCancelled(alertID) {
			break
		}
		sub, ok := subs[rec.SubscriberID]
		if !ok {
			continue
		}
		dispatcher, ok := c.dispatchers[rec.Channel]
		if !ok {
			continue
		}

		// The upsert resets the failed record to pending and bumps its
		// attempt count; a record whose original attempt is still in flight
		// is not failed and is skipped here.
		recordID, ready, err := c.deliveries.UpsertPending(ctx, alertID, rec.SubscriberID, rec.Channel)
		if err != nil {
			slog.Error("error resetting failed delivery", "record_id", rec.ID, "error", err)
			continue
		}
		if !ready {
			continue
		}
		c.enqueue(b, dispatcher, recordID, alert, sub)
		queued++
	}

	slog.Info("resend queued", "alert_id", alertID, "count", queued)

	summary, err := c.finish(ctx, b)
	return queued, summary, err
}

// enqueue claims the record and hands the job to the channel's pool. Only
// the claim winner submits, which is what guarantees single-flight per
// triple.
func (c *Coordinator) enqueue(b *batch, dispatcher Dispatcher, recordID string, alert *models.Alert, sub models.Subscriber) {
	ctx := context.Background()
	claimed, err := c.deliveries.Claim(ctx, recordID)
	if err != nil {
		slog.Error("error claiming delivery", "record_id", recordID, "error", err)
		return
	}
	if !claimed {
		return
	}

	b.wg.Add(1)
	c.pools[dispatcher.Channel()].Submit(func(jobCtx context.Context) {
		defer b.wg.Done()
		c.runJob(jobCtx, b, dispatcher, recordID, alert, &sub)
	})
}

func (c *Coordinator) runJob(ctx context.Context, b *batch, dispatcher Dispatcher, recordID string, alert *models.Alert, sub *models.Subscriber) {
	ch := dispatcher.Channel()

	if c.isCancelled(alert.ID) {
		// Claimed before the cancel landed but never handed to the provider.
		if err := c.deliveries.MarkFailed(ctx, recordID, "alert cancelled before send"); err != nil {
			slog.Error("error failing cancelled delivery", "record_id", recordID, "error", err)
		}
		b.record(ch, true)
		return
	}

	err := dispatcher.Send(ctx, sub, alert)
	if err != nil {
		if markErr := c.deliveries.MarkFailed(ctx, recordID, err.Error()); markErr != nil {
			slog.Error("error marking delivery failed", "record_id", recordID, "error", markErr)
		}
		slog.Warn("send failed", "record_id", recordID, "channel", ch, "retryable", IsRetryable(err), "error", err)
		b.record(ch, true)
		return
	}

	now := c.now()
	if err := c.deliveries.MarkSent(ctx, recordID, now); err != nil {
		slog.Error("error marking delivery sent", "record_id", recordID, "error", err)
	}
	if dispatcher.Confirmable() {
		if err := c.deliveries.MarkDelivered(ctx, recordID, now); err != nil {
			slog.Error("error marking delivery delivered", "record_id", recordID, "error", err)
		}
	}
	b.record(ch, false)
}

func (c *Coordinator) finish(ctx context.Context, b *batch) (Summary, error) {
	if err := b.wait(ctx); err != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.summary, fmt.Errorf("dispatch interrupted: %w", err)
	}
	return b.summary, nil
}

func (c *Coordinator) subscriberIndex(ctx context.Context) (map[string]models.Subscriber, error) {
	subs, err := c.subscribers.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w", err)
	}
	index := make(map[string]models.Subscriber, len(subs))
	for _, s := range subs {
		index[s.ID] = s
	}
	return index, nil
}
