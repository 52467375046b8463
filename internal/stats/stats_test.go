package stats

import (
	"context"
	"math"
	"testing"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
)

// countsOnly implements just the slice of the delivery repository the
// aggregator uses.
type countsOnly struct {
	repository.DeliveryRepository
	counts map[models.Channel]map[models.DeliveryStatus]int
}

func (c countsOnly) CountByAlert(ctx context.Context, alertID string) (map[models.Channel]map[models.DeliveryStatus]int, error) {
	return c.counts, nil
}

func TestAggregator_Stats(t *testing.T) {
	a := NewAggregator(countsOnly{counts: map[models.Channel]map[models.DeliveryStatus]int{
		models.ChannelSMS: {
			models.DeliveryStatusSent:      5,
			models.DeliveryStatusDelivered: 3,
			models.DeliveryStatusRead:      1,
			models.DeliveryStatusFailed:    1,
		},
		models.ChannelPush: {
			models.DeliveryStatusPending: 1,
			models.DeliveryStatusSending: 2,
			models.DeliveryStatusFailed:  1,
		},
	}})

	got, err := a.Stats(context.Background(), "al_1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if got.Total != 14 {
		t.Errorf("expected total 14, got %d", got.Total)
	}

	sms := got.ByChannel[models.ChannelSMS]
	if sms.Total != 10 || sms.Sent != 5 || sms.Delivered != 3 || sms.Read != 1 || sms.Failed != 1 {
		t.Errorf("unexpected sms stats: %+v", sms)
	}
	if math.Abs(sms.SuccessRate-0.4) > 1e-9 {
		t.Errorf("expected sms success rate 0.4, got %f", sms.SuccessRate)
	}

	// The in-flight claim marker is reported as pending.
	push := got.ByChannel[models.ChannelPush]
	if push.Pending != 3 {
		t.Errorf("expected 3 pending on push, got %d", push.Pending)
	}
	if got.ByStatus[models.DeliveryStatusPending] != 3 {
		t.Errorf("expected 3 pending overall, got %d", got.ByStatus[models.DeliveryStatusPending])
	}

	// Overall: (3 delivered + 1 read) / 14.
	want := 4.0 / 14.0
	if math.Abs(got.SuccessRate-want) > 1e-9 {
		t.Errorf("expected success rate %f, got %f", want, got.SuccessRate)
	}
}

func TestAggregator_StatsEmpty(t *testing.T) {
	a := NewAggregator(countsOnly{counts: map[models.Channel]map[models.DeliveryStatus]int{}})

	got, err := a.Stats(context.Background(), "al_1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if got.Total != 0 {
		t.Errorf("expected total 0, got %d", got.Total)
	}
	if got.SuccessRate != 0 {
		t.Errorf("success rate must be 0 with no records, got %f", got.SuccessRate)
	}
}
