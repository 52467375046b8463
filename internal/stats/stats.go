package stats

import (
	"context"
	"fmt"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
)

// ChannelStats summarizes one channel's deliveries for an alert.
type ChannelStats struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Sent        int     `json:"sent"`
	Delivered   int     `json:"delivered"`
	Read        int     `json:"read"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// AlertStats is the on-demand delivery summary for a single alert. It is
// derived from the ledger and never persisted.
type AlertStats struct {
	AlertID     string                            `json:"alert_id"`
	Total       int                               `json:"total"`
	ByStatus    map[models.DeliveryStatus]int     `json:"by_status"`
	ByChannel   map[models.Channel]ChannelStats   `json:"by_channel"`
	SuccessRate float64                           `json:"success_rate"`
}

type Aggregator struct {
	deliveries repository.DeliveryRepository
}

func NewAggregator(deliveries repository.DeliveryRepository) *Aggregator {
	return &Aggregator{deliveries: deliveries}
}

// Stats scans the ledger counts for the alert. success_rate is
// (delivered+read)/total, and 0 when there are no records at all. Records
// claimed by an in-flight job are reported as pending.
func (a *Aggregator) Stats(ctx context.Context, alertID string) (*AlertStats, error) {
	counts, err := a.deliveries.CountByAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("error counting deliveries: %w", err)
	}

	out := &AlertStats{
		AlertID:   alertID,
		ByStatus:  make(map[models.DeliveryStatus]int),
		ByChannel: make(map[models.Channel]ChannelStats),
	}

	for ch, byStatus := range counts {
		cs := ChannelStats{}
		for st, n := range byStatus {
			cs.Total += n
			switch st {
			case models.DeliveryStatusPending, models.DeliveryStatusSending:
				cs.Pending += n
				out.ByStatus[models.DeliveryStatusPending] += n
			case models.DeliveryStatusSent:
				cs.Sent += n
				out.ByStatus[st] += n
			case models.DeliveryStatusDelivered:
				cs.Delivered += n
				out.ByStatus[st] += n
			case models.DeliveryStatusRead:
				cs.Read += n
				out.ByStatus[st] += n
			case models.DeliveryStatusFailed:
				cs.Failed += n
				out.ByStatus[st] += n
			}
		}
		cs.SuccessRate = rate(cs.Delivered+cs.Read, cs.Total)
		out.Total += cs.Total
		out.ByChannel[ch] = cs
	}

	delivered := out.ByStatus[models.DeliveryStatusDelivered] + out.ByStatus[models.DeliveryStatusRead]
	out.SuccessRate = rate(delivered, out.Total)
	return out, nil
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
