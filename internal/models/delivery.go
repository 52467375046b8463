package models

import "time"

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSending   DeliveryStatus = "sending" // claimed by an in-flight dispatch job
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// statusRank orders the happy path pending -> sending -> sent -> delivered ->
// read. Status never moves down this order; failed is terminal until an
// explicit resend resets the record to pending.
var statusRank = map[DeliveryStatus]int{
	DeliveryStatusPending:   0,
	DeliveryStatusSending:   1,
	DeliveryStatusSent:      2,
	DeliveryStatusDelivered: 3,
	DeliveryStatusRead:      4,
}

func (s DeliveryStatus) Rank() int {
	return statusRank[s]
}

func (s DeliveryStatus) Valid() bool {
	if s == DeliveryStatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// DeliveryRecord tracks one alert delivered to one subscriber over one
// channel. The (AlertID, SubscriberID, Channel) triple is unique: resend and
// reactivation reuse the row instead of inserting a duplicate.
type DeliveryRecord struct {
	ID           string
	AlertID      string
	SubscriberID string
	Channel      Channel
	Status       DeliveryStatus
	ErrorMessage string
	AttemptCount int
	CreatedAt    time.Time
	SentAt       *time.Time
	DeliveredAt  *time.Time
	ReadAt       *time.Time
}
