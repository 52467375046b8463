package models

import "time"

// Subscriber is a citizen's contact surface: an optional last-known location,
// declared administrative areas, and per-channel endpoints. A channel is only
// reachable when its endpoint is set; web has no endpoint and is always
// reachable.
type Subscriber struct {
	ID          string
	Location    *LatLng
	LocationIDs []string // declared administrative areas, e.g. "RW-KIGALI-GASABO"
	Phone       string
	PushToken   string
	Email       string
	Language    string
	CreatedAt   time.Time
}

// Reachable reports whether the subscriber can be contacted on ch.
func (s *Subscriber) Reachable(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return s.Phone != ""
	case ChannelPush:
		return s.PushToken != ""
	case ChannelEmail:
		return s.Email != ""
	case ChannelWeb:
		return true
	}
	return false
}
