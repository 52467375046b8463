package models

import "time"

type DisasterType string

const (
	DisasterTypeFlood      DisasterType = "flood"
	DisasterTypeEarthquake DisasterType = "earthquake"
	DisasterTypeFire       DisasterType = "fire"
	DisasterTypeEpidemic   DisasterType = "epidemic"
	DisasterTypeStorm      DisasterType = "storm"
	DisasterTypeOther      DisasterType = "other"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityExtreme  Severity = "extreme"
)

// severityRank orders severities for comparison and filtering.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityMinor:    1,
	SeverityModerate: 2,
	SeveritySevere:   3,
	SeverityExtreme:  4,
}

func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

type AlertStatus string

const (
	AlertStatusDraft     AlertStatus = "draft"
	AlertStatusActive    AlertStatus = "active"
	AlertStatusExpired   AlertStatus = "expired"
	AlertStatusCancelled AlertStatus = "cancelled"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelWeb   Channel = "web"
)

// AllChannels lists every supported delivery channel.
var AllChannels = []Channel{ChannelSMS, ChannelPush, ChannelEmail, ChannelWeb}

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelPush, ChannelEmail, ChannelWeb:
		return true
	}
	return false
}

type LatLng struct {
	Latitude  float64
	Longitude float64
}

// Target describes who an alert is aimed at. A polygon overrides the circle
// when both are present; explicit admin-location codes are OR'd with the
// geometry match.
type Target struct {
	Center      *LatLng
	RadiusKm    float64
	Polygon     []LatLng
	LocationIDs []string
}

// HasGeometry reports whether the target carries a usable circle or polygon.
func (t Target) HasGeometry() bool {
	return len(t.Polygon) > 0 || (t.Center != nil && t.RadiusKm > 0)
}

// Empty targets match nobody and must be rejected before activation.
func (t Target) Empty() bool {
	return !t.HasGeometry() && len(t.LocationIDs) == 0
}

type Alert struct {
	ID        string
	Type      DisasterType
	Severity  Severity
	Status    AlertStatus
	Title     string
	Message   string
	Localized map[string]string // language -> rendered message, opaque to the engine
	Target    Target
	Channels  []Channel
	ExpiresAt *time.Time
	CreatedAt time.Time
	IssuedAt  *time.Time
}

// HasChannel reports whether ch is enabled on the alert.
func (a *Alert) HasChannel(ch Channel) bool {
	for _, c := range a.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Expired reports whether the alert's expiry has passed at now.
func (a *Alert) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}
