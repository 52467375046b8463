package geo

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

// earthRadiusKm is the mean spherical radius. Distances are deliberately
// computed on a spherical earth, not a geodesic ellipsoid: the error is well
// under 0.5% at alert-radius scale and the result is deterministic.
const earthRadiusKm = 6371.0

// SubscriberSource provides the subscriber population to match against.
type SubscriberSource interface {
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
}

type Matcher struct {
	subscribers SubscriberSource
}

func NewMatcher(subscribers SubscriberSource) *Matcher {
	return &Matcher{subscribers: subscribers}
}

// Resolve returns the IDs of subscribers targeted by t: those whose last
// known location falls inside the geometry, union those whose declared
// administrative areas intersect the explicit location list. The result is
// computed from the population as it exists right now; callers freeze it by
// resolving once at activation.
func (m *Matcher) Resolve(ctx context.Context, t models.Target) ([]string, error) {
	subs, err := m.subscribers.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w", err)
	}

	// A polygon with fewer than three vertices cannot enclose anything.
	// Fail closed: log the data-quality problem and match nobody on geometry
	// rather than aborting the alert.
	polygon := t.Polygon
	if len(polygon) > 0 && len(polygon) < 3 {
		slog.Error("malformed target polygon, matching nobody on geometry", "vertices", len(polygon))
		polygon = nil
	}

	explicit := make(map[string]bool, len(t.LocationIDs))
	for _, id := range t.LocationIDs {
		explicit[id] = true
	}

	var ids []string
	for _, sub := range subs {
		if m.matchGeometry(sub, t, polygon) || matchLocations(sub, explicit) {
			ids = append(ids, sub.ID)
		}
	}
	return ids, nil
}

func (m *Matcher) matchGeometry(sub models.Subscriber, t models.Target, polygon []models.LatLng) bool {
	if sub.Location == nil {
		return false
	}
	// Polygon wins over circle when both are present.
	if len(polygon) > 0 {
		return pointInPolygon(*sub.Location, polygon)
	}
	if t.Center != nil && t.RadiusKm > 0 {
		return HaversineKm(*sub.Location, *t.Center) <= t.RadiusKm
	}
	return false
}

func matchLocations(sub models.Subscriber, explicit map[string]bool) bool {
	for _, id := range sub.LocationIDs {
		if explicit[id] {
			return true
		}
	}
	return false
}

// HaversineKm returns the great-circle distance between two points on a
// spherical earth of radius 6371 km.
func HaversineKm(a, b models.LatLng) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// pointInPolygon runs a standard ray cast along constant latitude. Vertices
// are assumed to form a simple ring; winding order does not matter.
func pointInPolygon(p models.LatLng, ring []models.LatLng) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Latitude > p.Latitude) != (vj.Latitude > p.Latitude) {
			crossLng := (vj.Longitude-vi.Longitude)*(p.Latitude-vi.Latitude)/
				(vj.Latitude-vi.Latitude) + vi.Longitude
			if p.Longitude < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// populationDensityPerKm2 is the rough national average used by the dashboard
// for its "estimated affected population" figure.
const populationDensityPerKm2 = 525.0

// EstimatePopulation returns a coarse display-only population estimate for a
// circular target. It plays no part in recipient resolution.
func EstimatePopulation(radiusKm float64) int {
	if radiusKm <= 0 {
		return 0
	}
	return int(math.Pi * radiusKm * radiusKm * populationDensityPerKm2)
}
