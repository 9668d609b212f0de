// Package geo holds the proximity filter used by participant search.
package geo

import (
	"math"

	"github.com/oggyb/matchmaker/internal/db"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Point is a (lat, lon) pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies inside the usual coordinate ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// Distance returns the haversine distance between a and b in kilometers.
func Distance(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Filter keeps candidates whose distance to origin is <= maxDistanceKm.
// Candidates without both coordinates are always dropped. Input order is kept
// and the input slice is not modified.
func Filter(candidates []db.Participant, origin Point, maxDistanceKm float64) []db.Participant {
	out := make([]db.Participant, 0, len(candidates))
	for _, c := range candidates {
		if c.Latitude == nil || c.Longitude == nil {
			continue
		}
		if Distance(origin, Point{Lat: *c.Latitude, Lon: *c.Longitude}) <= maxDistanceKm {
			out = append(out, c)
		}
	}
	return out
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
