// Package geo provides great-circle distance math for geofence checks.
package geo

import (
	"math"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinates are finite and within
// latitude [-90, 90] and longitude [-180, 180].
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return apperrors.New(apperrors.ErrInvalidCoordinates, "coordinates must be finite numbers")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return apperrors.New(apperrors.ErrInvalidCoordinates, "latitude must be within [-90, 90]").
			WithDetail("lat", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return apperrors.New(apperrors.ErrInvalidCoordinates, "longitude must be within [-180, 180]").
			WithDetail("lng", c.Lng)
	}
	return nil
}

// DistanceMeters returns the great-circle distance between two points
// using the haversine formula. Pure and deterministic; callers must
// validate inputs first.
func DistanceMeters(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinProximity reports whether current is within maxMeters of reference.
func WithinProximity(current, reference Coordinates, maxMeters float64) bool {
	return DistanceMeters(current, reference) <= maxMeters
}
