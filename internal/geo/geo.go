// Package geo evaluates great-circle distances between coordinates.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371008.8

// ErrInvalidCoordinate indicates a latitude or longitude outside its valid range.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Validate reports whether the point lies within [-90,90] x [-180,180].
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, p.Latitude)
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

// Distance returns the haversine distance in meters between a and b.
func Distance(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h)), nil
}

// boundaryTolerance absorbs floating point error at the radius boundary.
const boundaryTolerance = 1e-6

// Within reports whether b lies within radius meters of a, together with the
// measured distance. The boundary is inclusive.
func Within(a, b Point, radius float64) (bool, float64, error) {
	d, err := Distance(a, b)
	if err != nil {
		return false, 0, err
	}
	return d <= radius+boundaryTolerance, d, nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
