package geo

import (
	"fmt"
	"math"
)

const (
	earthRadiusM = 6371000.0

	// MaxPlausibleSpeed is the upper bound accepted for a reported speed,
	// in meters per second. Anything above it is GPS noise for a bicycle.
	MaxPlausibleSpeed = 60.0
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinate lies within the valid WGS84 range.
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Longitude)
	}
	return nil
}

// Distance returns the great-circle distance between two coordinates in
// meters, using the Haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lon1 := a.Longitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	lon2 := b.Longitude * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLon / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin

	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial bearing from a to b in degrees, normalized to
// [0, 360).
func Bearing(a, b Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180.0

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180.0 / math.Pi
	return math.Mod(deg+360.0, 360.0)
}

// PlausibleSpeed reports whether a speed reading is usable: non-negative and
// within the bound a bicycle can realistically reach.
func PlausibleSpeed(v float64) bool {
	return v >= 0 && v <= MaxPlausibleSpeed
}
