// Package geo resolves a caller's reported location to a catalog city and
// classifies the risk of the connection it came from.
package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/ispfinder/ispfinder/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance between a and b in km.
func Distance(a, b models.Coordinates) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// ValidCoordinates reports whether c is a finite position within
// [-90, 90] latitude and [-180, 180] longitude.
func ValidCoordinates(c models.Coordinates) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return s2.LatLngFromDegrees(c.Lat, c.Lng).IsValid()
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
