package geo

import (
	"github.com/golang/geo/s2"

	"github.com/ispfinder/ispfinder/internal/models"
)

// CoverageArea builds a spherical loop from the city's coverage polygon.
// Polygons with fewer than three points, invalid vertices or self
// intersections yield nil.
func CoverageArea(city models.City) *s2.Loop {
	if len(city.AreaCoverage) < 3 {
		return nil
	}

	points := make([]s2.Point, 0, len(city.AreaCoverage))
	for _, c := range city.AreaCoverage {
		if !ValidCoordinates(c) {
			return nil
		}
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng)))
	}
	// the catalog may close the ring by repeating the first vertex
	if len(points) > 3 && points[0].ApproxEqual(points[len(points)-1]) {
		points = points[:len(points)-1]
	}

	loop := s2.LoopFromPoints(points)
	if err := loop.Validate(); err != nil {
		return nil
	}
	// polygons may be listed clockwise; keep the smaller side as the interior
	loop.Normalize()
	return loop
}

// WithinCoverageArea reports whether point lies inside the city's coverage
// polygon. Cities without a usable polygon contain nothing.
func WithinCoverageArea(city models.City, point models.Coordinates) bool {
	loop := CoverageArea(city)
	if loop == nil || !ValidCoordinates(point) {
		return false
	}
	return loop.ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(point.Lat, point.Lng)))
}
