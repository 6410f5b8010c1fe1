package geo

import (
	"strings"

	"github.com/ispfinder/ispfinder/internal/models"
)

// MaxMatchDistanceKm caps nearest-city matches; a caller farther than this
// from every catalog city gets no match.
const MaxMatchDistanceKm = 500.0

// MatchMethod records how a city was resolved.
type MatchMethod string

const (
	MatchByName     MatchMethod = "name"
	MatchByDistance MatchMethod = "distance"
)

// Resolution is a resolved city with how it was found.
type Resolution struct {
	City               models.City `json:"city"`
	Method             MatchMethod `json:"method"`
	DistanceKm         float64     `json:"distance_km"`
	InsideCoverageArea bool        `json:"inside_coverage_area"`
}

// FindCityByName returns the first city whose name equals name, ignoring case
// and surrounding whitespace.
func FindCityByName(name string, cities []models.City) (models.City, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return models.City{}, false
	}
	for _, city := range cities {
		if strings.ToLower(city.Name) == normalized {
			return city, true
		}
	}
	return models.City{}, false
}

// FindNearestCity returns the catalog city closest to point, provided it lies
// within maxKm. Ties keep the earlier city in catalog order.
func FindNearestCity(point models.Coordinates, cities []models.City, maxKm float64) (models.City, float64, bool) {
	if len(cities) == 0 {
		return models.City{}, 0, false
	}

	nearest := cities[0]
	minDistance := Distance(point, nearest.Coordinates)
	for _, city := range cities[1:] {
		if d := Distance(point, city.Coordinates); d < minDistance {
			minDistance = d
			nearest = city
		}
	}

	if minDistance > maxKm {
		return models.City{}, 0, false
	}
	return nearest, minDistance, true
}

// ResolveCity maps a geolocation to a catalog city: exact name first, then
// the nearest city within MaxMatchDistanceKm. It is pure and never fails.
func ResolveCity(loc models.GeolocationData, cities []models.City) (models.City, bool) {
	res, ok := Resolve(loc, cities)
	return res.City, ok
}

// Resolve is ResolveCity with match details.
func Resolve(loc models.GeolocationData, cities []models.City) (Resolution, bool) {
	point := loc.Coordinates()

	if city, ok := FindCityByName(loc.City, cities); ok {
		res := Resolution{City: city, Method: MatchByName}
		if ValidCoordinates(point) {
			res.DistanceKm = Distance(point, city.Coordinates)
			res.InsideCoverageArea = WithinCoverageArea(city, point)
		}
		return res, true
	}

	if !ValidCoordinates(point) {
		return Resolution{}, false
	}

	city, distance, ok := FindNearestCity(point, cities, MaxMatchDistanceKm)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		City:               city,
		Method:             MatchByDistance,
		DistanceKm:         distance,
		InsideCoverageArea: WithinCoverageArea(city, point),
	}, true
}
