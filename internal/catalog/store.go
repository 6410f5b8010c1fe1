// Package catalog holds the read-only city and ISP reference data.
package catalog

import (
	"errors"
	"fmt"

	"github.com/ispfinder/ispfinder/internal/geo"
	"github.com/ispfinder/ispfinder/internal/models"
)

// ErrNotFound is returned when a city or ISP id is unknown.
var ErrNotFound = errors.New("not found")

// Data is the serialized form of a catalog.
type Data struct {
	Cities []models.City `json:"cities"`
	ISPs   []models.ISP  `json:"isps"`
}

// Store is an immutable, load-once catalog. Slices returned by its methods
// share memory with the store and must not be modified.
type Store struct {
	cities    []models.City
	isps      []models.ISP
	cityIndex map[string]int
	ispIndex  map[string]int
}

// New validates data and builds a store. Catalog order is preserved and used
// as the tie-break everywhere the engine needs one.
func New(data Data) (*Store, error) {
	s := &Store{
		cities:    data.Cities,
		isps:      data.ISPs,
		cityIndex: make(map[string]int, len(data.Cities)),
		ispIndex:  make(map[string]int, len(data.ISPs)),
	}

	for i, city := range data.Cities {
		if city.ID == "" {
			return nil, fmt.Errorf("city at index %d has no id", i)
		}
		if _, dup := s.cityIndex[city.ID]; dup {
			return nil, fmt.Errorf("duplicate city id %q", city.ID)
		}
		if !geo.ValidCoordinates(city.Coordinates) {
			return nil, fmt.Errorf("city %q has invalid coordinates %v", city.ID, city.Coordinates)
		}
		s.cityIndex[city.ID] = i
	}

	for i := range data.ISPs {
		isp := &data.ISPs[i]
		if isp.ID == "" {
			return nil, fmt.Errorf("isp at index %d has no id", i)
		}
		if _, dup := s.ispIndex[isp.ID]; dup {
			return nil, fmt.Errorf("duplicate isp id %q", isp.ID)
		}
		if err := validateISP(isp, s.cityIndex); err != nil {
			return nil, fmt.Errorf("isp %q: %w", isp.ID, err)
		}
		s.ispIndex[isp.ID] = i
	}

	return s, nil
}

// validateISP checks isp against the already indexed cities. Coverage must
// name a catalog city, at most once.
func validateISP(isp *models.ISP, cities map[string]int) error {
	if isp.Rating < 0 || isp.Rating > 5 {
		return fmt.Errorf("rating %v outside 0-5", isp.Rating)
	}

	seen := make(map[string]bool, len(isp.Coverage))
	for _, c := range isp.Coverage {
		if seen[c.CityID] {
			return fmt.Errorf("duplicate coverage for city %q", c.CityID)
		}
		seen[c.CityID] = true
		if _, ok := cities[c.CityID]; !ok {
			return fmt.Errorf("coverage for unknown city %q", c.CityID)
		}
		if c.Percentage < 0 || c.Percentage > 100 {
			return fmt.Errorf("coverage for city %q is %v%%", c.CityID, c.Percentage)
		}
	}

	for i := range isp.Plans {
		p := &isp.Plans[i]
		if p.ISPID == "" {
			p.ISPID = isp.ID
		}
		if p.Speed <= 0 || p.UploadSpeed <= 0 {
			return fmt.Errorf("plan %q has non-positive speed", p.ID)
		}
		if p.Price < 0 {
			return fmt.Errorf("plan %q has negative price", p.ID)
		}
		if p.Type != models.PlanTypeResidential && p.Type != models.PlanTypeBusiness {
			return fmt.Errorf("plan %q has unknown type %q", p.ID, p.Type)
		}
		if !p.ConnectionType.Valid() {
			return fmt.Errorf("plan %q has unknown connection type %q", p.ID, p.ConnectionType)
		}
	}
	return nil
}

// Cities returns every city in catalog order.
func (s *Store) Cities() []models.City {
	return s.cities
}

// ISPs returns every ISP in catalog order.
func (s *Store) ISPs() []models.ISP {
	return s.isps
}

// City looks a city up by id.
func (s *Store) City(id string) (models.City, error) {
	i, ok := s.cityIndex[id]
	if !ok {
		return models.City{}, fmt.Errorf("city %q: %w", id, ErrNotFound)
	}
	return s.cities[i], nil
}

// ISP looks an ISP up by id. The pointer refers into the catalog.
func (s *Store) ISP(id string) (*models.ISP, error) {
	i, ok := s.ispIndex[id]
	if !ok {
		return nil, fmt.Errorf("isp %q: %w", id, ErrNotFound)
	}
	return &s.isps[i], nil
}
