// Package search filters and ranks the ISP catalog for a city.
package search

import "github.com/ispfinder/ispfinder/internal/models"

const (
	DefaultPriceMin = 0
	DefaultPriceMax = 3000
)

// Filters is the user's filter configuration. The zero value of each
// dimension means "no restriction" except PriceMax, so callers normally start
// from DefaultFilters.
type Filters struct {
	PriceMin        float64                 `json:"minPrice"`
	PriceMax        float64                 `json:"maxPrice"`
	MinSpeed        float64                 `json:"minSpeed"` // Mbps
	ConnectionTypes []models.ConnectionType `json:"types"`
	MinCoverage     float64                 `json:"minCoverage"` // percent
	PlanType        models.PlanType         `json:"planType"`
}

// DefaultFilters returns the filters a fresh search starts with.
func DefaultFilters() Filters {
	return Filters{
		PriceMin: DefaultPriceMin,
		PriceMax: DefaultPriceMax,
		PlanType: models.PlanTypeResidential,
	}
}

// ActiveCount counts the filter dimensions that differ from their defaults.
// The plan type preference is not counted.
func (f Filters) ActiveCount() int {
	n := 0
	if f.PriceMin != DefaultPriceMin || f.PriceMax != DefaultPriceMax {
		n++
	}
	if f.MinSpeed > 0 {
		n++
	}
	if len(f.ConnectionTypes) > 0 {
		n++
	}
	if f.MinCoverage > 0 {
		n++
	}
	return n
}

// relevantPlans returns the plans whose type passes the plan type filter.
// An empty plan type behaves like "both".
func (f Filters) relevantPlans(isp *models.ISP) []models.Plan {
	if f.PlanType == "" || f.PlanType == models.PlanTypeBoth {
		return isp.Plans
	}
	var plans []models.Plan
	for _, p := range isp.Plans {
		if f.PlanType.Matches(p.Type) {
			plans = append(plans, p)
		}
	}
	return plans
}

func (f Filters) wantsConnection(c models.ConnectionType) bool {
	for _, want := range f.ConnectionTypes {
		if want == c {
			return true
		}
	}
	return false
}

// Match reports whether isp passes every filter for cityID. Each plan-level
// criterion may be met by a different relevant plan.
func (f Filters) Match(isp *models.ISP, cityID string) bool {
	if cityID != "" {
		coverage, ok := isp.CoverageFor(cityID)
		if !ok || coverage.Percentage < f.MinCoverage {
			return false
		}
	}

	plans := f.relevantPlans(isp)
	if len(plans) == 0 {
		return false
	}

	var priced, fast, connection bool
	connection = len(f.ConnectionTypes) == 0
	for _, p := range plans {
		if p.Price >= f.PriceMin && p.Price <= f.PriceMax {
			priced = true
		}
		if p.Speed >= f.MinSpeed {
			fast = true
		}
		if !connection && f.wantsConnection(p.ConnectionType) {
			connection = true
		}
	}
	return priced && fast && connection
}
