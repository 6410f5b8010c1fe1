package search

import (
	"sort"

	"github.com/ispfinder/ispfinder/internal/models"
)

// SortMode selects the ranking key.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortCoverage  SortMode = "coverage"
	SortPriceLow  SortMode = "price-low"
	SortPriceHigh SortMode = "price-high"
	SortSpeed     SortMode = "speed"
	SortRating    SortMode = "rating"
)

// Valid reports whether m is a known sort mode.
func (m SortMode) Valid() bool {
	switch m {
	case SortRelevance, SortCoverage, SortPriceLow, SortPriceHigh, SortSpeed, SortRating:
		return true
	}
	return false
}

// Result is a ranked selection. ISPs point into the catalog slice passed to
// Select.
type Result struct {
	ISPs          []*models.ISP `json:"isps"`
	Count         int           `json:"count"`
	ActiveFilters int           `json:"active_filters"`
}

// Select filters catalog for cityID and orders the matches by mode. An empty
// cityID skips the coverage filter and makes coverage sorts a no-op. Equal
// keys keep catalog order; unknown modes rank by relevance.
func Select(catalog []models.ISP, cityID string, filters Filters, mode SortMode) Result {
	matches := make([]*models.ISP, 0, len(catalog))
	for i := range catalog {
		if filters.Match(&catalog[i], cityID) {
			matches = append(matches, &catalog[i])
		}
	}

	sort.SliceStable(matches, less(mode, cityID, matches))

	return Result{
		ISPs:          matches,
		Count:         len(matches),
		ActiveFilters: filters.ActiveCount(),
	}
}

func less(mode SortMode, cityID string, isps []*models.ISP) func(i, j int) bool {
	switch mode {
	case SortPriceLow:
		return func(i, j int) bool { return minPrice(isps[i]) < minPrice(isps[j]) }
	case SortPriceHigh:
		return func(i, j int) bool { return maxPrice(isps[i]) > maxPrice(isps[j]) }
	case SortSpeed:
		return func(i, j int) bool { return maxSpeed(isps[i]) > maxSpeed(isps[j]) }
	case SortRating:
		return func(i, j int) bool { return isps[i].Rating > isps[j].Rating }
	default:
		return func(i, j int) bool {
			return isps[i].CoveragePercentage(cityID) > isps[j].CoveragePercentage(cityID)
		}
	}
}

// minPrice is taken over all plans, not only the plans that passed the
// plan type filter.
func minPrice(isp *models.ISP) float64 {
	if len(isp.Plans) == 0 {
		return 0
	}
	lowest := isp.Plans[0].Price
	for _, p := range isp.Plans[1:] {
		if p.Price < lowest {
			lowest = p.Price
		}
	}
	return lowest
}

func maxPrice(isp *models.ISP) float64 {
	var highest float64
	for _, p := range isp.Plans {
		if p.Price > highest {
			highest = p.Price
		}
	}
	return highest
}

func maxSpeed(isp *models.ISP) float64 {
	var fastest float64
	for _, p := range isp.Plans {
		if p.Speed > fastest {
			fastest = p.Speed
		}
	}
	return fastest
}

// BestPlan picks the plan an ISP card offers for comparison: the cheapest plan
// of the requested type, or the ISP's first plan when none matches.
func BestPlan(isp *models.ISP, planType models.PlanType) (models.Plan, bool) {
	if len(isp.Plans) == 0 {
		return models.Plan{}, false
	}
	f := Filters{PlanType: planType}
	plans := f.relevantPlans(isp)
	if len(plans) == 0 {
		return isp.Plans[0], true
	}
	best := plans[0]
	for _, p := range plans[1:] {
		if p.Price < best.Price {
			best = p
		}
	}
	return best, true
}
