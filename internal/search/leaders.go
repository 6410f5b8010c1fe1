package search

import "github.com/ispfinder/ispfinder/internal/models"

// CoverageBand is the coverage-map category of a city.
type CoverageBand string

const (
	BandExcellent CoverageBand = "excellent"
	BandStrong    CoverageBand = "strong"
	BandFair      CoverageBand = "fair"
	BandWeak      CoverageBand = "weak"
)

// BandFor maps a coverage percentage to its band.
func BandFor(percentage float64) CoverageBand {
	switch {
	case percentage >= 90:
		return BandExcellent
	case percentage >= 75:
		return BandStrong
	case percentage >= 60:
		return BandFair
	default:
		return BandWeak
	}
}

// CityLeader summarizes which ISP covers a city best.
type CityLeader struct {
	City       models.City  `json:"city"`
	ISPCount   int          `json:"isp_count"`
	Leader     *models.ISP  `json:"leader"`
	Percentage float64      `json:"coverage_percentage"`
	Band       CoverageBand `json:"band"`
}

// CityLeaders returns, in city order, the top-coverage ISP of every city that
// at least one ISP serves. The first ISP in catalog order wins ties.
func CityLeaders(cities []models.City, isps []models.ISP) []CityLeader {
	var leaders []CityLeader
	for _, city := range cities {
		entry := CityLeader{City: city, Percentage: -1}
		for i := range isps {
			coverage, ok := isps[i].CoverageFor(city.ID)
			if !ok {
				continue
			}
			entry.ISPCount++
			if coverage.Percentage > entry.Percentage {
				entry.Leader = &isps[i]
				entry.Percentage = coverage.Percentage
			}
		}
		if entry.ISPCount == 0 {
			continue
		}
		entry.Band = BandFor(entry.Percentage)
		leaders = append(leaders, entry)
	}
	return leaders
}
