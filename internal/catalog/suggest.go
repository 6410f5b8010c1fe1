package catalog

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ispfinder/ispfinder/internal/models"
)

const (
	// DefaultSuggestions is how many cities the search box shows.
	DefaultSuggestions = 5
	maxTypoDistance    = 2
)

// SuggestCities returns up to limit cities whose "Name, State" contains the
// query, ignoring case. When nothing contains it, cities whose name is within
// a small edit distance of the query are returned, closest first.
func (s *Store) SuggestCities(query string, limit int) []models.City {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}

	var matches []models.City
	for _, city := range s.cities {
		if strings.Contains(strings.ToLower(city.DisplayName()), q) {
			matches = append(matches, city)
			if len(matches) == limit {
				return matches
			}
		}
	}
	if len(matches) > 0 {
		return matches
	}

	type candidate struct {
		city     models.City
		distance int
	}
	var candidates []candidate
	for _, city := range s.cities {
		d := levenshtein.ComputeDistance(q, strings.ToLower(city.Name))
		if d <= maxTypoDistance {
			candidates = append(candidates, candidate{city: city, distance: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	for _, c := range candidates {
		matches = append(matches, c.city)
		if len(matches) == limit {
			break
		}
	}
	return matches
}
