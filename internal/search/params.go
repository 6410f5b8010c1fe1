package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ispfinder/ispfinder/internal/models"
)

// ValidationError reports a malformed query parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseFilters builds filters and a sort mode from URL query parameters.
// Missing parameters keep their defaults; an unknown sort falls back to
// relevance.
func ParseFilters(query url.Values) (Filters, SortMode, error) {
	f := DefaultFilters()

	numbers := []struct {
		key    string
		target *float64
	}{
		{"minPrice", &f.PriceMin},
		{"maxPrice", &f.PriceMax},
		{"minSpeed", &f.MinSpeed},
		{"minCoverage", &f.MinCoverage},
	}
	for _, n := range numbers {
		raw := strings.TrimSpace(query.Get(n.key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return Filters{}, "", ValidationError{Field: n.key, Message: "must be a non-negative number"}
		}
		*n.target = v
	}

	if f.PriceMin > f.PriceMax {
		return Filters{}, "", ValidationError{Field: "minPrice", Message: "must not exceed maxPrice"}
	}
	if f.MinCoverage > 100 {
		return Filters{}, "", ValidationError{Field: "minCoverage", Message: "must be at most 100"}
	}

	if raw := query.Get("types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c := models.ConnectionType(part)
			if !c.Valid() {
				return Filters{}, "", ValidationError{Field: "types", Message: fmt.Sprintf("unknown connection type %q", part)}
			}
			if !f.wantsConnection(c) {
				f.ConnectionTypes = append(f.ConnectionTypes, c)
			}
		}
	}

	if raw := query.Get("planType"); raw != "" {
		t := models.PlanType(raw)
		if !t.Valid() {
			return Filters{}, "", ValidationError{Field: "planType", Message: fmt.Sprintf("unknown plan type %q", raw)}
		}
		f.PlanType = t
	}

	mode := SortMode(query.Get("sort"))
	if !mode.Valid() {
		mode = SortRelevance
	}
	return f, mode, nil
}
