package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ispfinder/ispfinder/internal/geo"
	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/ispfinder/ispfinder/internal/search"
)

const citySuggestionLimit = 5

// CitiesResponse lists cities, either the whole catalog or suggestions.
type CitiesResponse struct {
	Cities []models.City `json:"cities"`
	Count  int           `json:"count"`
	Query  string        `json:"query,omitempty"`
}

// ISPsResponse is a ranked selection, for a city when one was given.
type ISPsResponse struct {
	City *models.City `json:"city,omitempty"`
	search.Result
	Filters   search.Filters         `json:"filters"`
	Sort      search.SortMode        `json:"sort"`
	BestPlans map[string]models.Plan `json:"best_plans"`
}

// ResolveResponse is the outcome of mapping a geolocation onto the catalog.
type ResolveResponse struct {
	Matched         bool            `json:"matched"`
	Resolution      *geo.Resolution `json:"resolution,omitempty"`
	Suspicious      bool            `json:"suspicious"`
	SecurityWarning string          `json:"security_warning,omitempty"`
}

// ListCities handles GET /api/cities
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		cities := h.catalog.Cities()
		writeJSON(w, http.StatusOK, CitiesResponse{Cities: cities, Count: len(cities)})
		return
	}

	cities := h.catalog.SuggestCities(q, citySuggestionLimit)
	if cities == nil {
		cities = []models.City{}
	}
	writeJSON(w, http.StatusOK, CitiesResponse{Cities: cities, Count: len(cities), Query: q})
}

// GetCity handles GET /api/cities/{id}
func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	city, err := h.catalog.City(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, city)
}

// CityLeaders handles GET /api/cities/leaders
func (h *Handler) CityLeaders(w http.ResponseWriter, r *http.Request) {
	leaders := search.CityLeaders(h.catalog.Cities(), h.catalog.ISPs())
	if leaders == nil {
		leaders = []search.CityLeader{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaders": leaders,
		"count":   len(leaders),
	})
}

// ListISPs handles GET /api/isps?city=...
// Without a planType parameter the session preference applies. Without a
// city the whole catalog is ranked and coverage counts as 0.
func (h *Handler) ListISPs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var city *models.City
	if cityID := query.Get("city"); cityID != "" {
		c, err := h.catalog.City(cityID)
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		city = &c
	}

	filters, mode, err := search.ParseFilters(query)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if query.Get("planType") == "" {
		filters.PlanType = h.session.PlanType()
	}

	var cityID string
	if city != nil {
		cityID = city.ID
	}
	result := search.Select(h.catalog.ISPs(), cityID, filters, mode)

	best := make(map[string]models.Plan, len(result.ISPs))
	for _, isp := range result.ISPs {
		if plan, ok := search.BestPlan(isp, filters.PlanType); ok {
			best[isp.ID] = plan
		}
	}

	h.logger.Debug("isps selected",
		"city_id", cityID,
		"sort", mode,
		"count", result.Count,
		"active_filters", result.ActiveFilters,
	)

	writeJSON(w, http.StatusOK, ISPsResponse{
		City:      city,
		Result:    result,
		Filters:   filters,
		Sort:      mode,
		BestPlans: best,
	})
}

// GetISP handles GET /api/isps/{id}
func (h *Handler) GetISP(w http.ResponseWriter, r *http.Request) {
	isp, err := h.catalog.ISP(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, isp)
}

// Resolve handles POST /api/resolve
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var loc models.GeolocationData
	if err := decodeBody(w, r, &loc); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.resolve(loc))
}

func (h *Handler) resolve(loc models.GeolocationData) ResolveResponse {
	resp := ResolveResponse{
		Suspicious:      geo.IsSuspicious(loc),
		SecurityWarning: geo.SecurityWarning(loc),
	}
	if res, ok := geo.Resolve(loc, h.catalog.Cities()); ok {
		resp.Matched = true
		resp.Resolution = &res
	}
	return resp
}
