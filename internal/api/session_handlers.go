package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/ispfinder/ispfinder/internal/search"
	"github.com/ispfinder/ispfinder/internal/session"
)

// ComparisonRequest adds an ISP offer to the comparison. Without a plan id
// the best plan for the session plan type is used.
type ComparisonRequest struct {
	ISPID  string `json:"ispId"`
	PlanID string `json:"planId,omitempty"`
	CityID string `json:"cityId"`
}

// ComparisonResponse reports whether an add changed the comparison.
type ComparisonResponse struct {
	Added bool          `json:"added"`
	State session.State `json:"state"`
}

type recentSearchRequest struct {
	CityID string `json:"cityId"`
}

type planTypeRequest struct {
	PlanType models.PlanType `json:"planType"`
}

// GetSession handles GET /api/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// AddFavorite handles PUT /api/session/favorites/{ispId}
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	isp, err := h.catalog.ISP(mux.Vars(r)["ispId"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.AddFavorite(isp.ID))
}

// RemoveFavorite handles DELETE /api/session/favorites/{ispId}
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.RemoveFavorite(mux.Vars(r)["ispId"]))
}

// AddToComparison handles POST /api/session/comparison
// A full comparison or a repeated ISP is not an error; Added is false.
func (h *Handler) AddToComparison(w http.ResponseWriter, r *http.Request) {
	var req ComparisonRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeFailure(w, err)
		return
	}
	if req.ISPID == "" {
		h.writeFailure(w, search.ValidationError{Field: "ispId", Message: "is required"})
		return
	}
	if req.CityID == "" {
		h.writeFailure(w, search.ValidationError{Field: "cityId", Message: "is required"})
		return
	}

	isp, err := h.catalog.ISP(req.ISPID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if _, err := h.catalog.City(req.CityID); err != nil {
		h.writeFailure(w, err)
		return
	}

	coverage, ok := isp.CoverageFor(req.CityID)
	if !ok {
		h.writeFailure(w, search.ValidationError{Field: "cityId", Message: isp.Name + " does not serve this city"})
		return
	}

	var plan models.Plan
	if req.PlanID != "" {
		plan, ok = isp.PlanByID(req.PlanID)
		if !ok {
			h.writeFailure(w, search.ValidationError{Field: "planId", Message: "unknown plan " + req.PlanID})
			return
		}
	} else {
		plan, ok = search.BestPlan(isp, h.session.PlanType())
		if !ok {
			h.writeFailure(w, search.ValidationError{Field: "planId", Message: isp.Name + " has no plans"})
			return
		}
	}

	state, added := h.session.AddToComparison(models.NewComparisonItem(isp, plan, coverage))
	if !added {
		h.logger.Info("comparison add ignored", "isp_id", isp.ID, "comparison_size", len(state.Comparison))
	}
	writeJSON(w, http.StatusOK, ComparisonResponse{Added: added, State: state})
}

// RemoveFromComparison handles DELETE /api/session/comparison/{ispId}
func (h *Handler) RemoveFromComparison(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.RemoveFromComparison(mux.Vars(r)["ispId"]))
}

// ClearComparison handles DELETE /api/session/comparison
func (h *Handler) ClearComparison(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.ClearComparison())
}

// ComparisonReport handles GET /api/session/comparison/report
func (h *Handler) ComparisonReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.BuildReport(h.session.Comparison()))
}

// ExportComparison handles GET /api/session/comparison/export
func (h *Handler) ExportComparison(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="isp-comparison.txt"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(session.ExportText(h.session.Comparison())))
}

// AddRecentSearch handles POST /api/session/recents
func (h *Handler) AddRecentSearch(w http.ResponseWriter, r *http.Request) {
	var req recentSearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeFailure(w, err)
		return
	}

	city, err := h.catalog.City(req.CityID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.session.AddRecentSearch(models.RecentSearch{
		CityID:   city.ID,
		CityName: city.Name,
	}))
}

// ClearRecentSearches handles DELETE /api/session/recents
func (h *Handler) ClearRecentSearches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.ClearRecentSearches())
}

// SetPlanType handles PUT /api/session/plan-type
func (h *Handler) SetPlanType(w http.ResponseWriter, r *http.Request) {
	var req planTypeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeFailure(w, err)
		return
	}

	state, err := h.session.SetPlanType(req.PlanType)
	if err != nil {
		h.writeFailure(w, search.ValidationError{Field: "planType", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}
