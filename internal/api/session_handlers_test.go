package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/ispfinder/ispfinder/internal/session"
)

func TestFavorites(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/session/favorites/valley-net", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if state := decode[session.State](t, rec); len(state.Favorites) != 1 || state.Favorites[0] != "valley-net" {
		t.Errorf("favorites = %v, want [valley-net]", state.Favorites)
	}

	if rec := env.do(t, http.MethodPut, "/api/session/favorites/ghost-isp", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown isp status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/session/favorites/valley-net", "")
	if state := decode[session.State](t, rec); len(state.Favorites) != 0 {
		t.Errorf("favorites after delete = %v, want none", state.Favorites)
	}
}

func TestComparisonThreeThenFourth(t *testing.T) {
	env := newTestEnv(t)

	adds := []struct {
		body  string
		added bool
		size  int
	}{
		{`{"ispId":"himalayan-fiber","cityId":"ktm"}`, true, 1},
		{`{"ispId":"himalayan-fiber","cityId":"ktm"}`, false, 1},
		{`{"ispId":"valley-net","cityId":"ktm"}`, true, 2},
		{`{"ispId":"everest-broadband","cityId":"ktm","planId":"eb-dsl-20"}`, true, 3},
		{`{"ispId":"terai-wireless","cityId":"btl"}`, false, 3},
	}

	for i, add := range adds {
		rec := env.do(t, http.MethodPost, "/api/session/comparison", add.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("add %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
		resp := decode[ComparisonResponse](t, rec)
		if resp.Added != add.added {
			t.Errorf("add %d added = %v, want %v", i, resp.Added, add.added)
		}
		if len(resp.State.Comparison) != add.size {
			t.Errorf("add %d size = %d, want %d", i, len(resp.State.Comparison), add.size)
		}
	}

	state := env.handler.session.Snapshot()
	first := state.Comparison[0]
	if first.Plan.ID != "hf-home-100" || first.Coverage.Percentage != 92 {
		t.Errorf("first item = %s at %v%%, want hf-home-100 at 92%%", first.Plan.ID, first.Coverage.Percentage)
	}

	rec := env.do(t, http.MethodGet, "/api/session/comparison/report", "")
	report := decode[session.Report](t, rec)
	if report.Winners.Price != "everest-broadband" {
		t.Errorf("price winner = %q, want everest-broadband", report.Winners.Price)
	}
	if report.Winners.Speed != "himalayan-fiber" || report.Winners.Coverage != "himalayan-fiber" {
		t.Errorf("speed/coverage winners = %q/%q, want himalayan-fiber", report.Winners.Speed, report.Winners.Coverage)
	}
	if report.Share != "compare=himalayan-fiber,valley-net,everest-broadband" {
		t.Errorf("share = %q", report.Share)
	}

	rec = env.do(t, http.MethodGet, "/api/session/comparison/export", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q, want text/plain", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "=== ISP COMPARISON ===") || !strings.Contains(rec.Body.String(), "1. Himalayan Fiber") {
		t.Errorf("unexpected export:\n%s", rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/api/session/comparison/valley-net", "")
	if state := decode[session.State](t, rec); len(state.Comparison) != 2 {
		t.Errorf("size after remove = %d, want 2", len(state.Comparison))
	}

	rec = env.do(t, http.MethodDelete, "/api/session/comparison", "")
	if state := decode[session.State](t, rec); len(state.Comparison) != 0 {
		t.Errorf("size after clear = %d, want 0", len(state.Comparison))
	}
}

func TestComparisonRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing isp", `{"cityId":"ktm"}`, http.StatusBadRequest},
		{"missing city", `{"ispId":"valley-net"}`, http.StatusBadRequest},
		{"unknown isp", `{"ispId":"ghost","cityId":"ktm"}`, http.StatusNotFound},
		{"unknown city", `{"ispId":"valley-net","cityId":"atlantis"}`, http.StatusNotFound},
		{"city not served", `{"ispId":"terai-wireless","cityId":"ktm"}`, http.StatusBadRequest},
		{"unknown plan", `{"ispId":"valley-net","cityId":"ktm","planId":"hf-home-100"}`, http.StatusBadRequest},
		{"unknown field", `{"ispId":"valley-net","cityId":"ktm","extra":1}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/session/comparison", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	if n := len(env.handler.session.Comparison()); n != 0 {
		t.Errorf("comparison changed by rejected requests: %d items", n)
	}
}

func TestRecentSearches(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"ktm", "pkr", "ktm"} {
		rec := env.do(t, http.MethodPost, "/api/session/recents", `{"cityId":"`+id+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("add %s status = %d", id, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/session", "")
	state := decode[session.State](t, rec)
	if len(state.RecentSearches) != 2 {
		t.Fatalf("recents = %+v, want 2 entries", state.RecentSearches)
	}
	if state.RecentSearches[0].CityID != "ktm" || state.RecentSearches[0].CityName != "Kathmandu" {
		t.Errorf("most recent = %+v, want Kathmandu", state.RecentSearches[0])
	}
	if state.RecentSearches[0].Timestamp == "" {
		t.Error("expected timestamp to be filled")
	}

	if rec := env.do(t, http.MethodPost, "/api/session/recents", `{"cityId":"atlantis"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown city status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/session/recents", "")
	if state := decode[session.State](t, rec); len(state.RecentSearches) != 0 {
		t.Errorf("recents after clear = %v", state.RecentSearches)
	}
}

func TestSetPlanTypeRejectsUnknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/session/plan-type", `{"planType":"enterprise"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := env.handler.session.PlanType(); got != "residential" {
		t.Errorf("plan type = %q, want residential", got)
	}
}
