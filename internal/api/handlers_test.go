package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ispfinder/ispfinder/internal/catalog"
	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/events"
	"github.com/ispfinder/ispfinder/internal/logging"
	"github.com/ispfinder/ispfinder/internal/metrics"
	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/ispfinder/ispfinder/internal/signals"
)

type fakeGeolocator struct {
	result signals.GeoResult
	err    error
}

func (f *fakeGeolocator) Lookup(context.Context) (signals.GeoResult, error) {
	return f.result, f.err
}

type fakeStatus struct {
	statuses []models.IspStatus
	err      error
}

func (f *fakeStatus) FetchIspStatusForCity(_ context.Context, cityID string) ([]models.IspStatus, error) {
	return f.statuses, f.err
}

type fakeSpeedTest struct {
	phases []signals.Phase
	result models.SpeedTestResult
	err    error
}

func (f *fakeSpeedTest) Run(_ context.Context, cityID string, progress signals.ProgressFunc) (models.SpeedTestResult, error) {
	if progress != nil {
		for _, phase := range f.phases {
			progress(signals.Progress{Phase: phase})
		}
	}
	if f.err != nil {
		return models.SpeedTestResult{}, f.err
	}
	result := f.result
	result.CityID = cityID
	return result, nil
}

type publishedEvent struct {
	kind   events.Kind
	cityID string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, kind events.Kind, cityID string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: kind, cityID: cityID})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type testEnv struct {
	router    http.Handler
	handler   *Handler
	geo       *fakeGeolocator
	status    *fakeStatus
	speedTest *fakeSpeedTest
	publisher *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := catalog.Seed()
	if err != nil {
		t.Fatalf("catalog.Seed() error = %v", err)
	}
	collector, err := metrics.NewCollector()
	if err != nil {
		t.Fatalf("metrics.NewCollector() error = %v", err)
	}

	env := &testEnv{
		geo:       &fakeGeolocator{},
		status:    &fakeStatus{statuses: []models.IspStatus{}},
		speedTest: &fakeSpeedTest{},
		publisher: &fakePublisher{},
	}
	env.handler = NewHandler(Services{
		Catalog:        store,
		Geolocation:    env.geo,
		Status:         env.status,
		SpeedTest:      env.speedTest,
		Publisher:      env.publisher,
		AllowedOrigins: []string{"*"},
	}, logging.Discard())
	env.router = NewRouter(env.handler, collector, config.CORSConfig{AllowedOrigins: []string{"*"}}, logging.Discard())
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]interface{}](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["isps"] != float64(4) {
		t.Errorf("isps = %v, want 4", body["isps"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/cities", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `path="/api/cities"`) {
		t.Errorf("expected request metric for /api/cities, got:\n%s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/session/plan-type", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
