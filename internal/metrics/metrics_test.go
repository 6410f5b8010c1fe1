package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestCollectorRecordsRouteTemplate(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	router := mux.NewRouter()
	router.Use(collector.InstrumentHandler)
	router.HandleFunc("/api/cities/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/cities/ktm", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `ispfinder_http_requests_total{method="GET",path="/api/cities/{id}",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `ispfinder_http_request_duration_seconds_count{method="GET",path="/api/cities/{id}",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorFallsBackToRawPath(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handler := collector.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	body := scrape(t, collector)
	if !strings.Contains(body, `ispfinder_http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("raw path not recorded, body=%q", body)
	}
}

func TestObserveFetchAndSpeedTest(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveFetch("geolocation", "degraded")
	collector.ObserveFetch("geolocation", "degraded")
	collector.ObserveSpeedTest(3 * time.Second)

	body := scrape(t, collector)
	if !strings.Contains(body, `ispfinder_signals_fetch_total{adapter="geolocation",outcome="degraded"} 2`) {
		t.Fatalf("fetch counter not recorded, body=%q", body)
	}
	if !strings.Contains(body, `ispfinder_signals_speedtest_duration_seconds_count 1`) {
		t.Fatalf("speed test histogram not recorded, body=%q", body)
	}
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}
