package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ispfinder"

// Collector exposes Prometheus metrics for inbound HTTP requests and for the
// outcomes of external signal fetches.
type Collector struct {
	registry          *prometheus.Registry
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	fetchTotal        *prometheus.CounterVec
	speedTestDuration prometheus.Histogram
}

// NewCollector constructs a collector with its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	fetchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "fetch_total",
		Help:      "External signal fetches by adapter and outcome.",
	}, []string{"adapter", "outcome"})

	speedTestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "speedtest_duration_seconds",
		Help:      "Wall time of completed speed tests.",
		Buckets:   []float64{1, 2, 5, 10, 20, 40, 80},
	})

	for _, c := range []prometheus.Collector{requestDuration, requestTotal, fetchTotal, speedTestDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:          registry,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		fetchTotal:        fetchTotal,
		speedTestDuration: speedTestDuration,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one adapter call. Outcome is "ok", "degraded" or an
// error reason.
func (c *Collector) ObserveFetch(adapter, outcome string) {
	c.fetchTotal.WithLabelValues(adapter, outcome).Inc()
}

// ObserveSpeedTest records the duration of a finished speed test.
func (c *Collector) ObserveSpeedTest(d time.Duration) {
	c.speedTestDuration.Observe(d.Seconds())
}

// InstrumentHandler wraps the provided handler to record HTTP metrics. The
// path label uses the matched route template so ids do not explode cardinality.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := routeTemplate(r)

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the wrapped writer; the speed-test websocket needs it.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
