package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/metrics"
)

// NewRouter wires every route and wraps the router with request metrics,
// CORS, access logging and panic recovery.
func NewRouter(h *Handler, collector *metrics.Collector, corsCfg config.CORSConfig, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(collector.InstrumentHandler)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Catalog
	api.HandleFunc("/cities", h.ListCities).Methods(http.MethodGet)
	api.HandleFunc("/cities/leaders", h.CityLeaders).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id}", h.GetCity).Methods(http.MethodGet)
	api.HandleFunc("/isps", h.ListISPs).Methods(http.MethodGet)
	api.HandleFunc("/isps/{id}", h.GetISP).Methods(http.MethodGet)
	api.HandleFunc("/resolve", h.Resolve).Methods(http.MethodPost)

	// Signals
	api.HandleFunc("/geolocation", h.Geolocation).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id}/status", h.CityStatus).Methods(http.MethodGet)
	api.HandleFunc("/cities/{id}/speedtest", h.RunSpeedTest).Methods(http.MethodPost)
	api.HandleFunc("/cities/{id}/speedtest/ws", h.SpeedTestStream).Methods(http.MethodGet)

	// Session
	api.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/favorites/{ispId}", h.AddFavorite).Methods(http.MethodPut)
	api.HandleFunc("/session/favorites/{ispId}", h.RemoveFavorite).Methods(http.MethodDelete)
	api.HandleFunc("/session/comparison", h.AddToComparison).Methods(http.MethodPost)
	api.HandleFunc("/session/comparison", h.ClearComparison).Methods(http.MethodDelete)
	api.HandleFunc("/session/comparison/report", h.ComparisonReport).Methods(http.MethodGet)
	api.HandleFunc("/session/comparison/export", h.ExportComparison).Methods(http.MethodGet)
	api.HandleFunc("/session/comparison/{ispId}", h.RemoveFromComparison).Methods(http.MethodDelete)
	api.HandleFunc("/session/recents", h.AddRecentSearch).Methods(http.MethodPost)
	api.HandleFunc("/session/recents", h.ClearRecentSearches).Methods(http.MethodDelete)
	api.HandleFunc("/session/plan-type", h.SetPlanType).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins: corsCfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding"},
	})

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)

	return recovery(handlers.CustomLoggingHandler(io.Discard, c.Handler(r), accessLog(logger)))
}

// accessLog writes one slog record per request in place of the Apache
// format the handlers package prints by default.
func accessLog(logger *slog.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		logger.Info("http request",
			"method", p.Request.Method,
			"path", p.URL.Path,
			"status", p.StatusCode,
			"bytes", p.Size,
			"duration_ms", time.Since(p.TimeStamp).Milliseconds(),
			"remote_addr", p.Request.RemoteAddr,
		)
	}
}

// recoveryLogger routes recovered panics to slog.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("recovered from panic", "panic", v)
}
