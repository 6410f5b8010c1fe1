// Package api exposes the catalog, selection session and signal adapters over
// HTTP.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ispfinder/ispfinder/internal/catalog"
	"github.com/ispfinder/ispfinder/internal/database"
	"github.com/ispfinder/ispfinder/internal/events"
	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/ispfinder/ispfinder/internal/search"
	"github.com/ispfinder/ispfinder/internal/session"
	"github.com/ispfinder/ispfinder/internal/signals"
)

// Geolocator looks up the location of the current connection.
type Geolocator interface {
	Lookup(ctx context.Context) (signals.GeoResult, error)
}

// StatusFetcher reports service status for the ISPs of a city.
type StatusFetcher interface {
	FetchIspStatusForCity(ctx context.Context, cityID string) ([]models.IspStatus, error)
}

// SpeedTestRunner runs one speed test at a time.
type SpeedTestRunner interface {
	Run(ctx context.Context, cityID string, progress signals.ProgressFunc) (models.SpeedTestResult, error)
}

// Services are the collaborators the handlers are built from. DB is optional
// and only used for health reporting.
type Services struct {
	Catalog     *catalog.Store
	Session     *session.Session
	Geolocation Geolocator
	Status      StatusFetcher
	SpeedTest   SpeedTestRunner
	Publisher   events.Publisher
	DB          *sql.DB

	// AllowedOrigins gates WebSocket upgrades the way CORS gates requests.
	AllowedOrigins []string
}

// Handler serves every API route.
type Handler struct {
	catalog   *catalog.Store
	session   *session.Session
	geo       Geolocator
	status    StatusFetcher
	speedTest SpeedTestRunner
	publisher events.Publisher
	db        *sql.DB
	logger    *slog.Logger
	startTime time.Time
	upgrader  websocket.Upgrader

	// statusFetch lets a newer status request supersede an older one.
	statusFetch signals.Latest
}

func NewHandler(svc Services, logger *slog.Logger) *Handler {
	publisher := svc.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	sess := svc.Session
	if sess == nil {
		sess = session.New()
	}
	return &Handler{
		catalog:   svc.Catalog,
		session:   sess,
		geo:       svc.Geolocation,
		status:    svc.Status,
		speedTest: svc.SpeedTest,
		publisher: publisher,
		db:        svc.DB,
		logger:    logger,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(svc.AllowedOrigins),
		},
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"cities":         len(h.catalog.Cities()),
		"isps":           len(h.catalog.ISPs()),
	}

	status := http.StatusOK
	if h.db != nil {
		health, err := database.CheckHealth(r.Context(), h.db)
		if err != nil {
			h.logger.Warn("database health check failed", "error", err)
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = health
		}
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeFailure maps err to a status code and error body.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status, body := h.classify(err)
	if status == http.StatusRequestTimeout {
		// Client went away; nobody is listening for the body.
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, body)
}

// classify maps typed errors to an HTTP status. Unknown errors are logged
// and reported without detail.
func (h *Handler) classify(err error) (int, ErrorResponse) {
	var (
		geoErr        *signals.GeoError
		speedErr      *signals.SpeedTestError
		validationErr search.ValidationError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorResponse{Error: validationErr.Error()}
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, signals.ErrBusy), errors.Is(err, signals.ErrSuperseded):
		return http.StatusConflict, ErrorResponse{Error: err.Error()}
	case errors.As(err, &geoErr):
		status := http.StatusBadGateway
		if geoErr.Reason == signals.ReasonConfig {
			status = http.StatusServiceUnavailable
		}
		return status, ErrorResponse{Error: geoErr.Error(), Reason: string(geoErr.Reason)}
	case errors.As(err, &speedErr):
		return http.StatusBadGateway, ErrorResponse{Error: speedErr.Error(), Reason: string(speedErr.Phase)}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, ErrorResponse{Error: err.Error()}
	default:
		h.logger.Error("request failed", "error", err)
		return http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return search.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// publish sends a snapshot to the event sink. Failures are logged only; a
// broker outage never fails the request.
func (h *Handler) publish(ctx context.Context, kind events.Kind, cityID string, payload interface{}) {
	if err := h.publisher.Publish(context.WithoutCancel(ctx), kind, cityID, payload); err != nil {
		h.logger.Warn("failed to publish event", "kind", kind, "city_id", cityID, "error", err)
	}
}
