package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ispfinder/ispfinder/internal/events"
	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/ispfinder/ispfinder/internal/signals"
)

const wsWriteWait = 10 * time.Second

// GeolocationResponse is the caller's location with its catalog resolution.
type GeolocationResponse struct {
	Geolocation models.GeolocationData `json:"geolocation"`
	Degraded    bool                   `json:"degraded"`
	ResolveResponse
}

// StatusResponse lists the service status of every ISP serving a city.
type StatusResponse struct {
	CityID   string             `json:"city_id"`
	Statuses []models.IspStatus `json:"statuses"`
	Count    int                `json:"count"`
}

// SpeedTestMessage is one frame of the speed test stream. Type is
// "progress", "result" or "error".
type SpeedTestMessage struct {
	Type     string                  `json:"type"`
	Progress *signals.Progress       `json:"progress,omitempty"`
	Result   *models.SpeedTestResult `json:"result,omitempty"`
	Error    *ErrorResponse          `json:"error,omitempty"`
}

// Geolocation handles GET /api/geolocation
func (h *Handler) Geolocation(w http.ResponseWriter, r *http.Request) {
	result, err := h.geo.Lookup(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GeolocationResponse{
		Geolocation:     result.Data,
		Degraded:        result.Degraded,
		ResolveResponse: h.resolve(result.Data),
	})
}

// CityStatus handles GET /api/cities/{id}/status
// A newer request supersedes one still in flight; the older one gets 409.
func (h *Handler) CityStatus(w http.ResponseWriter, r *http.Request) {
	city, err := h.catalog.City(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	ctx, finish := h.statusFetch.Begin(r.Context())
	statuses, err := h.status.FetchIspStatusForCity(ctx, city.ID)
	if superseded := finish(); superseded != nil {
		h.logger.Debug("status fetch superseded", "city_id", city.ID)
		err = superseded
	}
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.publish(r.Context(), events.KindStatus, city.ID, statuses)
	writeJSON(w, http.StatusOK, StatusResponse{CityID: city.ID, Statuses: statuses, Count: len(statuses)})
}

// RunSpeedTest handles POST /api/cities/{id}/speedtest
func (h *Handler) RunSpeedTest(w http.ResponseWriter, r *http.Request) {
	city, err := h.catalog.City(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	result, err := h.speedTest.Run(r.Context(), city.ID, nil)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.publish(r.Context(), events.KindSpeedTest, city.ID, result)
	writeJSON(w, http.StatusOK, result)
}

// SpeedTestStream handles GET /api/cities/{id}/speedtest/ws
// It streams progress frames and ends with a result or error frame. Closing
// the socket aborts the run.
func (h *Handler) SpeedTestStream(w http.ResponseWriter, r *http.Request) {
	city, err := h.catalog.City(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(msg SpeedTestMessage) {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			cancel()
		}
	}

	result, err := h.speedTest.Run(ctx, city.ID, func(p signals.Progress) {
		if p.Phase == signals.PhaseError {
			return
		}
		send(SpeedTestMessage{Type: "progress", Progress: &p})
	})
	if err != nil {
		_, body := h.classify(err)
		send(SpeedTestMessage{Type: "error", Error: &body})
	} else {
		send(SpeedTestMessage{Type: "result", Result: &result})
		h.publish(r.Context(), events.KindSpeedTest, city.ID, result)
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
