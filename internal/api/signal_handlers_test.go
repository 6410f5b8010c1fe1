package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ispfinder/ispfinder/internal/events"
	"github.com/ispfinder/ispfinder/internal/models"
	"github.com/ispfinder/ispfinder/internal/signals"
)

func TestGeolocationResolvesCity(t *testing.T) {
	env := newTestEnv(t)
	env.geo.result = signals.GeoResult{
		Data: models.GeolocationData{
			IP:        "103.10.28.1",
			City:      "Kathmandu",
			Latitude:  27.71,
			Longitude: 85.32,
			Security:  &models.SecurityInfo{IsTor: true},
		},
	}

	rec := env.do(t, http.MethodGet, "/api/geolocation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[GeolocationResponse](t, rec)
	if !body.Matched || body.Resolution.City.ID != "ktm" {
		t.Fatalf("resolution = %+v, want ktm", body.Resolution)
	}
	if !body.Suspicious || !strings.Contains(body.SecurityWarning, "Tor") {
		t.Errorf("expected Tor warning, got suspicious=%v warning=%q", body.Suspicious, body.SecurityWarning)
	}
}

func TestGeolocationErrorStatus(t *testing.T) {
	tests := []struct {
		reason signals.GeoReason
		status int
	}{
		{signals.ReasonConfig, http.StatusServiceUnavailable},
		{signals.ReasonInvalidKey, http.StatusBadGateway},
		{signals.ReasonQuotaExceeded, http.StatusBadGateway},
		{signals.ReasonNetwork, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			env := newTestEnv(t)
			env.geo.err = &signals.GeoError{Reason: tt.reason}

			rec := env.do(t, http.MethodGet, "/api/geolocation", "")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if body := decode[ErrorResponse](t, rec); body.Reason != string(tt.reason) {
				t.Errorf("reason = %q, want %q", body.Reason, tt.reason)
			}
		})
	}
}

func TestCityStatusPublishes(t *testing.T) {
	env := newTestEnv(t)
	env.status.statuses = []models.IspStatus{
		{ISPID: "valley-net", Status: models.StatusOperational},
	}

	rec := env.do(t, http.MethodGet, "/api/cities/ktm/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[StatusResponse](t, rec)
	if body.CityID != "ktm" || body.Count != 1 {
		t.Errorf("unexpected body %+v", body)
	}

	published := env.publisher.published()
	if len(published) != 1 || published[0].kind != events.KindStatus || published[0].cityID != "ktm" {
		t.Errorf("published = %+v, want one status event for ktm", published)
	}

	if rec := env.do(t, http.MethodGet, "/api/cities/atlantis/status", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown city status = %d, want 404", rec.Code)
	}
}

type blockingStatus struct {
	calls   atomic.Int32
	started chan struct{}
}

func (b *blockingStatus) FetchIspStatusForCity(ctx context.Context, cityID string) ([]models.IspStatus, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []models.IspStatus{}, nil
}

func TestCityStatusNewerRequestSupersedesOlder(t *testing.T) {
	env := newTestEnv(t)
	blocking := &blockingStatus{started: make(chan struct{})}
	env.handler.status = blocking

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- env.do(t, http.MethodGet, "/api/cities/ktm/status", "")
	}()

	select {
	case <-blocking.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first status fetch did not start")
	}

	second := env.do(t, http.MethodGet, "/api/cities/pkr/status", "")
	if second.Code != http.StatusOK {
		t.Errorf("newer request status = %d, want 200", second.Code)
	}

	select {
	case rec := <-first:
		if rec.Code != http.StatusConflict {
			t.Errorf("superseded request status = %d, want 409", rec.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request never returned")
	}

	published := env.publisher.published()
	if len(published) != 1 || published[0].cityID != "pkr" {
		t.Errorf("published = %+v, want only the pkr snapshot", published)
	}
}

func TestRunSpeedTest(t *testing.T) {
	env := newTestEnv(t)
	env.speedTest.result = models.SpeedTestResult{ID: "run-1", DownloadMbps: 88.4, UploadMbps: 30.2, PingMs: 14.1}

	rec := env.do(t, http.MethodPost, "/api/cities/ktm/speedtest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[models.SpeedTestResult](t, rec)
	if result.DownloadMbps != 88.4 || result.CityID != "ktm" {
		t.Errorf("unexpected result %+v", result)
	}

	published := env.publisher.published()
	if len(published) != 1 || published[0].kind != events.KindSpeedTest {
		t.Errorf("published = %+v, want one speedtest event", published)
	}
}

func TestRunSpeedTestErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"busy", signals.ErrBusy, http.StatusConflict},
		{"unreachable", &signals.SpeedTestError{Phase: signals.PhasePing, Unreachable: true, Err: errors.New("dial tcp: refused")}, http.StatusBadGateway},
		{"failed", &signals.SpeedTestError{Phase: signals.PhaseUpload, Err: errors.New("reset")}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.speedTest.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/cities/ktm/speedtest", "")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if strings.Contains(rec.Body.String(), "refused") || strings.Contains(rec.Body.String(), "boom") {
				t.Errorf("internal error detail leaked: %s", rec.Body.String())
			}
			if n := len(env.publisher.published()); n != 0 {
				t.Errorf("failed run published %d events", n)
			}
		})
	}
}

func TestSpeedTestStream(t *testing.T) {
	env := newTestEnv(t)
	env.speedTest.phases = []signals.Phase{signals.PhaseLocating, signals.PhasePing, signals.PhaseDownload, signals.PhaseUpload}
	env.speedTest.result = models.SpeedTestResult{ID: "run-2", DownloadMbps: 50}

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cities/pkr/speedtest/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var frames []SpeedTestMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg SpeedTestMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		frames = append(frames, msg)
	}

	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 4 progress and 1 result: %+v", len(frames), frames)
	}
	for i, phase := range env.speedTest.phases {
		if frames[i].Type != "progress" || frames[i].Progress.Phase != phase {
			t.Errorf("frame %d = %+v, want progress %s", i, frames[i], phase)
		}
	}
	last := frames[4]
	if last.Type != "result" || last.Result.ID != "run-2" || last.Result.CityID != "pkr" {
		t.Errorf("last frame = %+v, want result run-2 for pkr", last)
	}
}

func TestSpeedTestStreamReportsError(t *testing.T) {
	env := newTestEnv(t)
	env.speedTest.err = signals.ErrBusy

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cities/ktm/speedtest/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg SpeedTestMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" || msg.Error == nil || msg.Error.Error != signals.ErrBusy.Error() {
		t.Errorf("frame = %+v, want busy error", msg)
	}
}

func TestSpeedTestStreamRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.handler.upgrader.CheckOrigin = originChecker([]string{"https://isp.example"})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cities/ktm/speedtest/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake response = %v, want 403", resp)
	}
}
