package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/models"
)

// Phase is a step of a speed test run.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLocating Phase = "locating-server"
	PhasePing     Phase = "measuring-ping"
	PhaseDownload Phase = "measuring-download"
	PhaseUpload   Phase = "measuring-upload"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

const (
	locateFailures = 3
	locateCooldown = time.Minute
)

// Progress is reported at every phase change.
type Progress struct {
	Phase        Phase   `json:"phase"`
	Server       string  `json:"server,omitempty"`
	PingMs       float64 `json:"ping_ms,omitempty"`
	JitterMs     float64 `json:"jitter_ms,omitempty"`
	DownloadMbps float64 `json:"download_mbps,omitempty"`
	UploadMbps   float64 `json:"upload_mbps,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// ProgressFunc receives progress updates. It is called synchronously from
// the goroutine running the test.
type ProgressFunc func(Progress)

// SpeedTestError reports the phase a run failed in. Unreachable is set when
// the measurement server could not be reached at all.
type SpeedTestError struct {
	Phase       Phase
	Unreachable bool
	Err         error
}

func (e *SpeedTestError) Error() string {
	if e.Unreachable {
		return "Unable to reach the speed test server. Check your internet connection and try again."
	}
	return fmt.Sprintf("Speed test failed while %s. Please try again.", strings.ReplaceAll(string(e.Phase), "-", " "))
}

func (e *SpeedTestError) Unwrap() error {
	return e.Err
}

// Server is the measurement endpoint a run talks to.
type Server struct {
	Hostname string `json:"hostname"`
	Site     string `json:"site,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
	BaseURL  string `json:"-"`
	Fallback bool   `json:"fallback"`
}

// locateResponse is the v2 nearest-server reply. urls maps a protocol
// template such as "wss:///ndt/v7/download" to the machine's access URL.
type locateResponse struct {
	Results []struct {
		Machine  string `json:"machine"`
		Location struct {
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"location"`
		URLs map[string]string `json:"urls"`
	} `json:"results"`
}

// SpeedTester measures latency and throughput against a nearby server.
// Runs do not overlap; starting one while another is active returns ErrBusy.
type SpeedTester struct {
	cfg            config.SpeedTestConfig
	isps           []models.ISP
	locateClient   *http.Client
	transferClient *http.Client
	breaker        *breaker
	busy           Busy
	logger         *slog.Logger
	recorder       Recorder
	now            func() time.Time
}

// NewSpeedTester creates a tester. isps is used to name the likely provider
// of the tested connection.
func NewSpeedTester(cfg config.SpeedTestConfig, isps []models.ISP, logger *slog.Logger, recorder Recorder) *SpeedTester {
	if cfg.PingSamples < 1 {
		cfg.PingSamples = 1
	}
	return &SpeedTester{
		cfg:            cfg,
		isps:           isps,
		locateClient:   &http.Client{Timeout: cfg.LocateTimeout},
		transferClient: &http.Client{Timeout: cfg.TransferTimeout},
		breaker:        newBreaker("speedtest-locate", locateFailures, locateCooldown, logger),
		logger:         logger,
		recorder:       recorderOrNop(recorder),
		now:            time.Now,
	}
}

// Running reports whether a test is in progress.
func (t *SpeedTester) Running() bool {
	return t.busy.Running()
}

// Run performs one speed test for cityID. progress may be nil.
func (t *SpeedTester) Run(ctx context.Context, cityID string, progress ProgressFunc) (models.SpeedTestResult, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	var result models.SpeedTestResult
	err := t.busy.Do(func() error {
		var runErr error
		result, runErr = t.run(ctx, cityID, progress)
		return runErr
	})
	if errors.Is(err, ErrBusy) {
		return models.SpeedTestResult{}, err
	}
	if err != nil {
		t.recorder.ObserveFetch("speedtest", outcomeError)
		t.logger.Warn("speed test failed", "city_id", cityID, "error", err)
		progress(Progress{Phase: PhaseError, Message: err.Error()})
		return models.SpeedTestResult{}, err
	}
	return result, nil
}

func (t *SpeedTester) run(ctx context.Context, cityID string, progress ProgressFunc) (models.SpeedTestResult, error) {
	started := t.now()

	progress(Progress{Phase: PhaseLocating})
	server := t.locate(ctx)
	outcome := outcomeOK
	if server.Fallback {
		outcome = outcomeFallback
	}

	progress(Progress{Phase: PhasePing, Server: server.Hostname})
	pingMs, jitterMs, err := t.measurePing(ctx, server)
	if err != nil && !server.Fallback && ctx.Err() == nil {
		// A located machine that cannot serve plain HTTP transfers counts
		// against the locate breaker like a failed lookup.
		t.breaker.Failure()
		t.logger.Warn("located server unusable, using fallback", "server", server.Hostname, "error", err)
		server = t.fallbackServer()
		outcome = outcomeFallback
		pingMs, jitterMs, err = t.measurePing(ctx, server)
	} else if err == nil && !server.Fallback {
		t.breaker.Success()
	}
	if err != nil {
		return models.SpeedTestResult{}, stageError(PhasePing, err)
	}

	progress(Progress{Phase: PhaseDownload, Server: server.Hostname, PingMs: pingMs, JitterMs: jitterMs})
	downloadMbps, err := t.measureDownload(ctx, server)
	if err != nil {
		return models.SpeedTestResult{}, stageError(PhaseDownload, err)
	}

	progress(Progress{Phase: PhaseUpload, Server: server.Hostname, PingMs: pingMs, JitterMs: jitterMs, DownloadMbps: downloadMbps})
	uploadMbps, err := t.measureUpload(ctx, server)
	if err != nil {
		return models.SpeedTestResult{}, stageError(PhaseUpload, err)
	}

	result := models.SpeedTestResult{
		ID:           uuid.NewString(),
		DownloadMbps: round1(downloadMbps),
		UploadMbps:   round1(uploadMbps),
		PingMs:       round1(pingMs),
		JitterMs:     round1(jitterMs),
		Timestamp:    t.now().UTC(),
		ISPName:      t.likelyISP(cityID),
		CityID:       cityID,
		Server:       server.Hostname,
	}

	progress(Progress{
		Phase:        PhaseComplete,
		Server:       server.Hostname,
		PingMs:       result.PingMs,
		JitterMs:     result.JitterMs,
		DownloadMbps: result.DownloadMbps,
		UploadMbps:   result.UploadMbps,
	})

	elapsed := t.now().Sub(started)
	t.recorder.ObserveFetch("speedtest", outcome)
	t.recorder.ObserveSpeedTest(elapsed)
	t.logger.Info("speed test completed",
		"city_id", cityID,
		"server", server.Hostname,
		"fallback", server.Fallback,
		"download_mbps", result.DownloadMbps,
		"upload_mbps", result.UploadMbps,
		"ping_ms", result.PingMs,
		"duration", elapsed)
	return result, nil
}

// likelyISP names the ISP with the widest coverage in the city. The first
// ISP in catalog order wins ties.
func (t *SpeedTester) likelyISP(cityID string) string {
	if cityID == "" {
		return ""
	}
	type candidate struct {
		name     string
		coverage float64
	}
	var candidates []candidate
	for i := range t.isps {
		if c, ok := t.isps[i].CoverageFor(cityID); ok {
			candidates = append(candidates, candidate{name: t.isps[i].Name, coverage: c.Percentage})
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].coverage > candidates[j].coverage
	})
	return candidates[0].name
}

// locate asks the locate service for the nearest server and falls back to
// the configured endpoint when that fails or the breaker is open. The
// breaker is credited by run once the located server answered a probe.
func (t *SpeedTester) locate(ctx context.Context) Server {
	if !t.breaker.Allow() {
		t.logger.Debug("locate skipped, breaker open")
		return t.fallbackServer()
	}

	server, err := t.fetchNearest(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.breaker.Failure()
		}
		t.logger.Warn("server locate failed, using fallback", "error", err)
		return t.fallbackServer()
	}
	return server
}

func (t *SpeedTester) fetchNearest(ctx context.Context) (Server, error) {
	locateURL, err := url.Parse(t.cfg.LocateURL)
	if err != nil {
		return Server{}, fmt.Errorf("parse locate url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locateURL.String(), nil)
	if err != nil {
		return Server{}, fmt.Errorf("create locate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.locateClient.Do(req)
	if err != nil {
		return Server{}, fmt.Errorf("locate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Server{}, fmt.Errorf("locate returned status %d", resp.StatusCode)
	}

	var body locateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Server{}, fmt.Errorf("decode locate response: %w", err)
	}
	if len(body.Results) == 0 {
		return Server{}, errors.New("locate returned no servers")
	}

	first := body.Results[0]
	hostname := hostFromURLs(first.URLs)
	if hostname == "" {
		hostname = first.Machine
	}
	if hostname == "" {
		return Server{}, errors.New("locate result has no hostname")
	}

	return Server{
		Hostname: hostname,
		Site:     siteFromMachine(first.Machine),
		City:     first.Location.City,
		Country:  first.Location.Country,
		BaseURL:  locateURL.Scheme + "://" + hostname,
	}, nil
}

// hostFromURLs returns the host of the first parseable access URL, taking
// the templates in sorted order so the choice is stable.
func hostFromURLs(urls map[string]string) string {
	keys := make([]string, 0, len(urls))
	for k := range urls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if u, err := url.Parse(urls[k]); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return ""
}

func (t *SpeedTester) fallbackServer() Server {
	base := strings.TrimRight(t.cfg.FallbackURL, "/")
	host := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		host = u.Host
	}
	return Server{Hostname: host, BaseURL: base, Fallback: true}
}

// siteFromMachine extracts "del01" from "mlab1-del01.mlab-oti.measurement-lab.org".
func siteFromMachine(machine string) string {
	label, _, _ := strings.Cut(machine, ".")
	_, site, ok := strings.Cut(label, "-")
	if !ok {
		return ""
	}
	return site
}

func (t *SpeedTester) measurePing(ctx context.Context, server Server) (float64, float64, error) {
	samples := make([]float64, 0, t.cfg.PingSamples)
	for i := 0; i < t.cfg.PingSamples; i++ {
		start := time.Now()
		if err := t.download(ctx, server, 0); err != nil {
			return 0, 0, err
		}
		samples = append(samples, float64(time.Since(start))/float64(time.Millisecond))
	}
	mean, jitter := latencyStats(samples)
	return mean, jitter, nil
}

// latencyStats returns the mean and the mean absolute deviation from it.
func latencyStats(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var dev float64
	for _, s := range samples {
		dev += math.Abs(s - mean)
	}
	return mean, dev / float64(len(samples))
}

func (t *SpeedTester) measureDownload(ctx context.Context, server Server) (float64, error) {
	start := time.Now()
	if err := t.download(ctx, server, t.cfg.DownloadBytes); err != nil {
		return 0, err
	}
	return mbps(t.cfg.DownloadBytes, time.Since(start)), nil
}

func (t *SpeedTester) download(ctx context.Context, server Server, size int64) error {
	target := server.BaseURL + "/__down?bytes=" + strconv.FormatInt(size, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := t.transferClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return err
	}
	if n < size {
		return fmt.Errorf("short download: got %d of %d bytes", n, size)
	}
	return nil
}

func (t *SpeedTester) measureUpload(ctx context.Context, server Server) (float64, error) {
	payload := bytes.NewReader(make([]byte, t.cfg.UploadBytes))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.BaseURL+"/__up", payload)
	if err != nil {
		return 0, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := t.transferClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return mbps(t.cfg.UploadBytes, time.Since(start)), nil
}

// mbps converts a transfer of size bytes over elapsed into megabits per second.
func mbps(size int64, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = time.Microsecond.Seconds()
	}
	return float64(size) * 8 / (seconds * 1_000_000)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// stageError wraps err for phase, marking transport failures as unreachable.
func stageError(phase Phase, err error) error {
	return &SpeedTestError{Phase: phase, Unreachable: isUnreachable(err), Err: err}
}

func isUnreachable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
