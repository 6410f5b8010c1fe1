// Package signals fetches live data that augments the catalog view: the
// caller's geolocation, per-city ISP status and speed test measurements.
// Every adapter resolves to a value or a typed error; provider faults never
// escape as panics.
package signals

import "time"

// Recorder receives adapter outcomes. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveFetch(adapter, outcome string)
	ObserveSpeedTest(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(string, string)    {}
func (nopRecorder) ObserveSpeedTest(time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)
