package signals

import (
	"sync"
	"time"
)

type fakeRecorder struct {
	mu        sync.Mutex
	outcomes  map[string][]string
	speedRuns int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{outcomes: map[string][]string{}}
}

func (r *fakeRecorder) ObserveFetch(adapter, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[adapter] = append(r.outcomes[adapter], outcome)
}

func (r *fakeRecorder) ObserveSpeedTest(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speedRuns++
}

func (r *fakeRecorder) last(adapter string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.outcomes[adapter]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}
