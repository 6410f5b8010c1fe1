package signals

import (
	"log/slog"
	"sync"
	"time"
)

// breaker opens after a run of consecutive failures and stays open for the
// cooldown, after which one call is let through to test the dependency.
type breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
}

func newBreaker(name string, maxFailures int, cooldown time.Duration, logger *slog.Logger) *breaker {
	return &breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger,
		now:         time.Now,
	}
}

// Allow reports whether the protected call should be attempted.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.logger.Info("breaker half-open", "name", b.name)
		return true
	}
	return false
}

func (b *breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		b.logger.Info("breaker closed", "name", b.name)
	}
	b.open = false
	b.failures = 0
}

func (b *breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.open || b.failures >= b.maxFailures {
		if !b.open {
			b.logger.Warn("breaker opened", "name", b.name, "failures", b.failures)
		}
		b.open = true
		b.openedAt = b.now()
	}
}
