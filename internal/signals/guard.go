package signals

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrBusy is returned when an operation is started while the previous
	// one is still running.
	ErrBusy = errors.New("operation already in progress")

	// ErrSuperseded is returned in place of the result of an operation that
	// a newer one replaced.
	ErrSuperseded = errors.New("operation superseded by a newer request")
)

// Busy admits one operation at a time. The zero value is ready to use.
type Busy struct {
	running atomic.Bool
}

// Do runs fn unless another call is in progress, in which case it returns
// ErrBusy without running fn.
func (b *Busy) Do(fn func() error) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer b.running.Store(false)
	return fn()
}

// Running reports whether an operation holds the guard.
func (b *Busy) Running() bool {
	return b.running.Load()
}

// Latest tracks the most recent operation of a view. Starting a new
// operation cancels the context of the previous one, and the previous
// one's result is discarded. The zero value is ready to use.
type Latest struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin starts an operation derived from parent and supersedes any
// operation still running. The caller must call the returned func exactly
// once; it returns ErrSuperseded when a newer operation began meanwhile.
func (l *Latest) Begin(parent context.Context) (context.Context, func() error) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.mu.Unlock()

	return ctx, func() error {
		l.mu.Lock()
		current := l.gen == gen
		if current {
			l.cancel = nil
		}
		l.mu.Unlock()
		cancel()

		if !current {
			return ErrSuperseded
		}
		return nil
	}
}
