package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ispfinder/ispfinder/internal/logging"
)

func TestBusyRejectsOverlappingCalls(t *testing.T) {
	var b Busy

	err := b.Do(func() error {
		if !b.Running() {
			t.Error("expected guard to be held")
		}
		if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBusy) {
			t.Errorf("expected ErrBusy, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.Running() {
		t.Fatal("guard still held after return")
	}
	want := errors.New("boom")
	if err := b.Do(func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected fn error to pass through, got %v", err)
	}
}

func TestLatestSupersedesPrevious(t *testing.T) {
	var l Latest

	first, finishFirst := l.Begin(context.Background())
	second, finishSecond := l.Begin(context.Background())

	select {
	case <-first.Done():
	default:
		t.Fatal("expected first operation to be cancelled")
	}
	if second.Err() != nil {
		t.Fatal("second operation should still be running")
	}

	if err := finishFirst(); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if err := finishSecond(); err != nil {
		t.Fatalf("expected latest operation to be kept, got %v", err)
	}
	if second.Err() == nil {
		t.Fatal("finish should release the operation context")
	}

	third, finishThird := l.Begin(context.Background())
	if third.Err() != nil {
		t.Fatal("new operation after completion should start clean")
	}
	if err := finishThird(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLatestFollowsParentCancellation(t *testing.T) {
	var l Latest
	parent, cancel := context.WithCancel(context.Background())

	ctx, finish := l.Begin(parent)
	cancel()

	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("expected derived context to be cancelled, got %v", ctx.Err())
	}
	if err := finish(); err != nil {
		t.Fatalf("parent cancellation is not supersession, got %v", err)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker("test", 3, time.Minute, logging.Discard())
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.Failure()
		if !b.Allow() {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}
	b.Failure()
	if b.Allow() {
		t.Fatal("expected breaker to open after 3 failures")
	}

	now = now.Add(59 * time.Second)
	if b.Allow() {
		t.Fatal("breaker closed before cooldown")
	}

	now = now.Add(time.Second)
	if !b.Allow() {
		t.Fatal("expected half-open attempt after cooldown")
	}

	b.Failure()
	if b.Allow() {
		t.Fatal("failed half-open attempt should reopen the breaker")
	}

	now = now.Add(time.Minute)
	b.Success()
	if !b.Allow() {
		t.Fatal("expected breaker closed after success")
	}
	b.Failure()
	if !b.Allow() {
		t.Fatal("failure count should reset after success")
	}
}
