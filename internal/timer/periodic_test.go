package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPeriodicTimerFiresRepeatedly(t *testing.T) {
	var count int32
	done := make(chan struct{}, 1)
	target := func(ctx context.Context) {
		if atomic.AddInt32(&count, 1) == 3 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}

	pt := New(10*time.Millisecond, target, zap.NewNop())
	if err := pt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pt.Cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire 3 times in time, count=%d", atomic.LoadInt32(&count))
	}
}

func TestPeriodicTimerStartIsIdempotentWhenArmed(t *testing.T) {
	pt := New(time.Hour, func(ctx context.Context) {}, zap.NewNop())
	if err := pt.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := pt.Start(); err != nil {
		t.Fatalf("second Start on armed timer should be idempotent, got: %v", err)
	}
	pt.Cancel()
}

func TestPeriodicTimerStartRejectedWhileFiring(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	target := func(ctx context.Context) {
		close(entered)
		<-release
	}

	pt := New(5*time.Millisecond, target, zap.NewNop())
	if err := pt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(release)
		pt.Cancel()
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("target never entered firing state")
	}

	if err := pt.Start(); err != ErrFiring {
		t.Fatalf("expected ErrFiring while target is executing, got %v", err)
	}
}

func TestPeriodicTimerCancelAfterCancelledIsIdempotent(t *testing.T) {
	pt := New(time.Hour, func(ctx context.Context) {}, zap.NewNop())
	if err := pt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pt.Cancel()
	pt.Cancel() // must not panic or block

	if err := pt.Start(); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled on a cancelled timer, got %v", err)
	}
}

func TestPeriodicTimerNonReentrant(t *testing.T) {
	var mu sync.Mutex
	var intervals [][2]time.Time
	var active bool

	target := func(ctx context.Context) {
		mu.Lock()
		if active {
			mu.Unlock()
			t.Error("target invoked while a prior invocation was still active")
			return
		}
		active = true
		mu.Unlock()

		start := time.Now()
		time.Sleep(15 * time.Millisecond)
		end := time.Now()

		mu.Lock()
		intervals = append(intervals, [2]time.Time{start, end})
		active = false
		mu.Unlock()
	}

	pt := New(5*time.Millisecond, target, zap.NewNop())
	if err := pt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	pt.Cancel()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(intervals); i++ {
		if intervals[i][0].Before(intervals[i-1][1]) {
			t.Fatalf("firing %d started before firing %d returned: %v vs %v", i, i-1, intervals[i][0], intervals[i-1][1])
		}
	}
}

func TestPeriodicTimerTargetPanicDoesNotStopTimer(t *testing.T) {
	var calls int32
	target := func(ctx context.Context) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			panic("boom")
		}
	}

	pt := New(10*time.Millisecond, target, zap.NewNop())
	if err := pt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pt.Cancel()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timer stopped after panicking target, calls=%d", atomic.LoadInt32(&calls))
		case <-time.After(10 * time.Millisecond):
		}
	}
}
