// Package timer implements PeriodicTimer: a self-rescheduling one-shot
// timer that invokes a callback at a fixed cadence, non-reentrantly with
// respect to itself, with no catch-up after a slow firing.
//
// Modeled as an explicit state machine driven by a dedicated worker
// goroutine per timer, not as a timer that spawns its own successor from
// inside its callback: that shape cannot distinguish "cancelled while
// scheduled" from "cancelled while the callback is running".
package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one point in the timer's idle/armed/firing/cancelled lifecycle.
type State int32

const (
	Idle State = iota
	Armed
	Firing
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrFiring is returned by Start when called while the timer's target is
// currently executing: calling Start from inside your own callback (or
// concurrently with a firing) is a programmer error, never silently
// double-armed.
var ErrFiring = errors.New("timer: start called while a firing is in progress")

// ErrCancelled is returned by Start on a timer that has already been
// cancelled. Cancelled is a terminal state; a new PeriodicTimer must be
// constructed to resume periodic work.
var ErrCancelled = errors.New("timer: start called on a cancelled timer")

// PeriodicTimer fires target every period, starting period after Start is
// called, and never overlaps invocations of its own callback: a new firing
// is armed only after the previous firing's target returns.
type PeriodicTimer struct {
	period time.Duration
	target func(ctx context.Context)
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a PeriodicTimer in the idle state. It does nothing until
// Start is called.
func New(period time.Duration, target func(ctx context.Context), logger *zap.Logger) *PeriodicTimer {
	return &PeriodicTimer{
		period: period,
		target: target,
		logger: logger,
		state:  Idle,
	}
}

// State reports the timer's current lifecycle state.
func (t *PeriodicTimer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start arms the first firing after period. Idempotent if already armed.
// Returns ErrFiring if called while the target is currently executing, and
// ErrCancelled if the timer was already cancelled.
func (t *PeriodicTimer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Armed:
		return nil // idempotent
	case Firing:
		return ErrFiring
	case Cancelled:
		return ErrCancelled
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.state = Armed

	t.wg.Add(1)
	go t.loop(ctx)
	return nil
}

// Cancel requests no further firings. If a firing is in progress, it is
// allowed to complete, but no firing is scheduled after it returns. If a
// firing is scheduled but not yet started, it is unscheduled immediately.
// Cancel blocks until the worker goroutine has fully stopped, so by the
// time it returns, no more callback invocations will occur.
func (t *PeriodicTimer) Cancel() {
	t.mu.Lock()
	switch t.state {
	case Idle, Cancelled:
		t.state = Cancelled
		t.mu.Unlock()
		return
	}
	cancel := t.cancel
	t.state = Cancelled
	t.mu.Unlock()

	cancel()
	t.wg.Wait()
}

func (t *PeriodicTimer) loop(ctx context.Context) {
	defer t.wg.Done()

	timer := time.NewTimer(t.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !t.beginFiring() {
				return
			}
			t.runTarget(ctx)
			if !t.endFiring() {
				return
			}
			timer.Reset(t.period) // period after the previous firing RETURNS, not started: no catch-up
		}
	}
}

// beginFiring transitions armed -> firing, or reports false if the timer
// was cancelled while the firing was scheduled but not yet started.
func (t *PeriodicTimer) beginFiring() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Cancelled {
		return false
	}
	t.state = Firing
	return true
}

// endFiring transitions firing -> armed, or reports false if Cancel was
// called while the firing was in progress, in which case no further
// firing is scheduled.
func (t *PeriodicTimer) endFiring() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Cancelled {
		return false
	}
	t.state = Armed
	return true
}

// runTarget invokes target, recovering a panic and logging it rather than
// letting it stop the timer.
func (t *PeriodicTimer) runTarget(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("periodic timer target panicked", zap.Any("recovered", r))
		}
	}()
	t.target(ctx)
}
