// Package supervisor implements Uberfuzz: the control loop that owns a set
// of fuzzer adapters and three periodic timers, drives the cross-fuzzer
// pollination cycle, and surfaces aggregated status.
package supervisor

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"uberfuzz/internal/adapter"
	"uberfuzz/internal/crashstore"
	"uberfuzz/internal/scorer"
	"uberfuzz/internal/testcase"
	"uberfuzz/internal/timer"
	"uberfuzz/internal/uerrors"
	"uberfuzz/pkg/eventbus"
	"uberfuzz/pkg/telemetry"
)

const (
	mutationalID testcase.Identifier = "mutational"
	assistedID   testcase.Identifier = "assisted"
)

// Callback is an optional user-supplied periodic hook. A nil Callback with a
// zero interval disables the callback timer; New rejects a Callback and an
// interval supplied one without the other.
type Callback func(ctx context.Context)

// Supervisor owns every adapter, the scorer, and the three timers:
// pollination, optional status logging, optional user callback.
type Supervisor struct {
	logger        *zap.Logger
	tracerFactory *telemetry.TracerFactory
	eventBus      eventbus.EventBus
	crashStore    *crashstore.Store

	adapters map[testcase.Identifier]adapter.Adapter
	order    []testcase.Identifier // declaration order, for Start/Kill

	sourceID, destID  testcase.Identifier
	pollinationActive bool // both a source and a destination adapter are enabled

	scorer            scorer.Scorer
	selectionPressure float64

	pollenationTimer *timer.PeriodicTimer
	loggingTimer     *timer.PeriodicTimer
	callbackTimer    *timer.PeriodicTimer

	runCtx    context.Context
	runCancel context.CancelFunc

	mu          sync.Mutex
	started     bool
	killed      bool
	seenCrashes map[testcase.Identifier]map[string]bool
}

// Config collects the non-fx-specific construction parameters, so New can
// be exercised directly from tests without building an fx graph.
type Config struct {
	Adapters          []adapter.Adapter
	Scorer            scorer.Scorer
	SelectionPressure float64
	PollenationPeriod time.Duration
	LoggingPeriod     time.Duration // zero disables the status timer
	CallbackPeriod    time.Duration // zero disables the callback timer
	Callback          Callback

	TracerFactory *telemetry.TracerFactory
	EventBus      eventbus.EventBus
	CrashStore    *crashstore.Store
}

// New builds a Supervisor around the enabled adapters. Fails with a
// ConfigError if no adapter survives filtering. Construction does no I/O
// and spawns nothing; that is Start's job.
func New(cfg Config, logger *zap.Logger) (*Supervisor, error) {
	adapters := make(map[testcase.Identifier]adapter.Adapter)
	var order []testcase.Identifier
	for _, a := range cfg.Adapters {
		// An fx value group entry for a disabled adapter may be a typed
		// nil, not absent.
		if a == nil {
			continue
		}
		if v := reflect.ValueOf(a); v.Kind() == reflect.Ptr && v.IsNil() {
			continue
		}
		id := a.Identifier()
		adapters[id] = a
		order = append(order, id)
	}
	if len(adapters) == 0 {
		return nil, uerrors.NewConfigError("supervisor", "no fuzzer adapter enabled")
	}
	if cfg.PollenationPeriod <= 0 {
		return nil, uerrors.NewConfigError("supervisor", "pollination interval must be positive")
	}
	if (cfg.CallbackPeriod > 0) != (cfg.Callback != nil) {
		return nil, uerrors.NewConfigError("supervisor", "callback interval and callback function must be supplied together")
	}

	selectionPressure := cfg.SelectionPressure
	if selectionPressure <= 0 {
		selectionPressure = 0.4
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	s := &Supervisor{
		logger:            logger.Named("supervisor"),
		tracerFactory:     cfg.TracerFactory,
		eventBus:          cfg.EventBus,
		crashStore:        cfg.CrashStore,
		adapters:          adapters,
		order:             order,
		scorer:            cfg.Scorer,
		selectionPressure: selectionPressure,
		runCtx:            runCtx,
		runCancel:         runCancel,
		seenCrashes:       make(map[testcase.Identifier]map[string]bool),
	}

	if _, hasSource := adapters[mutationalID]; hasSource {
		if _, hasDest := adapters[assistedID]; hasDest {
			s.sourceID, s.destID = mutationalID, assistedID
			s.pollinationActive = true
		}
	}

	s.pollenationTimer = timer.New(cfg.PollenationPeriod, s.pollinate, s.logger)
	if cfg.LoggingPeriod > 0 {
		s.loggingTimer = timer.New(cfg.LoggingPeriod, s.logStatus, s.logger)
	}
	if cfg.Callback != nil {
		s.callbackTimer = timer.New(cfg.CallbackPeriod, cfg.Callback, s.logger)
	}

	return s, nil
}

// Start starts each enabled adapter in declaration order, then arms every
// configured timer. Fails fast on the first adapter failure; adapters
// already started are killed before the error is returned. Idempotent: a
// second call is a no-op.
func (s *Supervisor) Start(context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	started := make([]adapter.Adapter, 0, len(s.order))
	for _, id := range s.order {
		a := s.adapters[id]
		tracer := s.tracerFactory.NewTracer(s.runCtx, "adapter.start")
		tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.AdapterLife).WithFuzzerIdentifier(string(id)))
		tracer.Start()

		// The adapter's own process must outlive this call and the fx
		// startup deadline; it only dies when Kill is invoked explicitly.
		if err := a.Start(s.runCtx); err != nil {
			tracer.SetStatus(codes.Error, err.Error())
			tracer.End()
			for _, prior := range started {
				prior.Kill()
			}
			return err
		}
		tracer.End()
		started = append(started, a)
	}

	if err := s.pollenationTimer.Start(); err != nil {
		for _, prior := range started {
			prior.Kill()
		}
		return err
	}
	if s.loggingTimer != nil {
		_ = s.loggingTimer.Start()
	}
	if s.callbackTimer != nil {
		_ = s.callbackTimer.Start()
	}

	s.logger.Info("supervisor started", zap.Int("adapter_count", len(s.order)), zap.Bool("pollination_active", s.pollinationActive))
	return nil
}

// Kill cancels every timer first, so no racing pollination call can touch
// an adapter mid-teardown, then kills each adapter. Safe to call more than
// once: the second call observes s.killed and returns immediately.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.mu.Unlock()

	s.pollenationTimer.Cancel()
	if s.loggingTimer != nil {
		s.loggingTimer.Cancel()
	}
	if s.callbackTimer != nil {
		s.callbackTimer.Cancel()
	}

	for _, id := range s.order {
		s.adapters[id].Kill()
	}
	s.runCancel()
	s.logger.Info("supervisor killed")
}

// Queue returns every adapter's current queue snapshot, keyed by identifier.
func (s *Supervisor) Queue() map[testcase.Identifier]testcase.Set {
	out := make(map[testcase.Identifier]testcase.Set, len(s.order))
	for _, id := range s.order {
		out[id] = s.adapters[id].Queue()
	}
	return out
}

// Crashes returns every adapter's current crash snapshot, keyed by identifier.
func (s *Supervisor) Crashes() map[testcase.Identifier][]testcase.Crash {
	out := make(map[testcase.Identifier][]testcase.Crash, len(s.order))
	for _, id := range s.order {
		out[id] = s.adapters[id].Crashes()
	}
	return out
}
