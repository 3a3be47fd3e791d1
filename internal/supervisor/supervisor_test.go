package supervisor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"uberfuzz/config"
	"uberfuzz/internal/adapter"
	"uberfuzz/internal/crashstore"
	"uberfuzz/internal/scorer"
	"uberfuzz/internal/testcase"
	"uberfuzz/pkg/eventbus"
	"uberfuzz/pkg/telemetry"
)

// fakeAdapter is an in-memory adapter.Adapter test double: no subprocess,
// no disk I/O, just the testcase.Set views the pollination policy reads.
type fakeAdapter struct {
	id testcase.Identifier

	mu         sync.Mutex
	queue      testcase.Set
	crashes    []testcase.Crash
	pollinated testcase.Set
	started    bool
	killed     bool
	startErr   error
	pollenated testcase.Batch
}

func newFakeAdapter(id testcase.Identifier) *fakeAdapter {
	return &fakeAdapter{id: id, queue: testcase.Set{}, pollinated: testcase.Set{}}
}

func (f *fakeAdapter) Identifier() testcase.Identifier { return f.id }
func (f *fakeAdapter) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}
func (f *fakeAdapter) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
}
func (f *fakeAdapter) Queue() testcase.Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue
}
func (f *fakeAdapter) Crashes() []testcase.Crash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crashes
}
func (f *fakeAdapter) Stats() map[string]string { return nil }
func (f *fakeAdapter) Pollinated() testcase.Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollinated
}
func (f *fakeAdapter) Pollenate(batch testcase.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollenated = append(f.pollenated, batch...)
	return nil
}

func (f *fakeAdapter) lastBatch() testcase.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(testcase.Batch, len(f.pollenated))
	copy(out, f.pollenated)
	return out
}

func noopAmbient(t *testing.T) (*telemetry.TracerFactory, eventbus.EventBus, *crashstore.Store) {
	t.Helper()
	tf := telemetry.NewTracerFactory(telemetry.TracerFactoryParams{})
	bus := noopEventBus{}
	store := crashstore.NewStore(nil, &config.AppConfig{WorkDir: t.TempDir()}, zap.NewNop())
	return tf, bus, store
}

type noopEventBus struct{}

func (noopEventBus) PublishPollinationCompleted(ctx context.Context, event eventbus.PollinationCompletedEvent) {
}
func (noopEventBus) PublishCrashFound(ctx context.Context, event eventbus.CrashFoundEvent) {}

func TestNewRequiresAtLeastOneAdapter(t *testing.T) {
	tf, bus, store := noopAmbient(t)
	_, err := New(Config{
		Adapters:      nil,
		Scorer:        scorer.NewLengthScorer(),
		TracerFactory: tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err == nil {
		t.Fatal("expected ConfigError when no adapter is enabled")
	}
}

func TestPollinateEmptyCandidatesIsNoOp(t *testing.T) {
	// Destination already knows everything the source queue has: batch is
	// empty, Pollenate is never called.
	source := newFakeAdapter(mutationalID)
	dest := newFakeAdapter(assistedID)
	source.queue = testcase.NewSet(testcase.Testcase("AAAA"))
	dest.queue = testcase.NewSet(testcase.Testcase("AAAA"))

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{source, dest},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.pollinate(context.Background())

	if len(dest.lastBatch()) != 0 {
		t.Fatalf("expected no pollination, got batch %v", dest.lastBatch())
	}
}

func TestPollinateSingleCandidateWinsElite(t *testing.T) {
	// Two candidates, floor(2*0.4)=0: the tail is empty and only the
	// elite transplants.
	source := newFakeAdapter(mutationalID)
	dest := newFakeAdapter(assistedID)
	source.queue = testcase.NewSet(testcase.Testcase("A"), testcase.Testcase("BB"), testcase.Testcase("CCC"))
	dest.queue = testcase.NewSet(testcase.Testcase("A"))

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{source, dest},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.pollinate(context.Background())

	batch := dest.lastBatch()
	if len(batch) != 1 {
		t.Fatalf("expected batch of exactly 1 (the elite), got %d: %v", len(batch), batch)
	}
	if string(batch[0]) != "CCC" {
		t.Fatalf("expected elite CCC (highest byte length), got %q", batch[0])
	}
}

func TestPollinateSelectionPressureTailSize(t *testing.T) {
	// 10 candidates of length 1..10, selection_pressure=0.4 -> elite +
	// next 3 = batch of 4.
	source := newFakeAdapter(mutationalID)
	dest := newFakeAdapter(assistedID)
	var candidates []testcase.Testcase
	for i := 1; i <= 10; i++ {
		candidates = append(candidates, testcase.Testcase(fmt.Sprintf("%0*d", i, 0)))
	}
	source.queue = testcase.NewSet(candidates...)
	dest.queue = testcase.Set{}

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{source, dest},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.pollinate(context.Background())

	batch := dest.lastBatch()
	if len(batch) != 4 {
		t.Fatalf("expected batch length 4 (elite + 3), got %d: %v", len(batch), batch)
	}
	if len(batch[0]) != 10 {
		t.Fatalf("expected elite to be the length-10 candidate, got length %d", len(batch[0]))
	}
}

func TestPollinateKnownSetExcludesAlreadyPollinated(t *testing.T) {
	source := newFakeAdapter(mutationalID)
	dest := newFakeAdapter(assistedID)
	source.queue = testcase.NewSet(testcase.Testcase("A"), testcase.Testcase("B"))
	dest.queue = testcase.Set{}
	dest.pollinated = testcase.NewSet(testcase.Testcase("A"))

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{source, dest},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.pollinate(context.Background())

	batch := dest.lastBatch()
	if len(batch) != 1 || string(batch[0]) != "B" {
		t.Fatalf("expected only B pollinated (A already known via pollinated set), got %v", batch)
	}
}

func TestPollinateWithOnlyOneAdapterIsNoOp(t *testing.T) {
	source := newFakeAdapter(mutationalID)
	source.queue = testcase.NewSet(testcase.Testcase("A"))

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{source},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.pollinationActive {
		t.Fatal("expected pollination to be inactive with only one adapter enabled")
	}
	s.pollinate(context.Background()) // must not panic, must not touch anything
}

func TestStartRollsBackAlreadyStartedAdaptersOnFailure(t *testing.T) {
	good := newFakeAdapter(mutationalID)
	bad := newFakeAdapter(assistedID)
	bad.startErr = fmt.Errorf("boom")

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{good, bad},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail when an adapter fails to start")
	}

	good.mu.Lock()
	killed := good.killed
	good.mu.Unlock()
	if !killed {
		t.Fatal("expected the already-started adapter to be killed on rollback")
	}
}

func TestKillIsIdempotent(t *testing.T) {
	a := newFakeAdapter(mutationalID)
	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{a},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Kill()
	s.Kill() // must be safe to call twice

	a.mu.Lock()
	killed := a.killed
	a.mu.Unlock()
	if !killed {
		t.Fatal("expected adapter to have been killed")
	}
}

func TestQueueAndCrashesAggregateByIdentifier(t *testing.T) {
	a := newFakeAdapter(mutationalID)
	a.queue = testcase.NewSet(testcase.Testcase("x"))
	a.crashes = []testcase.Crash{{Input: testcase.Testcase("boom"), Signal: testcase.SIGSEGV}}

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{a},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queues := s.Queue()
	if len(queues[mutationalID]) != 1 {
		t.Fatalf("expected 1 queue entry for mutational, got %v", queues)
	}
	crashes := s.Crashes()
	if len(crashes[mutationalID]) != 1 {
		t.Fatalf("expected 1 crash entry for mutational, got %v", crashes)
	}
}

func TestPollinateAbortsMidCycleWhenContextCancelled(t *testing.T) {
	// Cancellation is observed at the candidate boundary: no batch is
	// written for a cancelled cycle.
	source := newFakeAdapter(mutationalID)
	dest := newFakeAdapter(assistedID)
	source.queue = testcase.NewSet(testcase.Testcase("A"), testcase.Testcase("BB"), testcase.Testcase("CCC"))

	tf, bus, store := noopAmbient(t)
	s, err := New(Config{
		Adapters:          []adapter.Adapter{source, dest},
		Scorer:            scorer.NewLengthScorer(),
		SelectionPressure: 0.4,
		PollenationPeriod: time.Hour,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: must abort before scoring anything

	s.pollinate(ctx)

	if len(dest.lastBatch()) != 0 {
		t.Fatalf("expected no batch written for a cancelled cycle, got %v", dest.lastBatch())
	}
}

func TestNewRejectsCallbackIntervalWithoutCallback(t *testing.T) {
	a := newFakeAdapter(mutationalID)
	tf, bus, store := noopAmbient(t)
	_, err := New(Config{
		Adapters:          []adapter.Adapter{a},
		Scorer:            scorer.NewLengthScorer(),
		PollenationPeriod: time.Hour,
		CallbackPeriod:    time.Minute,
		TracerFactory:     tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err == nil {
		t.Fatal("expected ConfigError for a callback interval with no callback function")
	}
}

func TestNewRejectsNonPositivePollinationInterval(t *testing.T) {
	a := newFakeAdapter(mutationalID)
	tf, bus, store := noopAmbient(t)
	_, err := New(Config{
		Adapters:      []adapter.Adapter{a},
		Scorer:        scorer.NewLengthScorer(),
		TracerFactory: tf, EventBus: bus, CrashStore: store,
	}, zap.NewNop())
	if err == nil {
		t.Fatal("expected ConfigError for a zero pollination interval")
	}
}
