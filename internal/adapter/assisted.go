package adapter

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
)

// SymbolicEngine is the out-of-scope collaborator an AssistedAdapter
// delegates to: a library that already manages both a mutational child
// fuzzer and a symbolic/concolic helper process, and owns its own on-disk
// layout under a directory the adapter is told about at construction. Only
// its interface to the supervisor is pinned down here; the engine's
// internals are its own business.
type SymbolicEngine interface {
	// Start launches both the mutational child and the symbolic helper.
	Start(ctx context.Context) error
	// Kill terminates both children, tolerating an engine that was never
	// started or was already killed.
	Kill()
	// QueueDir, CrashesDir and StatsPath report the directories/file the
	// library maintains for its queue, crashes, and stats respectively.
	QueueDir() string
	CrashesDir() string
	StatsPath() string
	// PollenDir reports the directory the library watches for injected
	// testcases on its own sync cycle, or "" if the library does not
	// support pollination.
	PollenDir() string
}

// AssistedAdapter drives a mutational fuzzer augmented by an out-of-process
// symbolic helper, by delegating lifecycle and on-disk discovery entirely
// to a SymbolicEngine. Variants differ from MutationalAdapter only in how
// Start spawns the engine and which subdirectories count as queue/crashes/
// inbox; here, that knowledge lives entirely in the SymbolicEngine
// implementation rather than in this adapter.
type AssistedAdapter struct {
	identifier  testcase.Identifier
	engine      SymbolicEngine
	allowedSigs map[testcase.Signal]bool
	logger      *zap.Logger
}

// NewAssistedAdapter constructs an AssistedAdapter around an already
// configured SymbolicEngine. Construction does no I/O; Start does.
func NewAssistedAdapter(engine SymbolicEngine, allowedSignals map[testcase.Signal]bool, logger *zap.Logger) *AssistedAdapter {
	allowed := allowedSignals
	if allowed == nil {
		allowed = AllowedSignals
	}
	const identifier = testcase.Identifier("assisted")
	return &AssistedAdapter{
		identifier:  identifier,
		engine:      engine,
		allowedSigs: allowed,
		logger:      logger.With(zap.String("adapter", string(identifier))),
	}
}

func (a *AssistedAdapter) Identifier() testcase.Identifier { return a.identifier }

func (a *AssistedAdapter) Start(ctx context.Context) error {
	return a.engine.Start(ctx)
}

func (a *AssistedAdapter) Kill() {
	a.engine.Kill()
}

func (a *AssistedAdapter) Queue() testcase.Set {
	return readQueue(a.engine.QueueDir(), nil, a.logger)
}

func (a *AssistedAdapter) Crashes() []testcase.Crash {
	return readCrashes(a.engine.CrashesDir(), a.allowedSigs, a.logger)
}

func (a *AssistedAdapter) Stats() map[string]string {
	return parseStats(a.engine.StatsPath())
}

func (a *AssistedAdapter) Pollinated() testcase.Set {
	dir := a.engine.PollenDir()
	if dir == "" {
		return testcase.Set{}
	}
	return readPollenInbox(filepath.Join(dir, "queue"), a.logger)
}

// Pollenate forwards batch into the engine's pollen directory, so the
// engine's own sync mechanism picks it up on its next cycle. If the engine
// does not expose a pollen directory, the batch is logged and dropped
// rather than erroring: a queue-only symbolic engine is an expected
// topology, not a failure.
func (a *AssistedAdapter) Pollenate(batch testcase.Batch) error {
	dir := a.engine.PollenDir()
	if dir == "" {
		a.logger.Warn("assisted engine does not support pollination, dropping batch",
			zap.Int("batch_size", len(batch)))
		return nil
	}
	written, err := writePollenInbox(filepath.Join(dir, "queue"), batch, a.logger)
	if err != nil {
		return err
	}
	a.logger.Debug("pollenated assisted engine", zap.Int("files_written", written))
	return nil
}
