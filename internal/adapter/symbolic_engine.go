package adapter

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"uberfuzz/internal/uerrors"
)

// ProcessSymbolicEngine is the default, concrete SymbolicEngine: it spawns
// a single configured assisted-fuzzing driver binary (a Driller-style
// wrapper that launches an AFL instance plus a pool of symbolic-execution
// workers behind one process) and exposes its directory layout:
//
//	work_dir/assisted/<binary_name>/
//	  sync/queue/, sync/crashes/, sync/fuzzer_stats, sync/pollen/queue/
type ProcessSymbolicEngine struct {
	driverPath string
	binaryPath string
	workerSync string

	mu       sync.Mutex
	cmd      *exec.Cmd
	waitDone chan struct{}
	running  bool
	logger   *zap.Logger
}

// NewProcessSymbolicEngine constructs a ProcessSymbolicEngine. driverPath is
// the assisted-fuzzing driver executable (e.g. a Driller-style wrapper);
// workDir is the root directory the Supervisor grants this adapter.
func NewProcessSymbolicEngine(driverPath, binaryPath, workDir string, logger *zap.Logger) *ProcessSymbolicEngine {
	binaryName := filepath.Base(binaryPath)
	return &ProcessSymbolicEngine{
		driverPath: driverPath,
		binaryPath: binaryPath,
		workerSync: filepath.Join(workDir, "assisted", binaryName, "sync"),
		logger:     logger.With(zap.String("adapter", "assisted")),
	}
}

func (e *ProcessSymbolicEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if err := os.MkdirAll(e.workerSync, 0o755); err != nil {
		return uerrors.NewStartFailure("assisted", err)
	}

	cmd := exec.CommandContext(ctx, e.driverPath, "-o", e.workerSync, "--", e.binaryPath)
	if err := cmd.Start(); err != nil {
		return uerrors.NewStartFailure("assisted", err)
	}
	waitDone := make(chan struct{})
	e.cmd = cmd
	e.waitDone = waitDone
	e.running = true
	e.logger.Info("symbolic-assist engine started", zap.String("command", cmd.String()))

	go func() {
		_ = cmd.Wait()
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(waitDone)
	}()
	return nil
}

func (e *ProcessSymbolicEngine) Kill() {
	e.mu.Lock()
	cmd := e.cmd
	waitDone := e.waitDone
	running := e.running
	e.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGINT)
	select {
	case <-waitDone:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		<-waitDone
	}
}

func (e *ProcessSymbolicEngine) QueueDir() string    { return filepath.Join(e.workerSync, "queue") }
func (e *ProcessSymbolicEngine) CrashesDir() string  { return filepath.Join(e.workerSync, "crashes") }
func (e *ProcessSymbolicEngine) StatsPath() string   { return filepath.Join(e.workerSync, "fuzzer_stats") }
func (e *ProcessSymbolicEngine) PollenDir() string   { return filepath.Join(e.workerSync, "pollen") }
