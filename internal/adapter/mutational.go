package adapter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
	"uberfuzz/internal/uerrors"
)

// MutationalAdapter drives a generic AFL-family fuzzer launched as a
// subprocess. It owns this on-disk layout:
//
//	work_dir/mutational/<binary_name>/
//	  input/            seed files written on a fresh start
//	  sync/
//	    queue/          engine-owned; a ".state" child is ignored
//	    crashes/        engine-owned; filenames encode attrs as k:v,k:v
//	    fuzzer_stats    key: value per line
//	    inbox/queue/    pollination inbox, written by the supervisor
//	  mutational.log
type MutationalAdapter struct {
	identifier  testcase.Identifier
	enginePath  string
	binaryPath  string
	targetOpts  []string
	readsFile   string
	fuzzerDir   string
	binaryDir   string
	inputDir    string
	syncDir     string
	logPath     string
	seeds       []testcase.Testcase
	allowedSigs map[testcase.Signal]bool
	logger      *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	waitDone chan struct{}
	running  bool
	resuming bool
	exitInfo string
}

// MutationalConfig collects the construction parameters for a
// MutationalAdapter.
type MutationalConfig struct {
	EnginePath    string
	BinaryPath    string
	WorkDir       string
	Seeds         []testcase.Testcase
	TargetOpts    []string
	ReadFromFile  string
	AllowedSignal map[testcase.Signal]bool
}

// NewMutationalAdapter constructs a MutationalAdapter. It only reads the sync
// directory to detect resume mode; it creates nothing and spawns nothing.
// That happens in Start, so construction can never partially create state.
func NewMutationalAdapter(cfg MutationalConfig, logger *zap.Logger) (*MutationalAdapter, error) {
	if cfg.EnginePath == "" {
		return nil, uerrors.NewConfigError("mutational adapter", "no mutational engine binary configured")
	}

	const identifier = testcase.Identifier("mutational")
	fuzzerDir := filepath.Join(cfg.WorkDir, string(identifier))
	binaryName := filepath.Base(cfg.BinaryPath)
	binaryDir := filepath.Join(fuzzerDir, binaryName)
	syncDir := filepath.Join(binaryDir, "sync")

	resuming := false
	if entries, err := os.ReadDir(syncDir); err == nil && len(entries) > 0 {
		resuming = true
	}

	allowed := cfg.AllowedSignal
	if allowed == nil {
		allowed = AllowedSignals
	}

	return &MutationalAdapter{
		identifier:  identifier,
		enginePath:  cfg.EnginePath,
		binaryPath:  cfg.BinaryPath,
		targetOpts:  cfg.TargetOpts,
		readsFile:   cfg.ReadFromFile,
		fuzzerDir:   fuzzerDir,
		binaryDir:   binaryDir,
		inputDir:    filepath.Join(binaryDir, "input"),
		syncDir:     syncDir,
		logPath:     filepath.Join(binaryDir, "mutational.log"),
		seeds:       cfg.Seeds,
		allowedSigs: allowed,
		logger:      logger.With(zap.String("adapter", string(identifier))),
		resuming:    resuming,
	}, nil
}

func (m *MutationalAdapter) Identifier() testcase.Identifier { return m.identifier }

// Start establishes the on-disk layout (creating it only if absent),
// writes seed files on a fresh start, and spawns the engine subprocess with
// the fixed argument discipline: "-i <input_or_-> -o <sync_dir> -m 8G -Q --
// <binary> [opts...]". The "-" input marker tells the engine to resume from
// an existing sync directory.
func (m *MutationalAdapter) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil // idempotent-on-success
	}

	for _, dir := range []string{m.fuzzerDir, m.binaryDir, m.syncDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return uerrors.NewStartFailure(string(m.identifier), err)
		}
	}

	inputArg := m.inputDir
	if m.resuming {
		inputArg = "-"
	} else {
		if err := os.MkdirAll(m.inputDir, 0o755); err != nil {
			return uerrors.NewStartFailure(string(m.identifier), err)
		}
		for i, seed := range m.seeds {
			seedPath := filepath.Join(m.inputDir, fmt.Sprintf("seed-%d", i))
			if err := os.WriteFile(seedPath, seed, 0o644); err != nil {
				return uerrors.NewStartFailure(string(m.identifier), err)
			}
		}
	}

	args := []string{"-i", inputArg, "-o", m.syncDir, "-m", "8G", "-Q", "--", m.binaryPath}
	args = append(args, m.resolveTargetOpts()...)

	logFile, err := os.Create(m.logPath)
	if err != nil {
		return uerrors.NewStartFailure(string(m.identifier), err)
	}

	cmd := exec.CommandContext(ctx, m.enginePath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return uerrors.NewStartFailure(string(m.identifier), err)
	}

	waitDone := make(chan struct{})
	m.cmd = cmd
	m.waitDone = waitDone
	m.running = true
	m.logger.Info("mutational engine started",
		zap.String("engine", m.enginePath),
		zap.Bool("resuming", m.resuming),
		zap.String("command", cmd.String()))

	// Single Wait for the child's whole lifetime; Kill synchronizes on
	// waitDone instead of calling Wait itself.
	go func() {
		_ = cmd.Wait()
		logFile.Close()
		m.mu.Lock()
		m.running = false
		if cmd.ProcessState != nil {
			m.exitInfo = cmd.ProcessState.String()
		}
		m.mu.Unlock()
		close(waitDone)
	}()

	return nil
}

// resolveTargetOpts substitutes the read-from-file path for the
// placeholder token, if the target reads its input from a file rather than
// standard input.
func (m *MutationalAdapter) resolveTargetOpts() []string {
	if m.readsFile == "" {
		return m.targetOpts
	}
	out := make([]string, len(m.targetOpts))
	for i, opt := range m.targetOpts {
		if opt == "@@" {
			out[i] = m.readsFile
		} else {
			out[i] = opt
		}
	}
	return out
}

// Kill sends a polite interrupt, then waits for the process to exit.
// Tolerates already-dead children and repeated calls.
func (m *MutationalAdapter) Kill() {
	m.mu.Lock()
	cmd := m.cmd
	waitDone := m.waitDone
	running := m.running
	m.mu.Unlock()

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

func (m *MutationalAdapter) Queue() testcase.Set {
	skip := map[string]bool{".state": true}
	return readQueue(filepath.Join(m.syncDir, "queue"), skip, m.logger)
}

func (m *MutationalAdapter) Crashes() []testcase.Crash {
	return readCrashes(filepath.Join(m.syncDir, "crashes"), m.allowedSigs, m.logger)
}

// Stats parses the engine's stats file. When the child has exited, its
// termination status is folded in so callers can tell a dead engine from a
// quiet one.
func (m *MutationalAdapter) Stats() map[string]string {
	stats := parseStats(filepath.Join(m.syncDir, "fuzzer_stats"))
	m.mu.Lock()
	exitInfo := m.exitInfo
	m.mu.Unlock()
	if exitInfo != "" {
		stats["engine_exit_status"] = exitInfo
	}
	return stats
}

func (m *MutationalAdapter) pollenInboxDir() string {
	return filepath.Join(m.syncDir, "inbox", "queue")
}

func (m *MutationalAdapter) Pollinated() testcase.Set {
	return readPollenInbox(m.pollenInboxDir(), m.logger)
}

func (m *MutationalAdapter) Pollenate(batch testcase.Batch) error {
	written, err := writePollenInbox(m.pollenInboxDir(), batch, m.logger)
	if err != nil {
		return err
	}
	m.logger.Debug("pollenated mutational engine", zap.Int("files_written", written))
	return nil
}
