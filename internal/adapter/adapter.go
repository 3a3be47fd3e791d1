// Package adapter implements the uniform FuzzerAdapter contract over
// heterogeneous fuzzing engines, plus the two concrete variants the
// Supervisor drives: MutationalAdapter (a generic AFL-family fuzzer) and
// AssistedAdapter (a mutational fuzzer augmented by a symbolic helper).
package adapter

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
)

// pollenFileName returns a filename guaranteed unique across concurrent
// Pollenate calls, so distinct testcases never collide in the inbox.
func pollenFileName() string {
	return uuid.New().String()
}

// Adapter is the capability set every fuzzer variant exposes. It is a plain
// interface rather than a class hierarchy: pollen-inbox reading is a free
// function below, not an inherited method, because both variants read it
// identically.
type Adapter interface {
	// Identifier returns the adapter's stable tag, unique within a
	// Supervisor.
	Identifier() testcase.Identifier

	// Start is an idempotent-on-success launch of the underlying engine.
	// Establishes the on-disk layout if absent, writes seeds on a fresh
	// start, and leaves existing state untouched on resume.
	Start(ctx context.Context) error

	// Kill signals the child to terminate (polite signal, then wait),
	// tolerates already-dead children, and is safe to call more than
	// once or without a prior Start.
	Kill()

	// Queue returns the engine's current set of interesting testcases,
	// read fresh from disk on every call.
	Queue() testcase.Set

	// Crashes returns the deduplicated set of crashing testcases whose
	// filename-encoded signal is in the adapter's allowed-signal set
	// (AllowedSignals unless configured otherwise).
	Crashes() []testcase.Crash

	// Stats returns the engine's stats file parsed into a string map.
	// Empty if the stats file does not exist yet.
	Stats() map[string]string

	// Pollinated returns testcases previously injected into this engine
	// via Pollenate, recovered from the pollen inbox directory.
	Pollinated() testcase.Set

	// Pollenate delivers a batch of testcases into the engine's
	// pollination inbox. A no-op, not an error, for variants that do not
	// support injection.
	Pollenate(batch testcase.Batch) error
}

// AllowedSignals is the default set of termination signals that make a
// crashing input worth surfacing. Overridable per adapter via the
// ALLOWED_SIGNALS configuration knob.
var AllowedSignals = map[testcase.Signal]bool{
	testcase.SIGSEGV: true,
	testcase.SIGILL:  true,
}

// readPollenInbox is the free function shared by every adapter variant for
// reading testcases previously injected via Pollenate. It is deliberately
// not a method on any base type: both variants read the same directory
// shape (one file per testcase, raw bytes, no framing).
func readPollenInbox(dir string, logger *zap.Logger) testcase.Set {
	set := testcase.Set{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Absent inbox directory is normal (nothing pollinated yet, or
		// the adapter was never asked to accept pollen); any other
		// error is a transient I/O race, locally recovered.
		return set
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Debug("pollen file vanished before read", zap.String("file", entry.Name()))
			continue
		}
		set.Add(testcase.Testcase(data))
	}
	return set
}

// writePollenInbox writes batch into dir, one uniquely-named file per
// distinct byte string. Returns the number of files actually written, which
// may be less than len(batch) when duplicate byte strings collapse.
func writePollenInbox(dir string, batch testcase.Batch, logger *zap.Logger) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	seen := testcase.Set{}
	written := 0
	for _, tc := range batch {
		if seen.Has(tc) {
			continue
		}
		seen.Add(tc)
		name := pollenFileName()
		if err := os.WriteFile(filepath.Join(dir, name), tc, 0o644); err != nil {
			logger.Warn("failed to write pollen file", zap.String("file", name), zap.Error(err))
			continue
		}
		written++
	}
	return written, nil
}

// readQueue enumerates files directly under dir, skipping the given
// basenames (engine-private bookkeeping entries such as AFL's ".state"
// child), and reads each remaining file as bytes. Missing files encountered
// mid-enumeration are skipped, not errors: the owning engine may rename or
// delete them concurrently.
func readQueue(dir string, skip map[string]bool, logger *zap.Logger) testcase.Set {
	set := testcase.Set{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return set
	}
	for _, entry := range entries {
		name := entry.Name()
		if skip[name] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Debug("queue file vanished before read", zap.String("file", name))
			continue
		}
		set.Add(testcase.Testcase(data))
	}
	return set
}

// readCrashes enumerates dir, parses each filename's "key:val,..." grammar,
// and keeps only crashes whose "sig" value is in allowed. README entries
// are skipped. Dedup is by byte-identity.
func readCrashes(dir string, allowed map[testcase.Signal]bool, logger *zap.Logger) []testcase.Crash {
	seen := map[string]bool{}
	var out []testcase.Crash

	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == "README.txt" {
			continue
		}
		sig, ok := parseCrashSignal(name)
		if !ok || !allowed[sig] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Debug("crash file vanished before read", zap.String("file", name))
			continue
		}
		key := string(data)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, testcase.Crash{Input: testcase.Testcase(data), Signal: sig})
	}
	return out
}

// parseCrashSignal parses a crash filename of the form
// "key1:val1,key2:val2,..." and extracts the "sig" field as a decimal
// signal number.
func parseCrashSignal(name string) (testcase.Signal, bool) {
	for _, attr := range strings.Split(name, ",") {
		kv := strings.SplitN(attr, ":", 2)
		if len(kv) != 2 {
			continue
		}
		if kv[0] != "sig" {
			continue
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil {
			return 0, false
		}
		return testcase.Signal(n), true
	}
	return 0, false
}

// parseStats parses a stats file of colon-separated "key: value" lines,
// tolerating a trailing blank line. No schema is imposed on keys.
func parseStats(statsPath string) map[string]string {
	stats := map[string]string{}
	f, err := os.Open(statsPath)
	if err != nil {
		return stats
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		stats[key] = val
	}
	return stats
}
