package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
)

func TestReadQueueSkipsBookkeepingEntries(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "id:000"), "AAAA")
	mustWrite(t, filepath.Join(dir, "id:001"), "BB")
	if err := os.Mkdir(filepath.Join(dir, ".state"), 0o755); err != nil {
		t.Fatal(err)
	}

	set := readQueue(dir, map[string]bool{".state": true}, zap.NewNop())
	if len(set) != 2 {
		t.Fatalf("expected 2 queue entries, got %d: %v", len(set), set)
	}
	if !set.Has(testcase.Testcase("AAAA")) || !set.Has(testcase.Testcase("BB")) {
		t.Fatalf("missing expected queue entries: %v", set)
	}
}

func TestReadQueueToleratesAbsentDirectory(t *testing.T) {
	set := readQueue(filepath.Join(t.TempDir(), "does-not-exist"), nil, zap.NewNop())
	if len(set) != 0 {
		t.Fatalf("expected empty set for missing directory, got %v", set)
	}
}

func TestReadCrashesFiltersBySignalAndSkipsReadme(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "id:000,sig:11,src:000"), "segv-input")
	mustWrite(t, filepath.Join(dir, "id:001,sig:06,src:000"), "abort-input")
	mustWrite(t, filepath.Join(dir, "README.txt"), "not a crash")

	allowed := map[testcase.Signal]bool{testcase.SIGSEGV: true, testcase.SIGILL: true}
	crashes := readCrashes(dir, allowed, zap.NewNop())

	if len(crashes) != 1 {
		t.Fatalf("expected exactly 1 surfaced crash, got %d: %+v", len(crashes), crashes)
	}
	if crashes[0].Signal != testcase.SIGSEGV {
		t.Fatalf("expected SIGSEGV crash, got signal %d", crashes[0].Signal)
	}
	if string(crashes[0].Input) != "segv-input" {
		t.Fatalf("unexpected crash input: %q", crashes[0].Input)
	}
}

func TestReadCrashesDedupesByByteIdentity(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "id:000,sig:11"), "same-bytes")
	mustWrite(t, filepath.Join(dir, "id:001,sig:11"), "same-bytes")

	allowed := map[testcase.Signal]bool{testcase.SIGSEGV: true}
	crashes := readCrashes(dir, allowed, zap.NewNop())
	if len(crashes) != 1 {
		t.Fatalf("expected crash dedup by byte identity, got %d entries", len(crashes))
	}
}

func TestParseStatsTrimsAndToleratesBlankLines(t *testing.T) {
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "fuzzer_stats")
	mustWrite(t, statsPath, "execs_done : 12345\nlast_path   :  2024-01-01\n\n")

	stats := parseStats(statsPath)
	if stats["execs_done"] != "12345" {
		t.Fatalf("expected trimmed execs_done value, got %q", stats["execs_done"])
	}
	if stats["last_path"] != "2024-01-01" {
		t.Fatalf("expected trimmed last_path value, got %q", stats["last_path"])
	}
}

func TestParseStatsMissingFileReturnsEmptyMap(t *testing.T) {
	stats := parseStats(filepath.Join(t.TempDir(), "absent"))
	if len(stats) != 0 {
		t.Fatalf("expected empty map for missing stats file, got %v", stats)
	}
}

func TestPollenInboxRoundTripDedupesByContent(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	batch := testcase.Batch{testcase.Testcase("AAAA"), testcase.Testcase("AAAA"), testcase.Testcase("BB")}
	written, err := writePollenInbox(dir, batch, logger)
	if err != nil {
		t.Fatalf("writePollenInbox: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 distinct files written, got %d", written)
	}

	got := readPollenInbox(dir, logger)
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct testcases read back, got %d", len(got))
	}
	if !got.Has(testcase.Testcase("AAAA")) || !got.Has(testcase.Testcase("BB")) {
		t.Fatalf("pollen inbox missing expected entries: %v", got)
	}
}

func TestReadPollenInboxAbsentDirectoryIsEmpty(t *testing.T) {
	got := readPollenInbox(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	if len(got) != 0 {
		t.Fatalf("expected empty set for absent pollen inbox, got %v", got)
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
