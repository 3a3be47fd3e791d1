// Package scorer implements the pluggable strategies the Supervisor uses to
// rank pollination candidates: higher score means more worth transplanting
// into the destination engine.
package scorer

import "uberfuzz/internal/testcase"

// Scorer assigns a real-valued score to a Testcase. Implementations are
// pure with respect to testcases: the same input yields the same score
// within a run. Which Scorer is in use is a construction-time decision the
// Supervisor makes once, never a runtime-mutable strategy.
type Scorer interface {
	Score(tc testcase.Testcase) float64
}

// SentinelLowScore is returned in place of a score the Scorer could not
// compute (a crashed tracer, an unreadable file): low enough to always sort
// behind any real score but never itself fatal to the pollination cycle.
const SentinelLowScore = -1
