package scorer

import "uberfuzz/internal/testcase"

// LengthScorer scores a testcase by its byte length: trivial, dependency-
// free, and total (never fails).
type LengthScorer struct{}

func NewLengthScorer() *LengthScorer { return &LengthScorer{} }

func (LengthScorer) Score(tc testcase.Testcase) float64 {
	return float64(len(tc))
}
