package supervisor

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
	"uberfuzz/pkg/eventbus"
	"uberfuzz/pkg/telemetry"
)

// scoredCandidate pairs a candidate testcase with its score, to keep the
// mapping stable across the sort below.
type scoredCandidate struct {
	tc    testcase.Testcase
	score float64
}

// pollinate runs one pollination cycle: discover the destination's known
// set, diff the source's queue against it, score and rank the remainder,
// and hand the elite plus a selection-pressure-sized tail to the
// destination's pollen sink. It is the target of the Supervisor's
// pollenationTimer, so it never overlaps itself, and ctx is the timer's own
// cancellation context, cancelled the moment Kill calls
// pollenationTimer.Cancel().
func (s *Supervisor) pollinate(ctx context.Context) {
	if !s.pollinationActive {
		// Only one adapter enabled: pollination is a no-op, not an error.
		return
	}

	source := s.adapters[s.sourceID]
	dest := s.adapters[s.destID]

	tracer := s.tracerFactory.NewTracer(ctx, "pollination.cycle")
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Pollination).WithFuzzerIdentifier(string(s.sourceID)))
	tracer.Start()
	defer tracer.End()

	known := dest.Queue().Union(dest.Pollinated())

	var candidates []testcase.Testcase
	for _, tc := range source.Queue().Slice() {
		if !known.Has(tc) {
			candidates = append(candidates, tc)
		}
	}

	n := len(candidates)
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Pollination).
		WithFuzzerIdentifier(string(s.sourceID)).WithCandidateCount(n))

	if n == 0 {
		s.logger.Debug("no pollination candidates",
			zap.String("source", string(s.sourceID)), zap.String("destination", string(s.destID)))
		return
	}

	scored := make([]scoredCandidate, 0, n)
	for _, tc := range candidates {
		select {
		case <-ctx.Done():
			// A cancelled cycle finishes the current candidate's score
			// but aborts at the next candidate boundary, before writing
			// anything.
			s.logger.Debug("pollination cycle cancelled mid-scoring, aborting", zap.Int("scored", len(scored)))
			return
		default:
		}
		scored = append(scored, scoredCandidate{tc: tc, score: s.scorer.Score(tc)})
	}

	select {
	case <-ctx.Done():
		s.logger.Debug("pollination cycle cancelled before selection, aborting")
		return
	default:
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	// tailCount = floor(N * selection_pressure) - 1, clamped to
	// [0, len(scored)-1]. The fraction is of N, not N-1: with N=2 and the
	// default pressure the tail is empty and only the elite transplants.
	tailCount := int(float64(n)*s.selectionPressure) - 1
	if tailCount < 0 {
		tailCount = 0
	}
	if limit := len(scored) - 1; tailCount > limit {
		tailCount = limit
	}

	elite := scored[0]
	batch := make(testcase.Batch, 0, 1+tailCount)
	batch = append(batch, elite.tc)
	batch = append(batch, toTestcases(scored[1:1+tailCount])...)

	if err := dest.Pollenate(batch); err != nil {
		s.logger.Warn("pollenate failed", zap.String("destination", string(s.destID)), zap.Error(err))
		return
	}

	selectedCount := len(batch) - 1
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Pollination).
		WithFuzzerIdentifier(string(s.sourceID)).
		WithCandidateCount(n).
		WithEliteLength(len(elite.tc)).
		WithSelectedCount(selectedCount))

	s.logger.Info("pollination cycle complete",
		zap.String("source", string(s.sourceID)),
		zap.String("destination", string(s.destID)),
		zap.Int("candidates", n),
		zap.Int("elite_length", len(elite.tc)),
		zap.Int("selected_count", selectedCount))

	s.eventBus.PublishPollinationCompleted(ctx, eventbus.PollinationCompletedEvent{
		Source:         string(s.sourceID),
		Destination:    string(s.destID),
		CandidateCount: n,
		EliteLength:    len(elite.tc),
		SelectedCount:  selectedCount,
	})
}

func toTestcases(scored []scoredCandidate) []testcase.Testcase {
	out := make([]testcase.Testcase, len(scored))
	for i, c := range scored {
		out[i] = c.tc
	}
	return out
}
