package supervisor

import (
	"context"

	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
	"uberfuzz/pkg/eventbus"
	"uberfuzz/pkg/telemetry"
)

// logStatus is the target of the optional loggingTimer. For each adapter it
// emits one aggregated identifier/queue-size/crash-count line, then
// persists and publishes any crash not seen on a prior tick (crashstore
// upserts are themselves idempotent by md5, but the in-memory seen-set
// keeps the eventbus from re-announcing the same crash every tick).
func (s *Supervisor) logStatus(ctx context.Context) {
	for _, id := range s.order {
		a := s.adapters[id]

		tracer := s.tracerFactory.NewTracer(ctx, "status.tick")
		tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.AdapterLife).WithFuzzerIdentifier(string(id)))
		tracer.Start()

		queue := a.Queue()
		crashes := a.Crashes()

		s.logger.Info("adapter status",
			zap.String("identifier", string(id)),
			zap.Int("queue_size", len(queue)),
			zap.Int("crash_count", len(crashes)))

		for _, crash := range crashes {
			if s.markCrashSeen(id, crash.Input) {
				continue
			}
			s.crashStore.Record(ctx, string(id), crash)
			s.eventBus.PublishCrashFound(ctx, eventbus.CrashFoundEvent{
				FuzzerIdentifier: string(id),
				InputLength:      len(crash.Input),
				Signal:           int(crash.Signal),
			})
		}

		tracer.End()
	}
}

// markCrashSeen records input as seen for id and reports whether it had
// already been seen on a prior tick.
func (s *Supervisor) markCrashSeen(id testcase.Identifier, input testcase.Testcase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := s.seenCrashes[id]
	if seen == nil {
		seen = make(map[string]bool)
		s.seenCrashes[id] = seen
	}
	key := string(input)
	already := seen[key]
	seen[key] = true
	return already
}
