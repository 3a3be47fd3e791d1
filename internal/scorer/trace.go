package scorer

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"uberfuzz/internal/testcase"
	"uberfuzz/internal/uerrors"
)

// FileInputPlaceholder is the token in a target's argument vector that the
// mutational engine replaces with the input filename when the target reads
// from a file rather than standard input.
const FileInputPlaceholder = "@@"

// Tracer is the out-of-scope symbolic/concolic collaborator TraceScorer
// delegates to: it re-executes the target under concolic semantics and
// reports a numeric property of the last live execution state (e.g.
// path-constraint length). Only its interface to the core is specified.
type Tracer interface {
	Trace(binary string, argv []string, input testcase.Testcase) (TraceResult, error)
}

// TraceResult is the numeric property of a concolic trace's last live
// state that TraceScorer uses as a score.
type TraceResult struct {
	LastActiveStateLength float64
}

// TraceScorer scores a testcase by a numeric property of a concolic
// execution trace of the target on that input.
//
// TraceScorer may be slow and must tolerate tracer failures by returning
// SentinelLowScore rather than aborting the pollination cycle.
type TraceScorer struct {
	binary    string
	argv      []string
	readsFile string
	tracer    Tracer
	logger    *zap.Logger
}

// NewTraceScorer constructs a TraceScorer. Construction fails with a
// ConfigError if argv contains FileInputPlaceholder but no concrete
// readsFile path is supplied: there would be no sink to materialize the
// testcase on disk before tracing.
func NewTraceScorer(binary string, argv []string, readsFile string, tracer Tracer, logger *zap.Logger) (*TraceScorer, error) {
	needsFile := false
	for _, a := range argv {
		if strings.Contains(a, FileInputPlaceholder) {
			needsFile = true
			break
		}
	}
	if needsFile && readsFile == "" {
		return nil, uerrors.NewConfigError("trace scorer",
			"target argv contains the file-input placeholder but no read-from-file path was supplied")
	}

	return &TraceScorer{
		binary:    binary,
		argv:      argv,
		readsFile: readsFile,
		tracer:    tracer,
		logger:    logger.With(zap.String("scorer", "trace")),
	}, nil
}

func (s *TraceScorer) Score(tc testcase.Testcase) float64 {
	if s.readsFile != "" {
		if err := os.WriteFile(s.readsFile, tc, 0o644); err != nil {
			s.logger.Warn("failed to materialize testcase for tracing", zap.Error(err))
			return SentinelLowScore
		}
	}

	result, err := s.tracer.Trace(s.binary, s.argv, tc)
	if err != nil {
		s.logger.Warn("tracer failed, using sentinel score", zap.Error(err))
		return SentinelLowScore
	}
	return result.LastActiveStateLength
}
