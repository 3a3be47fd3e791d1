package scorer

import "go.uber.org/fx"

// provideDefault wires LengthScorer as the Scorer the fx graph supplies to
// the Supervisor. TraceScorer needs a concrete Tracer, which only the
// caller can supply; a caller with its own Tracer implementation
// constructs a TraceScorer directly in place of this provider.
func provideDefault() Scorer {
	return NewLengthScorer()
}

// Module wires the default Scorer into the fx graph.
var Module = fx.Options(fx.Provide(provideDefault))
