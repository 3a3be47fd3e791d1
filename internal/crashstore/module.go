package crashstore

import "go.uber.org/fx"

// Module wires the optional crash database connection and the Store built
// around it into the fx graph.
var Module = fx.Options(
	fx.Provide(NewDBConnection),
	fx.Provide(NewStore),
)
