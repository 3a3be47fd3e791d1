package supervisor

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"uberfuzz/config"
	"uberfuzz/internal/adapter"
	"uberfuzz/internal/crashstore"
	"uberfuzz/internal/scorer"
	"uberfuzz/pkg/eventbus"
	"uberfuzz/pkg/telemetry"
)

// Params collects what the fx graph hands New: the adapter value group,
// the configured Scorer, and the ambient-stack collaborators.
type Params struct {
	fx.In

	Adapters      []adapter.Adapter `group:"adapters"`
	Scorer        scorer.Scorer
	Config        *config.AppConfig
	Logger        *zap.Logger
	TracerFactory *telemetry.TracerFactory
	EventBus      eventbus.EventBus
	CrashStore    *crashstore.Store
	Callback      Callback `optional:"true"`

	Lifecycle fx.Lifecycle
}

// NewFromParams builds the Supervisor from the fx graph and registers its
// Start/Kill with the fx lifecycle.
func NewFromParams(p Params) (*Supervisor, error) {
	s, err := New(Config{
		Adapters:          p.Adapters,
		Scorer:            p.Scorer,
		SelectionPressure: p.Config.SelectionPressure,
		PollenationPeriod: p.Config.PollenationInterval,
		LoggingPeriod:     p.Config.LoggingTimeInterval,
		CallbackPeriod:    p.Config.CallbackTimeInterval,
		Callback:          p.Callback,
		TracerFactory:     p.TracerFactory,
		EventBus:          p.EventBus,
		CrashStore:        p.CrashStore,
	}, p.Logger)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			s.Kill()
			return nil
		},
	})

	return s, nil
}

// Module wires the Supervisor into the fx graph.
var Module = fx.Options(fx.Provide(NewFromParams))
