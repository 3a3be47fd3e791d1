package adapter

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"uberfuzz/config"
	"uberfuzz/internal/testcase"
)

// AdapterParams collects what both adapter constructors need from the
// fx graph.
type AdapterParams struct {
	fx.In
	Config *config.AppConfig
	Logger *zap.Logger
}

// provideMutational returns a nil Adapter (filtered out by the Supervisor's
// nil-skip) when the mutational engine is disabled by configuration.
func provideMutational(p AdapterParams) (Adapter, error) {
	if !p.Config.UseMutational || p.Config.MutationalPath == "" {
		p.Logger.Debug("mutational adapter disabled")
		return nil, nil
	}
	a, err := NewMutationalAdapter(MutationalConfig{
		EnginePath:    p.Config.MutationalPath,
		BinaryPath:    p.Config.BinaryPath,
		WorkDir:       p.Config.WorkDir,
		Seeds:         seedsFromConfig(p.Config),
		TargetOpts:    p.Config.TargetOpts,
		ReadFromFile:  p.Config.ReadFromFile,
		AllowedSignal: allowedSignalsFromConfig(p.Config),
	}, p.Logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func provideAssisted(p AdapterParams) Adapter {
	if !p.Config.UseAssisted || p.Config.AssistedDriverPath == "" {
		p.Logger.Debug("assisted adapter disabled")
		return nil
	}
	engine := NewProcessSymbolicEngine(p.Config.AssistedDriverPath, p.Config.BinaryPath, p.Config.WorkDir, p.Logger)
	return NewAssistedAdapter(engine, allowedSignalsFromConfig(p.Config), p.Logger)
}

func seedsFromConfig(cfg *config.AppConfig) []testcase.Testcase {
	seeds := make([]testcase.Testcase, 0, len(cfg.Seeds))
	for _, s := range cfg.Seeds {
		seeds = append(seeds, testcase.Testcase(s))
	}
	return seeds
}

// allowedSignalsFromConfig builds the allowed-signal set from the
// ALLOWED_SIGNALS knob, defaulting to {SIGSEGV, SIGILL} when unset.
func allowedSignalsFromConfig(cfg *config.AppConfig) map[testcase.Signal]bool {
	if len(cfg.AllowedSignals) == 0 {
		return AllowedSignals
	}
	allowed := make(map[testcase.Signal]bool, len(cfg.AllowedSignals))
	for _, s := range cfg.AllowedSignals {
		allowed[testcase.Signal(s)] = true
	}
	return allowed
}

// Module wires both adapter variants into the "adapters" fx value group the
// Supervisor consumes.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(provideMutational, fx.ResultTags(`group:"adapters"`)),
		fx.Annotate(provideAssisted, fx.ResultTags(`group:"adapters"`)),
	),
)
