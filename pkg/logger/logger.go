package logger

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"uberfuzz/config"
)

type LoggerParams struct {
	fx.In
	AppConfig *config.AppConfig
}

// NewLogger builds the zap.Logger every component logs through, selecting
// a zap.Config by the string log level from config: a direct
// zap.Config.Build with zap.AddCaller(), nothing more.
func NewLogger(p LoggerParams) *zap.Logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(p.AppConfig.LogLevel) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if level > zapcore.InfoLevel {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	lg, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return zap.NewExample()
	}
	return lg.Named(p.AppConfig.ServiceName)
}

// Module wires the logger into the fx graph.
var Module = fx.Options(fx.Provide(NewLogger))
