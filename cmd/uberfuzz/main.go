// Command uberfuzz is the thin CLI driver around the supervisor: it
// translates the positional binary argument and a handful of flags into
// the environment variables config.LoadConfig already knows how to read,
// wires the fx graph, and blocks until an interrupt drives a clean
// shutdown.
package main

import (
	"flag"
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"uberfuzz/config"
	"uberfuzz/internal/adapter"
	"uberfuzz/internal/crashstore"
	"uberfuzz/internal/scorer"
	"uberfuzz/internal/supervisor"
	"uberfuzz/pkg/eventbus"
	"uberfuzz/pkg/logger"
	"uberfuzz/pkg/telemetry"
)

func main() {
	workDir := flag.String("work-dir", "", "root work directory (default ./work)")
	readsFile := flag.String("reads-file", "", "path written with each testcase before invoking a file-reading target")
	extraOpts := flag.String("extra-opts", "", "comma-separated target argument vector, @@ replaced with the input filename")
	aflfastPath := flag.String("aflfast-path", "", "path to the mutational engine binary (default: AFLFAST_PATH)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: uberfuzz [flags] <binary>")
		os.Exit(1)
	}

	os.Setenv("BINARY_PATH", flag.Arg(0))
	if *workDir != "" {
		os.Setenv("WORK_DIR", *workDir)
	}
	if *readsFile != "" {
		os.Setenv("READ_FROM_FILE", *readsFile)
	}
	if *extraOpts != "" {
		os.Setenv("TARGET_OPTS", *extraOpts)
	}
	if *aflfastPath != "" {
		os.Setenv("MUTATIONAL_PATH", *aflfastPath)
	}

	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			telemetry.NewTelemetry,
			telemetry.NewTracerFactory,
		),
		adapter.Module,
		scorer.Module,
		crashstore.Module,
		eventbus.Module,
		supervisor.Module,
		fx.Invoke(func(*supervisor.Supervisor) {}),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}
