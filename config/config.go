package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// AppConfig is the typed environment Uberfuzz reads exactly once at
// startup: no component scatters os.Getenv calls of its own, they all come
// from here.
type AppConfig struct {
	BinaryPath string
	WorkDir    string

	UseMutational bool
	UseAssisted   bool

	MutationalPath     string
	AssistedDriverPath string

	PollenationInterval  time.Duration
	LoggingTimeInterval  time.Duration // zero disables the status timer
	CallbackTimeInterval time.Duration // zero disables the user-callback timer

	ReadFromFile string
	TargetOpts   []string
	Seeds        []string

	SelectionPressure float64
	AllowedSignals    []int // decimal termination signals surfaced as crashes

	LogLevel    string
	ServiceName string

	// Optional sinks: absent/empty disables the corresponding component
	// rather than failing startup.
	DatabaseURL  string
	RabbitMQURL  string
	OTLPEndpoint string
}

// LoadConfig loads .env (if present), reads the process environment, and
// applies typed defaults. Required-but-missing values are fatal here, at
// startup, rather than surfacing later mid-campaign.
func LoadConfig() *AppConfig {
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	cfg := &AppConfig{
		BinaryPath: os.Getenv("BINARY_PATH"),
		WorkDir:    os.Getenv("WORK_DIR"),

		UseMutational: parseBool(os.Getenv("USE_MUTATIONAL"), true),
		UseAssisted:   parseBool(os.Getenv("USE_ASSISTED"), false),

		// AFLFAST_PATH is the legacy name; MUTATIONAL_PATH wins when
		// both are set.
		MutationalPath:     firstNonEmpty(os.Getenv("MUTATIONAL_PATH"), os.Getenv("AFLFAST_PATH")),
		AssistedDriverPath: os.Getenv("ASSISTED_DRIVER_PATH"),

		PollenationInterval:  parseDuration(os.Getenv("POLLENATION_INTERVAL"), 60*time.Second),
		LoggingTimeInterval:  parseDuration(os.Getenv("LOGGING_TIME_INTERVAL"), 30*time.Second),
		CallbackTimeInterval: parseDuration(os.Getenv("CALLBACK_TIME_INTERVAL"), 0),

		ReadFromFile: os.Getenv("READ_FROM_FILE"),
		TargetOpts:   parseList(os.Getenv("TARGET_OPTS")),
		Seeds:        parseSeeds(os.Getenv("SEEDS_DIR")),

		SelectionPressure: parseFloat(os.Getenv("SELECTION_PRESSURE"), 0.4),
		AllowedSignals:    parseSignals(os.Getenv("ALLOWED_SIGNALS")),

		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: os.Getenv("SERVICE_NAME"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "uberfuzz"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "./work"
	}

	if cfg.BinaryPath == "" {
		logger.Fatal("BINARY_PATH environment variable is required")
	}
	if !cfg.UseMutational && !cfg.UseAssisted {
		logger.Fatal("at least one of USE_MUTATIONAL or USE_ASSISTED must be enabled")
	}
	if cfg.UseMutational && cfg.MutationalPath == "" {
		logger.Fatal("USE_MUTATIONAL is set but neither MUTATIONAL_PATH nor AFLFAST_PATH is configured")
	}
	if cfg.UseAssisted && cfg.AssistedDriverPath == "" {
		logger.Fatal("USE_ASSISTED is set but ASSISTED_DRIVER_PATH is not configured")
	}

	return cfg
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseFloat(val string, defaultVal float64) float64 {
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// parseList splits a comma-separated argument vector override, e.g.
// "--flag,value,@@" for TARGET_OPTS.
func parseList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseSignals parses a comma-separated list of decimal signal numbers,
// defaulting to {SIGSEGV, SIGILL}.
func parseSignals(val string) []int {
	if val == "" {
		return []int{11, 4} // SIGSEGV, SIGILL
	}
	parts := strings.Split(val, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := parseInt(p, -1)
		if n >= 0 {
			out = append(out, n)
		}
	}
	return out
}

// parseSeeds reads every file directly under dir as one seed byte string,
// tolerating an absent or empty directory (no seeds, adapter still starts
// fresh with an empty input set).
func parseSeeds(dir string) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var seeds []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(dir + string(os.PathSeparator) + entry.Name())
		if err != nil {
			continue
		}
		seeds = append(seeds, string(data))
	}
	return seeds
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
