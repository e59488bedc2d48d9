package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel     = "OBJCTL_LOG_LEVEL"
	EnvLogTimestamp = "OBJCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "OBJCTL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options controls the process logger. Zero values fall back to the profile defaults.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Config is the resolved logger configuration.
type Config struct {
	Level      zerolog.Level
	Timestamp  bool
	NoColor    bool
	File       string
	MaxSizeMB  int
	MaxBackups int
}

var configureOnce sync.Once

func ConfigureRuntime(opts Options) {
	Configure(ProfileRuntime, opts)
}

func ConfigureTests() {
	Configure(ProfileTest, Options{})
}

// Configure installs the global zerolog logger. Only the first call has effect.
func Configure(profile Profile, opts Options) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyOptions(&cfg, opts)
		applyEnvOverrides(&cfg)
		log.Logger = build(cfg, os.Stderr)
		zerolog.SetGlobalLevel(cfg.Level)
	})
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyOptions(cfg *Config, opts Options) {
	if lvl, ok := parseLevel(opts.Level); ok {
		cfg.Level = lvl
	}
	if f := strings.TrimSpace(opts.File); f != "" {
		cfg.File = f
		cfg.MaxSizeMB = opts.MaxSizeMB
		cfg.MaxBackups = opts.MaxBackups
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func build(cfg Config, console io.Writer) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        console,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.MaxSizeMB, 10),
			MaxBackups: max(cfg.MaxBackups, 1),
		})
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
