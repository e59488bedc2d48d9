package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/task"
	"github.com/danmuck/objctl/internal/tasks/curl"
)

// Config is the resolved operator configuration.
type Config struct {
	Agent    AgentConfig
	Dispatch DispatchConfig
	Encoding EncodingConfig
	Modules  ModulesConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Curl     CurlConfig
}

type AgentConfig struct {
	Broker             string
	AgentID            string
	ClientID           string
	QoS                byte
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
}

type DispatchConfig struct {
	Timeout time.Duration
}

type EncodingConfig struct {
	WideLength args.LengthMode
}

type ModulesConfig struct {
	Dir  string
	Arch string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type MetricsConfig struct {
	Addr string
}

type CurlConfig struct {
	UserAgent string
}

func Default() Config {
	return Config{
		Agent: AgentConfig{
			Broker:             "tcp://127.0.0.1:1883",
			QoS:                1,
			ConnectTimeout:     5 * time.Second,
			MaxConnectAttempts: 5,
		},
		Dispatch: DispatchConfig{Timeout: 2 * time.Minute},
		Encoding: EncodingConfig{WideLength: args.LengthUnits},
		Modules:  ModulesConfig{Dir: task.DefaultBinaryDir, Arch: "x64"},
		Log:      LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3},
		Curl:     CurlConfig{UserAgent: curl.DefaultUserAgent},
	}
}

// objctl config.toml key mapping. Durations are strings ("5s", "2m").
type fileConfig struct {
	Agent struct {
		Broker             string `toml:"broker"`
		AgentID            string `toml:"agent_id"`
		ClientID           string `toml:"client_id"`
		QoS                int    `toml:"qos"`
		ConnectTimeout     string `toml:"connect_timeout"`
		MaxConnectAttempts int    `toml:"max_connect_attempts"`
	} `toml:"agent"`
	Dispatch struct {
		Timeout string `toml:"timeout"`
	} `toml:"dispatch"`
	Encoding struct {
		WideLength string `toml:"wide_length"`
	} `toml:"encoding"`
	Modules struct {
		Dir  string `toml:"dir"`
		Arch string `toml:"arch"`
	} `toml:"modules"`
	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
	} `toml:"log"`
	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
	Tasks struct {
		Curl struct {
			UserAgent string `toml:"user_agent"`
		} `toml:"curl"`
	} `toml:"tasks"`
}

// Load overlays the keys present in path onto Default(). Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("agent", "broker") {
		cfg.Agent.Broker = strings.TrimSpace(raw.Agent.Broker)
	}
	if meta.IsDefined("agent", "agent_id") {
		cfg.Agent.AgentID = strings.TrimSpace(raw.Agent.AgentID)
	}
	if meta.IsDefined("agent", "client_id") {
		cfg.Agent.ClientID = strings.TrimSpace(raw.Agent.ClientID)
	}
	if meta.IsDefined("agent", "qos") {
		if raw.Agent.QoS < 0 || raw.Agent.QoS > 2 {
			return Config{}, fmt.Errorf("load config: agent.qos must be 0, 1 or 2, got %d", raw.Agent.QoS)
		}
		cfg.Agent.QoS = byte(raw.Agent.QoS)
	}
	if meta.IsDefined("agent", "connect_timeout") {
		d, err := parseDuration("agent.connect_timeout", raw.Agent.ConnectTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Agent.ConnectTimeout = d
	}
	if meta.IsDefined("agent", "max_connect_attempts") {
		cfg.Agent.MaxConnectAttempts = raw.Agent.MaxConnectAttempts
	}
	if meta.IsDefined("dispatch", "timeout") {
		d, err := parseDuration("dispatch.timeout", raw.Dispatch.Timeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Dispatch.Timeout = d
	}
	if meta.IsDefined("encoding", "wide_length") {
		mode, err := args.ParseLengthMode(raw.Encoding.WideLength)
		if err != nil {
			return Config{}, fmt.Errorf("load config: encoding.wide_length: %w", err)
		}
		cfg.Encoding.WideLength = mode
	}
	if meta.IsDefined("modules", "dir") {
		cfg.Modules.Dir = strings.TrimSpace(raw.Modules.Dir)
	}
	if meta.IsDefined("modules", "arch") {
		cfg.Modules.Arch = strings.TrimSpace(raw.Modules.Arch)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}
	if meta.IsDefined("tasks", "curl", "user_agent") {
		cfg.Curl.UserAgent = raw.Tasks.Curl.UserAgent
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Agent.Broker) == "" {
		return fmt.Errorf("agent.broker is required")
	}
	if c.Agent.ConnectTimeout <= 0 {
		return fmt.Errorf("agent.connect_timeout must be positive")
	}
	if c.Agent.MaxConnectAttempts < 1 {
		return fmt.Errorf("agent.max_connect_attempts must be >= 1")
	}
	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("dispatch.timeout must not be negative")
	}
	if strings.TrimSpace(c.Modules.Dir) == "" {
		return fmt.Errorf("modules.dir is required")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("load config: %s: %w", key, err)
	}
	return d, nil
}
