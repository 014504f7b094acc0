package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/xyproto/mouselog/internal/core/bucket"
)

// Sink types accepted by output.sink.
const (
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
)

// Config represents the top-level configuration for mouselog.
type Config struct {
	Device    DeviceConfig    `koanf:"device"`
	Output    OutputConfig    `koanf:"output"`
	Collector CollectorConfig `koanf:"collector"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Session   SessionConfig   `koanf:"session"`
}

type DeviceConfig struct {
	Path string `koanf:"path"`
}

type OutputConfig struct {
	Sink string `koanf:"sink"` // csv | postgres
	Path string `koanf:"path"` // csv file, used when sink is csv
}

type CollectorConfig struct {
	BucketInterval string `koanf:"bucket_interval"` // parsed with bucket.ParseInterval
	Duration       string `koanf:"duration"`        // 0 runs until interrupted
	StatLines      int    `koanf:"stat_lines"`
	TerminalWidth  int    `koanf:"terminal_width"`
	Verbose        bool   `koanf:"verbose"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug | info | warn | error
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Mode    string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type SessionConfig struct {
	ManifestPath string `koanf:"manifest_path"` // empty disables the manifest
}

// Interval returns the parsed bucket interval. Valid after Validate.
func (c CollectorConfig) Interval() time.Duration {
	d, _ := bucket.ParseInterval(c.BucketInterval)
	return d
}

// RunFor returns the parsed collection duration; 0 means no limit. Valid after Validate.
func (c CollectorConfig) RunFor() time.Duration {
	if c.Duration == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Duration)
	return d
}

// SlogLevel maps log.level to a slog level. Valid after Validate.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(c.Level))
	return lvl
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device.Path) == "" {
		return fmt.Errorf("device.path is required")
	}

	switch c.Output.Sink {
	case SinkCSV:
		if strings.TrimSpace(c.Output.Path) == "" {
			return fmt.Errorf("output.path is required for the csv sink")
		}
	case SinkPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres sink")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	default:
		return fmt.Errorf("unsupported output.sink %q (must be csv or postgres)", c.Output.Sink)
	}

	if _, err := bucket.ParseInterval(c.Collector.BucketInterval); err != nil {
		return fmt.Errorf("invalid collector.bucket_interval: %w", err)
	}
	if c.Collector.Duration != "" {
		d, err := time.ParseDuration(c.Collector.Duration)
		if err != nil {
			return fmt.Errorf("invalid collector.duration %q: %w", c.Collector.Duration, err)
		}
		if d < 0 {
			return fmt.Errorf("collector.duration must be >= 0")
		}
	}
	if c.Collector.StatLines <= 0 {
		return fmt.Errorf("collector.stat_lines must be > 0")
	}
	if c.Collector.TerminalWidth <= 0 {
		return fmt.Errorf("collector.terminal_width must be > 0")
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
		}
		if strings.TrimSpace(c.Server.Host) == "" {
			return fmt.Errorf("server.host is required")
		}
		if c.Server.Mode != "debug" && c.Server.Mode != "release" {
			return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
		}
	}

	return nil
}

// Override adjusts a loaded config before validation, e.g. from CLI flags.
type Override func(*Config)

// Load reads defaults, then the YAML file (if configPath is set), then
// MOUSELOG_ environment overrides, then applies overrides in order and
// validates the result.
func Load(configPath string, overrides ...Override) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"device.path":               "/dev/input/mice",
		"output.sink":               SinkCSV,
		"output.path":               "output.csv",
		"collector.bucket_interval": "60s",
		"collector.duration":        "",
		"collector.stat_lines":      40,
		"collector.terminal_width":  bucket.DefaultTerminalWidth,
		"collector.verbose":         false,
		"log.level":                 "info",
		"server.enabled":            false,
		"server.host":               "127.0.0.1",
		"server.port":               8383,
		"server.mode":               "release",
		"database.dsn":              "",
		"database.max_open_conns":   4,
		"database.max_idle_conns":   4,
		"database.auto_migrate":     true,
		"session.manifest_path":     "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// MOUSELOG_COLLECTOR__BUCKET_INTERVAL=1s overrides collector.bucket_interval
	if err := k.Load(env.Provider("MOUSELOG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MOUSELOG_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
