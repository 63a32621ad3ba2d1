// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/atomictrader/internal/domain/mode"
)

// LoggingConfig selects the zap logger level and encoder.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ClockConfig configures the network time source used by live modes.
type ClockConfig struct {
	Servers     []string      `yaml:"servers"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// ReportConfig sizes the report sink.
type ReportConfig struct {
	RecentBuffer  int     `yaml:"recentBuffer"`
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// MonitorConfig configures the monitoring endpoint.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// VenueConfig configures the trading venue session transport.
type VenueConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// ShutdownConfig bounds the strategy unwind performed on exit.
type ShutdownConfig struct {
	GracePeriod time.Duration `yaml:"gracePeriod"`
}

// StartupConfig selects the run mode and strategies applied at process start.
type StartupConfig struct {
	Mode       mode.Mode `yaml:"mode"`
	Strategies []string  `yaml:"strategies"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the unified application configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Logging     LoggingConfig   `yaml:"logging"`
	Clock       ClockConfig     `yaml:"clock"`
	Report      ReportConfig    `yaml:"report"`
	Monitor     MonitorConfig   `yaml:"monitor"`
	Venue       VenueConfig     `yaml:"venue"`
	Shutdown    ShutdownConfig  `yaml:"shutdown"`
	Startup     StartupConfig   `yaml:"startup"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when no file is present.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Startup:     StartupConfig{Mode: mode.Idle},
		Telemetry:   TelemetryConfig{ServiceName: "atomictrader"},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads the config file when it exists and falls back to Default otherwise.
// The boolean reports whether the file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	cfg, err := Load(ctx, configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	return AppConfig{}, false, err
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Monitor.Addr = strings.TrimSpace(c.Monitor.Addr)
	c.Venue.URL = strings.TrimSpace(c.Venue.URL)
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)

	servers := make([]string, 0, len(c.Clock.Servers))
	for _, s := range c.Clock.Servers {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			servers = append(servers, trimmed)
		}
	}
	c.Clock.Servers = servers

	if len(c.Startup.Strategies) > 0 {
		seen := make(map[string]struct{}, len(c.Startup.Strategies))
		names := make([]string, 0, len(c.Startup.Strategies))
		for _, raw := range c.Startup.Strategies {
			name := normalizeStrategyName(raw)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
		c.Startup.Strategies = names
	}
}

func (c *AppConfig) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Clock.Servers) == 0 {
		c.Clock.Servers = []string{"pool.ntp.org"}
	}
	if c.Clock.Timeout <= 0 {
		c.Clock.Timeout = 5 * time.Second
	}
	if c.Clock.MaxAttempts <= 0 {
		c.Clock.MaxAttempts = 3
	}
	if c.Report.RecentBuffer <= 0 {
		c.Report.RecentBuffer = 256
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = ":1235"
	}
	if c.Venue.URL == "" {
		c.Venue.URL = "ws://127.0.0.1:7497/session"
	}
	if c.Venue.DialTimeout <= 0 {
		c.Venue.DialTimeout = 10 * time.Second
	}
	if c.Venue.MaxAttempts <= 0 {
		c.Venue.MaxAttempts = 3
	}
	if c.Shutdown.GracePeriod <= 0 {
		c.Shutdown.GracePeriod = 2 * time.Second
	}
	if c.Startup.Mode == "" {
		c.Startup.Mode = mode.Idle
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "atomictrader"
	}
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level must be one of debug, info, warn, error")
	}
	if len(c.Clock.Servers) == 0 {
		return fmt.Errorf("clock servers required")
	}
	if c.Clock.Timeout <= 0 {
		return fmt.Errorf("clock timeout must be >0")
	}
	if c.Clock.MaxAttempts <= 0 {
		return fmt.Errorf("clock maxAttempts must be >0")
	}
	if c.Report.RecentBuffer <= 0 {
		return fmt.Errorf("report recentBuffer must be >0")
	}
	if c.Report.RatePerSecond < 0 {
		return fmt.Errorf("report ratePerSecond must be >=0")
	}
	if c.Report.Burst < 0 {
		return fmt.Errorf("report burst must be >=0")
	}
	if c.Monitor.Addr == "" {
		return fmt.Errorf("monitor addr required")
	}
	if !strings.HasPrefix(c.Venue.URL, "ws://") && !strings.HasPrefix(c.Venue.URL, "wss://") {
		return fmt.Errorf("venue url must use ws:// or wss://")
	}
	if c.Venue.DialTimeout <= 0 {
		return fmt.Errorf("venue dialTimeout must be >0")
	}
	if c.Venue.MaxAttempts <= 0 {
		return fmt.Errorf("venue maxAttempts must be >0")
	}
	if c.Shutdown.GracePeriod <= 0 {
		return fmt.Errorf("shutdown gracePeriod must be >0")
	}
	if !c.Startup.Mode.Valid() {
		return fmt.Errorf("startup mode %q is not a known mode", c.Startup.Mode)
	}
	if c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
