// Package config loads daemon settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

// #region sections
// SourceConfig selects where motion samples come from.
type SourceConfig struct {
	Kind       string `yaml:"kind"` // "jsonl" | "serial"
	Path       string `yaml:"path"` // jsonl file, "-" for stdin
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig controls forwarding of events to a downstream gRPC sink.
type RelayConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type PipelineConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "stdout" | "otlp"
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// CollectorConfig is read by the collector binary only.
type CollectorConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the top-level structure of falldetect.yaml.
type Config struct {
	Mode      string          `yaml:"mode"`
	Source    SourceConfig    `yaml:"source"`
	Store     StoreConfig     `yaml:"store"`
	Relay     RelayConfig     `yaml:"relay"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Location  *LocationConfig `yaml:"location"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Collector CollectorConfig `yaml:"collector"`
}

// #endregion sections

// #region defaults
const (
	SourceJSONL  = "jsonl"
	SourceSerial = "serial"
)

// Default returns the settings used when no file or variable overrides them.
func Default() Config {
	return Config{
		Mode: string(profile.DefaultMode),
		Source: SourceConfig{
			Kind:     SourceJSONL,
			Path:     "-",
			BaudRate: 115200,
		},
		Store: StoreConfig{Path: "falldetect.db"},
		Relay: RelayConfig{
			Addr:       "localhost:50061",
			Timeout:    3 * time.Second,
			MaxRetries: 2,
		},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Pipeline:  PipelineConfig{EventBuffer: 16},
		Tracing:   TracingConfig{Exporter: "stdout", SampleRatio: 1},
		Collector: CollectorConfig{Listen: ":50061"},
	}
}

// #endregion defaults

// #region loader
// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("FALLDETECT_MODE", &c.Mode)
	set("FALLDETECT_DB", &c.Store.Path)
	set("METRICS_ADDR", &c.Metrics.Addr)
	set("LOG_LEVEL", &c.Logging.Level)
	set("LOG_FORMAT", &c.Logging.Format)
	set("COLLECTOR_ADDR", &c.Collector.Listen)

	if v, ok := lookup("FALLDETECT_SERIAL_PORT"); ok && v != "" {
		c.Source.Kind = SourceSerial
		c.Source.SerialPort = v
	}
	if v, ok := lookup("RELAY_ADDR"); ok && v != "" {
		c.Relay.Enabled = true
		c.Relay.Addr = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = "otlp"
		c.Tracing.Endpoint = v
	}
	if v, ok := lookup("FALLDETECT_TRACING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FALLDETECT_TRACING: %w", err)
		}
		c.Tracing.Enabled = b
	}
	if v, ok := lookup("FALLDETECT_EVENT_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FALLDETECT_EVENT_BUFFER: %w", err)
		}
		c.Pipeline.EventBuffer = n
	}
	return nil
}

// #endregion loader

// #region validate
// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := profile.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	switch c.Source.Kind {
	case SourceJSONL:
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required for jsonl"))
		}
	case SourceSerial:
		if c.Source.SerialPort == "" {
			errs = append(errs, errors.New("source.serial_port is required for serial"))
		}
		if c.Source.BaudRate <= 0 {
			errs = append(errs, fmt.Errorf("source.baud_rate must be positive, got %d", c.Source.BaudRate))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.kind %q", c.Source.Kind))
	}
	if c.Relay.Enabled {
		if c.Relay.Addr == "" {
			errs = append(errs, errors.New("relay.addr is required when relay is enabled"))
		}
		if c.Relay.MaxRetries < 0 {
			errs = append(errs, errors.New("relay.max_retries must not be negative"))
		}
	}
	if c.Pipeline.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.event_buffer must be positive, got %d", c.Pipeline.EventBuffer))
	}
	if c.Tracing.Enabled {
		if c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
			errs = append(errs, fmt.Errorf("unknown tracing.exporter %q", c.Tracing.Exporter))
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			errs = append(errs, fmt.Errorf("tracing.sample_ratio must be in [0,1], got %g", c.Tracing.SampleRatio))
		}
	}
	if c.Location != nil {
		if c.Location.Latitude < -90 || c.Location.Latitude > 90 ||
			c.Location.Longitude < -180 || c.Location.Longitude > 180 {
			errs = append(errs, fmt.Errorf("location out of range: %f,%f", c.Location.Latitude, c.Location.Longitude))
		}
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region accessors
// ProfileMode returns the configured mode, or the default when invalid.
func (c *Config) ProfileMode() profile.Mode {
	m, err := profile.ParseMode(c.Mode)
	if err != nil {
		return profile.DefaultMode
	}
	return m
}

// FixedLocation returns the configured static location, or nil.
func (c *Config) FixedLocation() *motion.Location {
	if c.Location == nil {
		return nil
	}
	return &motion.Location{Latitude: c.Location.Latitude, Longitude: c.Location.Longitude}
}

// #endregion accessors
