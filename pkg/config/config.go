package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Radio backends
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Config holds application configuration
type Config struct {
	LogLevel         string        `yaml:"log_level" default:"info"`
	Backend          string        `yaml:"backend" default:"goble"`
	ScanTimeout      time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"5s"`
	SweepPeriod      time.Duration `yaml:"sweep_period" default:"3s"`
	StaleAfter       time.Duration `yaml:"stale_after" default:"3s"`
	MTU              int           `yaml:"mtu" default:"517"`
	NameFilter       bool          `yaml:"name_filter" default:"true"`
	NamePrefix       string        `yaml:"name_prefix" default:"DTM"`
	OutputFormat     string        `yaml:"output_format" default:"table"` // table, json, csv
	TelemetryBuffer  int           `yaml:"telemetry_buffer" default:"256"`
	ResultBuffer     int           `yaml:"result_buffer" default:"64"`
	ParamsFile       string        `yaml:"params_file"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	if cfg.ParamsFile == "" {
		cfg.ParamsFile = defaultParamsFile()
	}
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Backend {
	case BackendGoBLE, BackendTinyGo:
	default:
		errs = append(errs, fmt.Errorf("backend: unknown backend %q (expected %s or %s)", c.Backend, BackendGoBLE, BackendTinyGo))
	}
	switch c.OutputFormat {
	case "table", "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("output_format: unknown format %q", c.OutputFormat))
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout":   c.ConnectTimeout,
		"operation_timeout": c.OperationTimeout,
		"sweep_period":      c.SweepPeriod,
		"stale_after":       c.StaleAfter,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, d))
		}
	}
	if c.ScanTimeout < 0 {
		errs = append(errs, fmt.Errorf("scan_timeout: must not be negative, got %s", c.ScanTimeout))
	}
	if c.MTU < 23 || c.MTU > 517 {
		errs = append(errs, fmt.Errorf("mtu: %d out of range [23, 517]", c.MTU))
	}
	if c.TelemetryBuffer <= 0 {
		errs = append(errs, fmt.Errorf("telemetry_buffer: must be positive"))
	}
	if c.ResultBuffer <= 0 {
		errs = append(errs, fmt.Errorf("result_buffer: must be positive"))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, info when invalid
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func defaultParamsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "perbench-params.yaml"
	}
	return filepath.Join(dir, "perbench", "params.yaml")
}
