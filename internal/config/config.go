// Package config loads publisher configuration from the environment,
// with an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Contract  ContractConfig  `yaml:"contract"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// ScheduleConfig controls the optional local trigger loop. Zero means
// run one attempt and exit; production deployments trigger each run
// via an external scheduler.
type ScheduleConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Interval returns the trigger interval as a duration.
func (c ScheduleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type ContractConfig struct {
	// Source is the descriptor location: a filesystem path or a blob
	// URL (file://, s3://, gs://).
	Source string `yaml:"source"`

	// ProjectRoot resolves relative pipeline project paths from the
	// descriptor, typically the checkout root of the product repo.
	ProjectRoot string `yaml:"project_root"`

	// InputNamespace is the namespace the upstream input port is
	// agreed to live in; empty disables the cross-check.
	InputNamespace string `yaml:"input_namespace"`

	// Parameter is the freshness run parameter name.
	Parameter string `yaml:"parameter"`
}

type CatalogConfig struct {
	Mode     string `yaml:"mode"` // "http" | "local"
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"-"` // environment only, never from file
	User     string `yaml:"user"`
	LocalDir string `yaml:"local_dir"`

	// RunTimeoutSeconds bounds the blocking pipeline run call.
	RunTimeoutSeconds int `yaml:"run_timeout_seconds"`
}

// RunTimeout returns the run timeout as a duration.
func (c CatalogConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

type HistoryConfig struct {
	PostgresDSN string `yaml:"-"` // environment only
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Dir      string `yaml:"dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// MustLoad reads configuration from the environment, applying the YAML
// file named by CONFIG_FILE first if set. It exits on invalid input.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Load builds the configuration. Environment variables win over the
// overlay file, which wins over defaults.
func Load() (Config, error) {
	cfg := Config{
		Contract: ContractConfig{
			Parameter: "as_of_date",
		},
		Catalog: CatalogConfig{
			Mode:              "http",
			LocalDir:          "./catalog",
			RunTimeoutSeconds: 500,
		},
		Telemetry: TelemetryConfig{
			Dir: "./telemetry",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.Contract.Source = getenvDefault("CONTRACT_SOURCE", cfg.Contract.Source)
	cfg.Contract.ProjectRoot = getenvDefault("PROJECT_ROOT", cfg.Contract.ProjectRoot)
	cfg.Contract.InputNamespace = getenvDefault("INPUT_NAMESPACE", cfg.Contract.InputNamespace)
	cfg.Contract.Parameter = getenvDefault("FRESHNESS_PARAMETER", cfg.Contract.Parameter)

	cfg.Catalog.Mode = getenvDefault("CATALOG_MODE", cfg.Catalog.Mode)
	cfg.Catalog.Endpoint = getenvDefault("CATALOG_ENDPOINT", cfg.Catalog.Endpoint)
	cfg.Catalog.APIKey = os.Getenv("CATALOG_API_KEY")
	cfg.Catalog.User = getenvDefault("CATALOG_USER", cfg.Catalog.User)
	cfg.Catalog.LocalDir = getenvDefault("CATALOG_LOCAL_DIR", cfg.Catalog.LocalDir)
	if v := os.Getenv("RUN_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("RUN_TIMEOUT_SECONDS %q: %w", v, err)
		}
		cfg.Catalog.RunTimeoutSeconds = n
	}

	cfg.History.PostgresDSN = os.Getenv("HISTORY_DSN")

	if v := os.Getenv("PUBLISH_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("PUBLISH_INTERVAL_SECONDS %q: %w", v, err)
		}
		cfg.Schedule.IntervalSeconds = n
	}

	if os.Getenv("TELEMETRY_ENABLED") == "true" {
		cfg.Telemetry.Enabled = true
	}
	cfg.Telemetry.Endpoint = getenvDefault("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Dir = getenvDefault("TELEMETRY_DIR", cfg.Telemetry.Dir)

	if os.Getenv("METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)

	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)

	if cfg.Contract.Source == "" {
		return Config{}, fmt.Errorf("CONTRACT_SOURCE is required")
	}
	if cfg.Catalog.User == "" {
		return Config{}, fmt.Errorf("CATALOG_USER is required")
	}
	if cfg.Catalog.Mode == "http" && cfg.Catalog.Endpoint == "" {
		return Config{}, fmt.Errorf("CATALOG_ENDPOINT is required in http mode")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
