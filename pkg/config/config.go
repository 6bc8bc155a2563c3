// Package config loads the TestSetConfig root document: the framework,
// telemetry, and worker-pool settings plus the stream, GOOSE subscription,
// and trip-rule definitions that parameterize one session.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/virtualtestset/vpac/pkg/sv"
)

// Config is the TestSetConfig root document.
type Config struct {
	Framework  FrameworkConfig     `yaml:"framework"`
	Telemetry  TelemetryConfig     `yaml:"telemetry"`
	WorkerPool WorkerPoolConfig    `yaml:"worker_pool"`
	Streams    []sv.StreamConfig   `yaml:"streams"`
	GooseSubs  []GooseSubscription `yaml:"goose_subscriptions"`
	TripRules  map[string]string   `yaml:"trip_rules"`
	Reporting  ReportingConfig     `yaml:"reporting"`
}

// FrameworkConfig contains general framework settings.
type FrameworkConfig struct {
	LogLevel  string  `yaml:"log_level"`
	LogFormat string  `yaml:"log_format"`
	WarmupSec float64 `yaml:"warmup_sec"`
}

// TelemetryConfig contains the Prometheus metrics endpoint settings.
type TelemetryConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// WorkerPoolConfig mirrors pkg/workerpool.Config in YAML form.
type WorkerPoolConfig struct {
	NumWorkers    int   `yaml:"num_workers"`
	QueueCapacity int   `yaml:"queue_capacity"`
	RTPriority    int   `yaml:"rt_priority"`
	CPUSet        []int `yaml:"cpu_set"`
}

// GooseSubscription is one (app_id, go_cb_ref) binding and the trip rule
// evaluated against its data-object map.
type GooseSubscription struct {
	AppID        uint16 `yaml:"app_id"`
	GoCBRef      string `yaml:"go_cb_ref"`
	DatasetRef   string `yaml:"dataset_ref"`
	TripRuleText string `yaml:"trip_rule_text"`
	Enabled      bool   `yaml:"enabled"`
}

// ReportingConfig contains report output settings.
type ReportingConfig struct {
	OutputDir string   `yaml:"output_dir"`
	KeepLastN int      `yaml:"keep_last_n"`
	Formats   []string `yaml:"formats"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			LogLevel:  "info",
			LogFormat: "text",
			WarmupSec: 2,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9464",
		},
		WorkerPool: WorkerPoolConfig{
			NumWorkers:    4,
			QueueCapacity: 64,
		},
		TripRules: map[string]string{},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
			KeepLastN: 50,
			Formats:   []string{"json", "text"},
		},
	}
}

// Load loads configuration from a YAML file, defaults first, then the YAML
// overlay, then a short environment-variable allow-list applied last so an
// operator can override a file value at launch without editing it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "vpac.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expandedData, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if addr := os.Getenv("VPAC_METRICS_ADDR"); addr != "" {
		cfg.Telemetry.MetricsAddr = addr
	}

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects a Config with no partial state, per CONFIG_INVALID.
func (c *Config) Validate() error {
	if len(c.Streams) == 0 {
		return fmt.Errorf("at least one stream must be configured")
	}
	seen := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("stream %q: %w", s.StreamID, err)
		}
		if seen[s.StreamID] {
			return fmt.Errorf("duplicate stream_id %q", s.StreamID)
		}
		seen[s.StreamID] = true
	}

	for _, sub := range c.GooseSubs {
		if sub.GoCBRef == "" {
			return fmt.Errorf("goose subscription missing go_cb_ref")
		}
	}

	if c.WorkerPool.NumWorkers < 1 {
		return fmt.Errorf("worker_pool.num_workers must be at least 1")
	}

	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}

	return nil
}
