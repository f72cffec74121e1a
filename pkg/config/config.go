package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	Redis       RedisConfig       `yaml:"redis"`
	Logger      LoggerConfig      `yaml:"logger"`
	Hosts       []HostConfig      `yaml:"hosts"`
	Polling     PollingConfig     `yaml:"polling"`
	Scheduling  SchedulingConfig  `yaml:"scheduling"`
	Downstream  DownstreamConfig  `yaml:"downstream"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap"`
}

// ServerConfig operational HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig Redis configuration (job locks; optional)
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// HostConfig one BOINC client to poll
type HostConfig struct {
	// Name is an optional alias used when the host cannot report its
	// domain name (e.g. it went down before authentication).
	Name     string `yaml:"name,omitempty"`
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// PollingConfig host polling configuration
type PollingConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"` // per-host connect/auth/query timeout
	Concurrency    int `yaml:"concurrency"`     // max hosts polled in parallel
}

// SchedulingConfig job intervals
type SchedulingConfig struct {
	StatsIntervalMinutes   int `yaml:"stats_interval_minutes"`   // snapshot + rollup pipeline
	TaskIntervalMinutes    int `yaml:"task_interval_minutes"`    // task/app fact collection
	RetentionDays          int `yaml:"retention_days"`           // task fact retention
	RetentionIntervalHours int `yaml:"retention_interval_hours"` // cleanup cadence
}

// DownstreamConfig downstream stats API configuration
type DownstreamConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	FunctionKey string `yaml:"function_key"`
}

// AggregationConfig rollup configuration
type AggregationConfig struct {
	// ExcludedProject is a housekeeping pseudo-project whose task facts
	// carry no meaningful CPU signal; the efficiency rollup skips it.
	// Matched case-insensitively.
	ExcludedProject string `yaml:"excluded_project"`
}

// BootstrapConfig one-time CSV seed of historical project credit
type BootstrapConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	validateAndApplyDefaults(&cfg)

	GlobalConfig = &cfg
	return nil
}

// Defaults used when the file leaves a knob unset or invalid.
const (
	DefaultServerPort             = 8080
	DefaultPollTimeoutSeconds     = 30
	DefaultPollConcurrency        = 4
	DefaultStatsIntervalMinutes   = 30
	DefaultTaskIntervalMinutes    = 15
	DefaultRetentionDays          = 14
	DefaultRetentionIntervalHours = 24
)

// validateAndApplyDefaults replaces unset or invalid knobs with their
// defaults so a sparse config file still yields a runnable collector.
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Polling.TimeoutSeconds <= 0 {
		cfg.Polling.TimeoutSeconds = DefaultPollTimeoutSeconds
	}
	if cfg.Polling.Concurrency <= 0 {
		cfg.Polling.Concurrency = DefaultPollConcurrency
	}
	if cfg.Scheduling.StatsIntervalMinutes <= 0 {
		cfg.Scheduling.StatsIntervalMinutes = DefaultStatsIntervalMinutes
	}
	if cfg.Scheduling.TaskIntervalMinutes <= 0 {
		cfg.Scheduling.TaskIntervalMinutes = DefaultTaskIntervalMinutes
	}
	if cfg.Scheduling.RetentionDays <= 0 {
		cfg.Scheduling.RetentionDays = DefaultRetentionDays
	}
	if cfg.Scheduling.RetentionIntervalHours <= 0 {
		cfg.Scheduling.RetentionIntervalHours = DefaultRetentionIntervalHours
	}
}

// Validate checks the fields the collector cannot run without.
func (c *Config) Validate() error {
	for i, h := range c.Hosts {
		if h.IP == "" {
			return fmt.Errorf("hosts[%d]: ip is required", i)
		}
	}
	if c.Downstream.Enabled && c.Downstream.BaseURL == "" {
		return fmt.Errorf("downstream.base_url is required when downstream.enabled is true")
	}
	return nil
}
