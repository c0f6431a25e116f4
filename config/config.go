package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all coordinator settings.
type Config struct {
	// Health classification.
	StalenessThreshold Duration `yaml:"staleness_threshold"`
	StabilityWindow    Duration `yaml:"stability_window"`

	// Reconnection backoff.
	BackoffBase   Duration `yaml:"backoff_base"`
	BackoffFactor float64  `yaml:"backoff_factor"`
	BackoffCap    Duration `yaml:"backoff_cap"`

	// Background health sweep (jittered).
	SweepInterval Duration `yaml:"sweep_interval"`
	SweepJitter   Duration `yaml:"sweep_jitter"`

	// Per-handle update buffer and quality-sample ring capacity.
	UpdatesBuffer int `yaml:"updates_buffer"`
	RingCapacity  int `yaml:"ring_capacity"`

	// Replay window bounds.
	ReplayChannels int `yaml:"replay_channels"`
	ReplayWindow   int `yaml:"replay_window"`

	// ReportSchedule is a cron expression for the periodic health report
	// ("@every 1m" style descriptors work too). Empty disables the report.
	ReportSchedule string `yaml:"report_schedule"`
}

// Default returns a Config populated with the default values.
func Default() *Config {
	return &Config{
		StalenessThreshold: Duration(30 * time.Second),
		StabilityWindow:    Duration(2 * time.Minute),

		BackoffBase:   Duration(1 * time.Second),
		BackoffFactor: 2,
		BackoffCap:    Duration(30 * time.Second),

		SweepInterval: Duration(10 * time.Second),
		SweepJitter:   Duration(3 * time.Second),

		UpdatesBuffer: 32,
		RingCapacity:  360,

		ReplayChannels: 128,
		ReplayWindow:   16,

		ReportSchedule: "",
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	requirePositive := func(name string, d Duration) {
		if d.Std() <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %s", name, d.Std()))
		}
	}
	requirePositive("staleness_threshold", c.StalenessThreshold)
	requirePositive("stability_window", c.StabilityWindow)
	requirePositive("backoff_base", c.BackoffBase)
	requirePositive("backoff_cap", c.BackoffCap)
	requirePositive("sweep_interval", c.SweepInterval)

	if c.BackoffFactor <= 1 {
		errs = append(errs, fmt.Sprintf("backoff_factor must be > 1, got %v", c.BackoffFactor))
	}
	if c.BackoffCap.Std() < c.BackoffBase.Std() {
		errs = append(errs, "backoff_cap must be >= backoff_base")
	}
	if c.SweepJitter.Std() < 0 {
		errs = append(errs, "sweep_jitter must not be negative")
	}
	if c.UpdatesBuffer <= 0 {
		errs = append(errs, fmt.Sprintf("updates_buffer must be positive, got %d", c.UpdatesBuffer))
	}
	if c.RingCapacity <= 0 {
		errs = append(errs, fmt.Sprintf("ring_capacity must be positive, got %d", c.RingCapacity))
	}
	if c.ReplayChannels <= 0 {
		errs = append(errs, fmt.Sprintf("replay_channels must be positive, got %d", c.ReplayChannels))
	}
	if c.ReplayWindow <= 0 {
		errs = append(errs, fmt.Sprintf("replay_window must be positive, got %d", c.ReplayWindow))
	}
	if c.ReportSchedule != "" {
		if _, err := cron.ParseStandard(c.ReportSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("report_schedule %q: %v", c.ReportSchedule, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
