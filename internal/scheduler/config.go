package scheduler

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls scheduler intervals and per-job timeouts.
type Config struct {
	RunInterval      time.Duration
	RollupTimeout    time.Duration
	DetectionTimeout time.Duration
	RetentionTimeout time.Duration

	// ActiveEventWindow bounds which event names the detection job scans:
	// only events seen this recently are compared against their baseline.
	ActiveEventWindow time.Duration

	// EnabledJobs restricts which jobs run. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		RollupTimeout:     5 * time.Minute,
		DetectionTimeout:  2 * time.Minute,
		RetentionTimeout:  10 * time.Minute,
		ActiveEventWindow: 2 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RollupTimeout <= 0 {
		c.RollupTimeout = defaults.RollupTimeout
	}
	if c.DetectionTimeout <= 0 {
		c.DetectionTimeout = defaults.DetectionTimeout
	}
	if c.RetentionTimeout <= 0 {
		c.RetentionTimeout = defaults.RetentionTimeout
	}
	if c.ActiveEventWindow <= 0 {
		c.ActiveEventWindow = defaults.ActiveEventWindow
	}
	return c
}

// ProvideConfig builds scheduler configuration from the environment.
func ProvideConfig() Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_RUN_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RunInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_ACTIVE_EVENT_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ActiveEventWindow = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); v != "" {
		for _, job := range strings.Split(v, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_RETENTION_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionTimeout = time.Duration(n) * time.Second
		}
	}
	return cfg
}
