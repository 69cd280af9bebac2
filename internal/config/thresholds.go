package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ThresholdRule maps a metric-name substring to a deviation threshold
// (percent). Rules are evaluated in order; the first substring match wins,
// so more specific patterns must come first.
type ThresholdRule struct {
	Pattern   string  `mapstructure:"pattern"`
	Threshold float64 `mapstructure:"threshold"`
}

// ThresholdConfig holds the anomaly detection threshold table.
type ThresholdConfig struct {
	Rules   []ThresholdRule `mapstructure:"rules"`
	Default float64         `mapstructure:"default"`
}

// DefaultThresholdConfig mirrors the built-in threshold table: error-like
// metrics fire at 50% deviation, latency-like at 30%, everything else at
// 100% (a 2x change).
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Rules: []ThresholdRule{
			{Pattern: "error", Threshold: 50},
			{Pattern: "response_time", Threshold: 30},
			{Pattern: "latency", Threshold: 30},
			{Pattern: "failed", Threshold: 50},
		},
		Default: 100,
	}
}

// ThresholdFor resolves the deviation threshold for a metric name by
// substring containment against the ordered rule table. Matching is
// case-insensitive and deliberately naive: a metric named
// "no_errors_total" matches the "error" rule.
func (c ThresholdConfig) ThresholdFor(metricName string) float64 {
	name := strings.ToLower(strings.TrimSpace(metricName))
	for _, rule := range c.Rules {
		if rule.Pattern == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(rule.Pattern)) {
			return rule.Threshold
		}
	}
	return c.Default
}

// ThresholdHolder serves the current threshold table and hot-reloads it
// when the config file changes.
type ThresholdHolder struct {
	current atomic.Value // holds ThresholdConfig
}

// NewThresholdHolder loads detection thresholds from flux.yml if present,
// falling back to the built-in table.
func NewThresholdHolder() (*ThresholdHolder, error) {
	v := viper.New()

	v.SetConfigName("flux")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/flux/config")
	v.AddConfigPath("/etc/flux")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &ThresholdHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultThresholdConfig())
		return holder, nil
	}

	cfg := DefaultThresholdConfig()
	if err := v.UnmarshalKey("thresholds", &cfg); err != nil {
		return nil, err
	}
	if err := validateThresholdConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultThresholdConfig()
		if err := v.UnmarshalKey("thresholds", &updated); err != nil {
			log.Printf("[threshold-config] reload failed: %v", err)
			return
		}
		if err := validateThresholdConfig(updated); err != nil {
			log.Printf("[threshold-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[threshold-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ThresholdHolder) Get() ThresholdConfig {
	return h.current.Load().(ThresholdConfig)
}

func validateThresholdConfig(cfg ThresholdConfig) error {
	if cfg.Default <= 0 {
		return errors.New("thresholds.default must be positive")
	}
	for _, rule := range cfg.Rules {
		if rule.Threshold <= 0 {
			return errors.New("thresholds.rules threshold must be positive")
		}
	}
	return nil
}
