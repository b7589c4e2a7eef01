// Package options defines the engine's tuning configuration, decoded from
// YAML bytes handed to the host embedding API, generalizing this codebase's
// per-field-commented yaml-tagged config struct convention (configtypes'
// nested *Config structs) into the filter engine's own tuning surface. There
// is no config file path, environment variable, or CLI flag surface here by
// design: the engine is embedded, so its only configuration entry point is
// the in-memory/decode-from-bytes Options value the host constructs.
package options

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shieldcore/filterengine/internal/logging"
)

// Options tunes a newly created engine instance.
type Options struct {
	CacheCapacity     int              `yaml:"cache_capacity"`      // Decision Cache entry capacity (0 = cache.DefaultCapacity)
	LiteralFloor      int              `yaml:"literal_floor"`       // minimum literal length indexed by the automaton (0 = matcher.DefaultLiteralFloor)
	TopKHosts         int              `yaml:"top_k_hosts"`         // bounded top-K host tally size (0 = stats.DefaultTopKSize)
	DefaultBytesSaved int64            `yaml:"default_bytes_saved"` // bytes_saved_estimate heuristic override (0 = stats.DefaultBytesPerBlock)
	Logging           logging.Config   `yaml:"logging"`             // structured logging configuration
	Fleet             FleetOptions     `yaml:"fleet"`                // optional Redis-backed fleet stats aggregation
	Analytics         AnalyticsOptions `yaml:"analytics"`            // optional ClickHouse async analytics sink
}

// FleetOptions configures the optional Fleet Stats Aggregator.
type FleetOptions struct {
	Enabled       bool   `yaml:"enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	FleetID       string `yaml:"fleet_id"`       // this instance's identity within the fleet
	FlushInterval string `yaml:"flush_interval"` // parsed with time.ParseDuration, e.g. "5s"
}

// AnalyticsOptions configures the optional ClickHouse analytics sink.
type AnalyticsOptions struct {
	Enabled   bool     `yaml:"enabled"`
	Addresses []string `yaml:"addresses"`
	Database  string   `yaml:"database"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	BatchSize int      `yaml:"batch_size"`
}

// Default returns an Options with every field at its documented zero-value
// default (the constituent packages fill in their own defaults for 0/"").
func Default() Options {
	return Options{
		Logging: logging.DefaultConfig(),
	}
}

// Parse decodes YAML bytes into an Options, starting from Default() so an
// omitted section keeps its default rather than zeroing out.
func Parse(yamlBytes []byte) (Options, error) {
	opts := Default()
	if len(yamlBytes) == 0 {
		return opts, nil
	}
	if err := yaml.Unmarshal(yamlBytes, &opts); err != nil {
		return Options{}, fmt.Errorf("options: decode yaml: %w", err)
	}
	return opts, nil
}
