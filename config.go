package bashkit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/everruns/bashkit-sub001/internal/limits"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// LoggingConfig controls the Session's telemetry.Logger, mirroring the
// teacher's internal/config.LoggingConfig debug-mode/category-toggle shape:
// logging defaults entirely off; once DebugMode is on, every category logs
// unless Categories maps it to false.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`
}

// IsCategoryEnabled reports whether a given telemetry category should log,
// following the teacher's debug-mode-gates-everything, then per-category
// override rule.
func (c LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Config carries every tunable a Session needs: resource/parser ceilings,
// filesystem quotas, and logging, matching the teacher's config.Config /
// DefaultConfig() pattern of one YAML-loadable struct per concern.
type Config struct {
	ExecutionLimits limits.Config `yaml:"execution_limits" json:"execution_limits"`
	FsLimits        vfs.Limits    `yaml:"fs_limits" json:"fs_limits"`
	Logging         LoggingConfig `yaml:"logging" json:"logging"`
}

// DefaultConfig returns the ceilings and logging posture spec.md §4.1/§4.2
// name as defaults: resource limits enforced, logging off.
func DefaultConfig() *Config {
	return &Config{
		ExecutionLimits: limits.DefaultConfig(),
		FsLimits:        vfs.DefaultLimits(),
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Validate rejects a malformed Config before it reaches a Session builder,
// the same "fail at config time, not mid-exec" discipline the teacher's
// own Config.Validate() follows.
func (c *Config) Validate() error {
	if err := c.ExecutionLimits.Validate(); err != nil {
		return fmt.Errorf("bashkit: execution_limits: %w", err)
	}
	if c.FsLimits.MaxTotalBytes <= 0 {
		return fmt.Errorf("bashkit: fs_limits.max_total_bytes must be positive, got %d", c.FsLimits.MaxTotalBytes)
	}
	if c.FsLimits.MaxFileCount <= 0 {
		return fmt.Errorf("bashkit: fs_limits.max_file_count must be positive, got %d", c.FsLimits.MaxFileCount)
	}
	return nil
}

// LoadConfigFile reads and validates a Config from a YAML file, layering
// its contents onto DefaultConfig so a partial file only overrides what it
// mentions.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bashkit: reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("bashkit: parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
