// Package config loads buffer configuration from a YAML file via Viper,
// mirroring the teacher's NovaSqlConfig loader (internal/config.go).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// BufferConfig is the buffer: top-level YAML section (spec §6).
type BufferConfig struct {
	PageSize            int64  `mapstructure:"page_size"`
	MaxLoadedPages      int    `mapstructure:"max_loaded_pages"`
	MergeTimeWindowMs   int    `mapstructure:"merge_time_window_ms"`
	MergeDistanceWindow int64  `mapstructure:"merge_distance_window"`
	MaxUndoLevels       int    `mapstructure:"max_undo_levels"`
	PageStoreDir        string `mapstructure:"page_store_dir"`
}

// fileConfig mirrors the YAML document shape: everything lives under a
// top-level buffer: key.
type fileConfig struct {
	Buffer BufferConfig `mapstructure:"buffer"`
}

// Defaults returns the spec §6 default configuration: a 64 KiB page size,
// 32 resident pages, a 15 s/0-distance merge window, unbounded undo
// levels, and an empty PageStoreDir (callers should fall back to an
// in-memory store in that case).
func Defaults() BufferConfig {
	return BufferConfig{
		PageSize:            64 * 1024,
		MaxLoadedPages:      32,
		MergeTimeWindowMs:   15000,
		MergeDistanceWindow: 0,
		MaxUndoLevels:       0,
	}
}

// MergeTimeWindow converts MergeTimeWindowMs to a time.Duration.
func (c BufferConfig) MergeTimeWindow() time.Duration {
	return time.Duration(c.MergeTimeWindowMs) * time.Millisecond
}

// Load reads path as YAML and fills in any zero-valued field from
// Defaults(), the same permissive shape the teacher's LoadConfig follows.
func Load(path string) (*BufferConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	cfg := fc.Buffer
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(c *BufferConfig) {
	d := Defaults()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxLoadedPages <= 0 {
		c.MaxLoadedPages = d.MaxLoadedPages
	}
	if c.MergeTimeWindowMs <= 0 {
		c.MergeTimeWindowMs = d.MergeTimeWindowMs
	}
	// MergeDistanceWindow and MaxUndoLevels default to their zero values,
	// both of which are already the spec-correct defaults (strictly
	// adjacent, unbounded).
}
