// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/retrovue/core/internal/log"
)

// fileConfig is the YAML-file projection of Config; only fields an
// operator would plausibly want to pin in a checked-in file are exposed
// here — per-deploy secrets and addresses stay env-only.
type fileConfig struct {
	Channels []string `yaml:"channels"`

	GridBlockMinutes        *int `yaml:"grid_block_minutes"`
	ProgrammingDayStartHour *int `yaml:"programming_day_start_hour"`
	LockedWindowMS          *int64 `yaml:"locked_window_ms"`
	MinEPGDays              *int `yaml:"min_epg_days"`
	MinExecutionHours       *int `yaml:"min_execution_hours"`
	EvaluationIntervalSec   *int `yaml:"evaluation_interval_seconds"`

	HLSTargetDurationSec *float64 `yaml:"hls_target_duration_seconds"`
	HLSMaxSegments       *int     `yaml:"hls_max_segments"`

	RetentionTier1MaxAgeHours *int     `yaml:"retention_tier1_max_age_hours"`
	RetentionTier2MaxAgeHours *int     `yaml:"retention_tier2_max_age_hours"`
	RetentionPurgesPerHour    *float64 `yaml:"retention_purges_per_hour"`

	FillerAssetURI   *string `yaml:"filler_asset_uri"`
	FillerDurationMS *int64  `yaml:"filler_duration_ms"`
	FenceBlockDurSec *int64  `yaml:"fence_block_duration_seconds"`

	DataDir *string `yaml:"data_dir"`
}

// Loader applies the precedence every RetroVue setting follows: built-in
// defaults, then an optional YAML file, then environment variables —
// matching the teacher's env-beats-file-beats-defaults discipline in
// internal/config.Loader, trimmed to this module's own settings.
type Loader struct {
	configPath  string
	lookupEnvFn func(string) (string, bool)
}

// NewLoader builds a Loader that reads configPath (if non-empty) and the
// real process environment.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, lookupEnvFn: os.LookupEnv}
}

// Load produces the final Config by applying defaults, then the file at
// l.configPath (if set and present), then environment overrides.
func (l *Loader) Load() (Config, error) {
	logger := log.WithComponent("config")
	cfg := Defaults()

	if l.configPath != "" {
		fc, err := l.loadFile(l.configPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", l.configPath, err)
		}
		if fc != nil {
			mergeFile(&cfg, fc)
			logger.Info().Str("path", l.configPath).Msg("loaded config file")
		}
	}

	l.mergeEnv(&cfg)
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*fileConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

func mergeFile(cfg *Config, fc *fileConfig) {
	if len(fc.Channels) > 0 {
		cfg.Channels = fc.Channels
	}
	if fc.GridBlockMinutes != nil {
		cfg.GridBlockMinutes = *fc.GridBlockMinutes
	}
	if fc.ProgrammingDayStartHour != nil {
		cfg.ProgrammingDayStartHour = *fc.ProgrammingDayStartHour
	}
	if fc.LockedWindowMS != nil {
		cfg.LockedWindowMS = *fc.LockedWindowMS
	}
	if fc.MinEPGDays != nil {
		cfg.MinEPGDays = *fc.MinEPGDays
	}
	if fc.MinExecutionHours != nil {
		cfg.MinExecutionHours = *fc.MinExecutionHours
	}
	if fc.EvaluationIntervalSec != nil {
		cfg.EvaluationIntervalSec = *fc.EvaluationIntervalSec
	}
	if fc.HLSTargetDurationSec != nil {
		cfg.HLSTargetDurationSec = *fc.HLSTargetDurationSec
	}
	if fc.HLSMaxSegments != nil {
		cfg.HLSMaxSegments = *fc.HLSMaxSegments
	}
	if fc.RetentionTier1MaxAgeHours != nil {
		cfg.RetentionTier1MaxAgeHours = *fc.RetentionTier1MaxAgeHours
	}
	if fc.RetentionTier2MaxAgeHours != nil {
		cfg.RetentionTier2MaxAgeHours = *fc.RetentionTier2MaxAgeHours
	}
	if fc.RetentionPurgesPerHour != nil {
		cfg.RetentionPurgesPerHour = *fc.RetentionPurgesPerHour
	}
	if fc.FillerAssetURI != nil {
		cfg.FillerAssetURI = *fc.FillerAssetURI
	}
	if fc.FillerDurationMS != nil {
		cfg.FillerDurationMS = *fc.FillerDurationMS
	}
	if fc.FenceBlockDurSec != nil {
		cfg.FenceBlockDurSec = *fc.FenceBlockDurSec
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
}

func (l *Loader) mergeEnv(cfg *Config) {
	if v, ok := l.lookupEnvFn("RETROVUE_CHANNELS"); ok && v != "" {
		cfg.Channels = strings.Split(v, ",")
	}
	l.envInt("RETROVUE_GRID_BLOCK_MINUTES", &cfg.GridBlockMinutes)
	l.envInt("RETROVUE_PROGRAMMING_DAY_START_HOUR", &cfg.ProgrammingDayStartHour)
	l.envInt64("RETROVUE_LOCKED_WINDOW_MS", &cfg.LockedWindowMS)
	l.envInt("RETROVUE_MIN_EPG_DAYS", &cfg.MinEPGDays)
	l.envInt("RETROVUE_MIN_EXECUTION_HOURS", &cfg.MinExecutionHours)
	l.envInt("RETROVUE_EVALUATION_INTERVAL_SECONDS", &cfg.EvaluationIntervalSec)
	l.envFloat("RETROVUE_HLS_TARGET_DURATION_SECONDS", &cfg.HLSTargetDurationSec)
	l.envInt("RETROVUE_HLS_MAX_SEGMENTS", &cfg.HLSMaxSegments)
	l.envInt("RETROVUE_RETENTION_TIER1_MAX_AGE_HOURS", &cfg.RetentionTier1MaxAgeHours)
	l.envInt("RETROVUE_RETENTION_TIER2_MAX_AGE_HOURS", &cfg.RetentionTier2MaxAgeHours)
	l.envFloat("RETROVUE_RETENTION_PURGES_PER_HOUR", &cfg.RetentionPurgesPerHour)
	l.envString("RETROVUE_FILLER_ASSET_URI", &cfg.FillerAssetURI)
	l.envInt64("RETROVUE_FILLER_DURATION_MS", &cfg.FillerDurationMS)
	l.envInt64("RETROVUE_FENCE_BLOCK_DURATION_SECONDS", &cfg.FenceBlockDurSec)
	l.envString("RETROVUE_AIRCTL_ADDR", &cfg.AirctlAddr)
	l.envString("RETROVUE_EVIDENCE_ADDR", &cfg.EvidenceAddr)
	l.envString("RETROVUE_STATUS_ADDR", &cfg.StatusAddr)
	l.envString("RETROVUE_DATA_DIR", &cfg.DataDir)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookupEnvFn(key); ok && v != "" {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	logger := log.WithComponent("config")
	v, ok := l.lookupEnvFn(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, keeping previous value")
		return
	}
	*dst = n
}

func (l *Loader) envInt64(key string, dst *int64) {
	logger := log.WithComponent("config")
	v, ok := l.lookupEnvFn(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, keeping previous value")
		return
	}
	*dst = n
}

func (l *Loader) envFloat(key string, dst *float64) {
	logger := log.WithComponent("config")
	v, ok := l.lookupEnvFn(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment variable, keeping previous value")
		return
	}
	*dst = f
}

// Validate rejects a Config whose settings couldn't produce a legal
// execution window (e.g. a channel set with no grid, or a locked window
// wider than the execution depth target it's supposed to sit inside).
func (c Config) Validate() error {
	if c.GridBlockMinutes <= 0 {
		return fmt.Errorf("config: grid_block_minutes must be positive, got %d", c.GridBlockMinutes)
	}
	if c.LockedWindow() >= c.ExecutionDepthTarget() {
		return fmt.Errorf("config: locked_window_ms (%s) must be shorter than min_execution_hours (%s)",
			c.LockedWindow(), c.ExecutionDepthTarget())
	}
	if c.EvaluationIntervalSec <= 0 {
		return fmt.Errorf("config: evaluation_interval_seconds must be positive, got %d", c.EvaluationIntervalSec)
	}
	return nil
}
