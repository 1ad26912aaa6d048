// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config holds core.Config and its defaults.
package config

import "time"

// Config covers every enumerated setting a RetroVue Core daemon needs.
type Config struct {
	Channels []string

	GridBlockMinutes         int
	ProgrammingDayStartHour  int
	LockedWindowMS           int64
	MinEPGDays               int
	MinExecutionHours        int
	EvaluationIntervalSec    int

	HLSTargetDurationSec float64
	HLSMaxSegments       int

	RetentionTier1MaxAgeHours int
	RetentionTier2MaxAgeHours int
	RetentionPurgesPerHour    float64

	FillerAssetURI    string
	FillerDurationMS  int64
	FenceBlockDurSec  int64

	AirctlAddr   string
	EvidenceAddr string

	StatusAddr string

	DataDir string
}

// LockedWindow is LockedWindowMS as a time.Duration.
func (c Config) LockedWindow() time.Duration {
	return time.Duration(c.LockedWindowMS) * time.Millisecond
}

// EvaluationInterval is EvaluationIntervalSec as a time.Duration.
func (c Config) EvaluationInterval() time.Duration {
	return time.Duration(c.EvaluationIntervalSec) * time.Second
}

// ExecutionDepthTarget is MinExecutionHours as a time.Duration — the
// horizon the Horizon Manager keeps each channel's execution window filled
// to.
func (c Config) ExecutionDepthTarget() time.Duration {
	return time.Duration(c.MinExecutionHours) * time.Hour
}

// Defaults returns the zero-value-safe baseline every Loader starts from
// before applying file and environment overrides.
func Defaults() Config {
	return Config{
		GridBlockMinutes:        30,
		ProgrammingDayStartHour: 6,
		LockedWindowMS:          15 * 60 * 1000,
		MinEPGDays:              7,
		MinExecutionHours:       4,
		EvaluationIntervalSec:   10,

		HLSTargetDurationSec: 6,
		HLSMaxSegments:       6,

		RetentionTier1MaxAgeHours: 48,
		RetentionTier2MaxAgeHours: 24 * 14,
		RetentionPurgesPerHour:    4,

		FillerDurationMS: 30_000,
		FenceBlockDurSec: 300,

		StatusAddr: ":9090",
		DataDir:    "./data",
	}
}
