// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoaderLoadDefaultsOnly(t *testing.T) {
	l := &Loader{lookupEnvFn: fakeEnv(nil)}

	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoaderLoadMissingFileFallsBackToDefaults(t *testing.T) {
	l := &Loader{
		configPath:  filepath.Join(t.TempDir(), "does-not-exist.yaml"),
		lookupEnvFn: fakeEnv(nil),
	}

	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoaderLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retrovue.yaml")
	writeFile(t, path, `
channels:
  - ch1
  - ch2
grid_block_minutes: 15
min_execution_hours: 6
filler_asset_uri: "file:///filler.ts"
`)

	l := &Loader{configPath: path, lookupEnvFn: fakeEnv(nil)}

	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"ch1", "ch2"}, cfg.Channels)
	require.Equal(t, 15, cfg.GridBlockMinutes)
	require.Equal(t, 6, cfg.MinExecutionHours)
	require.Equal(t, "file:///filler.ts", cfg.FillerAssetURI)

	// Fields the file left unset keep their defaults.
	require.Equal(t, Defaults().ProgrammingDayStartHour, cfg.ProgrammingDayStartHour)
}

func TestLoaderLoadEnvOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retrovue.yaml")
	writeFile(t, path, `
grid_block_minutes: 15
`)

	l := &Loader{
		configPath: path,
		lookupEnvFn: fakeEnv(map[string]string{
			"RETROVUE_GRID_BLOCK_MINUTES": "20",
			"RETROVUE_CHANNELS":           "alpha,beta,gamma",
			"RETROVUE_DATA_DIR":           "/var/lib/retrovue",
		}),
	}

	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, 20, cfg.GridBlockMinutes)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Channels)
	require.Equal(t, "/var/lib/retrovue", cfg.DataDir)
}

func TestLoaderEnvIntInvalidValueKeepsPrevious(t *testing.T) {
	l := &Loader{lookupEnvFn: fakeEnv(map[string]string{
		"RETROVUE_GRID_BLOCK_MINUTES": "not-a-number",
	})}

	cfg := Defaults()
	l.mergeEnv(&cfg)

	require.Equal(t, Defaults().GridBlockMinutes, cfg.GridBlockMinutes)
}

func TestMergeFileLeavesUnsetPointerFieldsAlone(t *testing.T) {
	cfg := Defaults()
	original := cfg

	mergeFile(&cfg, &fileConfig{})

	require.Equal(t, original, cfg)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
