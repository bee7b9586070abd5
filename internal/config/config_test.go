package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveDefaults(t *testing.T) {
	cfg := &Config{}
	r := cfg.Resolve()

	if r.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d", r.BatchSize)
	}
	if r.MaxConcurrency != DefaultMaxConcurrency {
		t.Errorf("MaxConcurrency = %d", r.MaxConcurrency)
	}
	if r.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", r.Timeout)
	}
	if r.LocationModel != DefaultLocationModel {
		t.Errorf("LocationModel = %q", r.LocationModel)
	}
}

func TestResolveFileOverridesDefaults(t *testing.T) {
	cfg := &Config{Pipeline: PipelineConfig{
		BatchSize:      10,
		TimeoutSeconds: 30,
		LocationModel:  "file-model",
	}}
	r := cfg.Resolve()

	if r.BatchSize != 10 {
		t.Errorf("BatchSize = %d", r.BatchSize)
	}
	if r.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", r.Timeout)
	}
	if r.LocationModel != "file-model" {
		t.Errorf("LocationModel = %q", r.LocationModel)
	}
	// Untouched fields still take defaults.
	if r.MaxConcurrency != DefaultMaxConcurrency {
		t.Errorf("MaxConcurrency = %d", r.MaxConcurrency)
	}
}

func TestResolveEnvWinsOverFile(t *testing.T) {
	t.Setenv("CALENS_LLM_BATCH_SIZE", "7")
	t.Setenv("CALENS_LLM_MAX_CONCURRENCY", "4")
	t.Setenv("CALENS_LLM_TIMEOUT", "12.5")
	t.Setenv("CALENS_LLM_LOCATION_MODEL", "env-model")

	cfg := &Config{Pipeline: PipelineConfig{
		BatchSize:     10,
		LocationModel: "file-model",
	}}
	r := cfg.Resolve()

	if r.BatchSize != 7 {
		t.Errorf("BatchSize = %d", r.BatchSize)
	}
	if r.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d", r.MaxConcurrency)
	}
	if r.Timeout != 12500*time.Millisecond {
		t.Errorf("Timeout = %v", r.Timeout)
	}
	if r.LocationModel != "env-model" {
		t.Errorf("LocationModel = %q", r.LocationModel)
	}
}

func TestResolveIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("CALENS_LLM_BATCH_SIZE", "lots")
	cfg := &Config{}
	if r := cfg.Resolve(); r.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d", r.BatchSize)
	}
}

func TestDirOverrides(t *testing.T) {
	t.Setenv("CALENS_CONFIG_DIR", "/tmp/calens-config")
	t.Setenv("CALENS_DATA_DIR", "/tmp/calens-data")

	if dir, err := GetConfigDir(); err != nil || dir != "/tmp/calens-config" {
		t.Errorf("GetConfigDir = %q, %v", dir, err)
	}
	if dir, err := GetDataDir(); err != nil || dir != "/tmp/calens-data" {
		t.Errorf("GetDataDir = %q, %v", dir, err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CALENS_CONFIG_DIR", dir)

	cfg := &Config{
		Timezone:  "Europe/Berlin",
		UserEmail: "me@example.com",
		Pipeline:  PipelineConfig{BatchSize: 15},
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config file: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Timezone != "Europe/Berlin" || loaded.UserEmail != "me@example.com" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Pipeline.BatchSize != 15 {
		t.Errorf("pipeline = %+v", loaded.Pipeline)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("CALENS_CONFIG_DIR", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimezoneOrDefault() != DefaultTimezone {
		t.Errorf("timezone = %q", cfg.TimezoneOrDefault())
	}
}
