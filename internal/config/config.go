package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the enrichment pipeline.
const (
	DefaultBatchSize      = 30
	DefaultMaxConcurrency = 2
	DefaultTimeout        = 90 * time.Second

	DefaultLocationModel       = "gpt-5.2"
	DefaultClassificationModel = "gpt-5.2"
	DefaultNarrativeModel      = "gpt-5.2"
	DefaultInsightsModel       = "gpt-5.2"

	DefaultTimezone = "America/New_York"
)

// Config represents the calens configuration file.
type Config struct {
	Timezone  string         `yaml:"timezone,omitempty"`
	UserEmail string         `yaml:"user_email,omitempty"`
	ImportDir string         `yaml:"import_dir,omitempty"`
	Pipeline  PipelineConfig `yaml:"pipeline,omitempty"`
}

// PipelineConfig holds the enrichment pipeline tunables. Every field can
// also be overridden from the environment (see Resolve).
type PipelineConfig struct {
	BatchSize      int     `yaml:"batch_size,omitempty"`
	MaxConcurrency int     `yaml:"max_concurrency,omitempty"`
	TimeoutSeconds float64 `yaml:"timeout_seconds,omitempty"`

	LocationModel       string `yaml:"location_model,omitempty"`
	ClassificationModel string `yaml:"classification_model,omitempty"`
	NarrativeModel      string `yaml:"narrative_model,omitempty"`
	InsightsModel       string `yaml:"insights_model,omitempty"`
}

// GetConfigDir returns the XDG-compliant config directory.
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("CALENS_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "calens"), nil
}

// GetDataDir returns the platform-specific data directory.
func GetDataDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("CALENS_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Calens"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "calens"), nil
	}

	return filepath.Join(home, ".local", "share", "calens"), nil
}

// Load loads config from the config file.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default empty config
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Save saves the config to the config file.
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ResolvedPipeline is the pipeline configuration after applying defaults
// and environment overrides.
type ResolvedPipeline struct {
	BatchSize      int
	MaxConcurrency int
	Timeout        time.Duration

	LocationModel       string
	ClassificationModel string
	NarrativeModel      string
	InsightsModel       string

	OpenAIKey string
	MapsKey   string
}

// Resolve applies defaults and environment overrides to the pipeline
// config. Environment always wins over the file, the file over defaults.
func (c *Config) Resolve() ResolvedPipeline {
	p := c.Pipeline

	r := ResolvedPipeline{
		BatchSize:           firstPositive(envInt("CALENS_LLM_BATCH_SIZE"), p.BatchSize, DefaultBatchSize),
		MaxConcurrency:      firstPositive(envInt("CALENS_LLM_MAX_CONCURRENCY"), p.MaxConcurrency, DefaultMaxConcurrency),
		LocationModel:       firstNonEmpty(os.Getenv("CALENS_LLM_LOCATION_MODEL"), p.LocationModel, DefaultLocationModel),
		ClassificationModel: firstNonEmpty(os.Getenv("CALENS_LLM_CLASSIFICATION_MODEL"), p.ClassificationModel, DefaultClassificationModel),
		NarrativeModel:      firstNonEmpty(os.Getenv("CALENS_LLM_NARRATIVE_MODEL"), p.NarrativeModel, DefaultNarrativeModel),
		InsightsModel:       firstNonEmpty(os.Getenv("CALENS_LLM_INSIGHTS_MODEL"), p.InsightsModel, DefaultInsightsModel),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		MapsKey:             os.Getenv("GOOGLE_MAPS_API_KEY"),
	}

	timeoutSec := firstPositiveFloat(envFloat("CALENS_LLM_TIMEOUT"), p.TimeoutSeconds, DefaultTimeout.Seconds())
	r.Timeout = time.Duration(timeoutSec * float64(time.Second))

	return r
}

// TimezoneOrDefault returns the configured timezone or the default.
func (c *Config) TimezoneOrDefault() string {
	if c.Timezone != "" {
		return c.Timezone
	}
	return DefaultTimezone
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
