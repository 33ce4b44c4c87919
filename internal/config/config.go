// Package config provides configuration management for Engram.
// It loads settings from an optional YAML file, then applies environment
// variables with the ENGRAM_ prefix on top, and provides sensible defaults
// for all configuration options. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Engram application.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Search     SearchConfig     `yaml:"search"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Features   FeaturesConfig   `yaml:"features"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// StorageConfig contains backend and storage-path configuration.
type StorageConfig struct {
	// Engine selects the storage engine: sqlite, postgres, memory (default: sqlite).
	Engine string `yaml:"engine"`

	// DataDir is the base directory for user-scoped data (default: ~/.engram).
	DataDir string `yaml:"data_dir"`

	// ProjectPath, when set, stores project-scoped data under
	// <ProjectPath>/.engram instead of sharing the user data directory.
	ProjectPath string `yaml:"project_path"`

	// PostgresDSN is the connection string used when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// VectorProvider selects the vector backend within an engine:
	// native (same engine as persistence) or chromem (default: native).
	VectorProvider string `yaml:"vector_provider"`
}

// SearchConfig contains retrieval and ranking configuration.
type SearchConfig struct {
	// RRFK is the rank-fusion smoothing constant (default: 60).
	RRFK float64 `yaml:"rrf_k"`

	// DefaultLimit is the result cap applied when a caller passes none (default: 10).
	DefaultLimit int `yaml:"default_limit"`

	// Mode is the default search mode: text, vector, hybrid (default: hybrid).
	Mode string `yaml:"mode"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ResilienceConfig contains the failure-isolation tuning knobs applied to
// every backend instance.
type ResilienceConfig struct {
	BreakerFailureThreshold uint32   `yaml:"breaker_failure_threshold"` // default: 5
	BreakerResetTimeout     Duration `yaml:"breaker_reset_timeout"`     // default: 30s
	BreakerHalfOpenCalls    uint32   `yaml:"breaker_half_open_calls"`   // default: 1
	RetryMaxAttempts        int      `yaml:"retry_max_attempts"`        // default: 3
	RetryBackoff            Duration `yaml:"retry_backoff"`             // default: 100ms
	BulkheadSize            int      `yaml:"bulkhead_size"`             // default: 8
	BulkheadAcquireTimeout  Duration `yaml:"bulkhead_acquire_timeout"`  // default: 2s
	RatePerSecond           float64  `yaml:"rate_per_second"`           // default: 0 (off)
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	// Provider selects the embedder: hash, none (default: hash).
	Provider string `yaml:"provider"`

	// Dimensions is the embedding width (default: 384).
	Dimensions int `yaml:"dimensions"`

	// CacheEnabled turns on the in-process embedding cache (default: true).
	CacheEnabled bool `yaml:"cache_enabled"`

	// CacheMaxEntries bounds the embedding cache (default: 4096).
	CacheMaxEntries int64 `yaml:"cache_max_entries"`
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	// EnableOrg enables the organization scope (default: false).
	EnableOrg bool `yaml:"enable_org"`
}

// RetentionConfig controls tombstone lifecycle.
type RetentionConfig struct {
	// TombstoneTTL is how long tombstoned memories are kept before purge
	// eligibility (default: 720h, thirty days).
	TombstoneTTL Duration `yaml:"tombstone_ttl"`
}

// Load builds the configuration: defaults, then the YAML file at path if one
// exists, then ENGRAM_ environment variables. An empty path checks
// ENGRAM_CONFIG and falls back to <data dir>/config.yaml.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("ENGRAM_CONFIG")
	}
	if path == "" {
		path = filepath.Join(cfg.Storage.DataDir, "config.yaml")
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// defaultConfig constructs a Config with every default filled in.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:         "sqlite",
			DataDir:        defaultDataDir(),
			VectorProvider: "native",
		},
		Search: SearchConfig{
			RRFK:         60,
			DefaultLimit: 10,
			Mode:         "hybrid",
		},
		Resilience: ResilienceConfig{
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     Duration(30 * time.Second),
			BreakerHalfOpenCalls:    1,
			RetryMaxAttempts:        3,
			RetryBackoff:            Duration(100 * time.Millisecond),
			BulkheadSize:            8,
			BulkheadAcquireTimeout:  Duration(2 * time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:        "hash",
			Dimensions:      384,
			CacheEnabled:    true,
			CacheMaxEntries: 4096,
		},
		Retention: RetentionConfig{
			TombstoneTTL: Duration(30 * 24 * time.Hour),
		},
	}
}

// applyEnv overlays ENGRAM_ environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("ENGRAM_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataDir = getEnv("ENGRAM_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.ProjectPath = getEnv("ENGRAM_PROJECT_PATH", cfg.Storage.ProjectPath)
	cfg.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.VectorProvider = getEnv("ENGRAM_VECTOR_PROVIDER", cfg.Storage.VectorProvider)

	cfg.Search.RRFK = getEnvFloat("ENGRAM_RRF_K", cfg.Search.RRFK)
	cfg.Search.DefaultLimit = getEnvInt("ENGRAM_DEFAULT_LIMIT", cfg.Search.DefaultLimit)
	cfg.Search.Mode = getEnv("ENGRAM_SEARCH_MODE", cfg.Search.Mode)

	cfg.Resilience.BreakerFailureThreshold = uint32(getEnvInt("ENGRAM_BREAKER_FAILURES", int(cfg.Resilience.BreakerFailureThreshold)))
	cfg.Resilience.BreakerResetTimeout = Duration(getEnvDuration("ENGRAM_BREAKER_RESET", cfg.Resilience.BreakerResetTimeout.Std()))
	cfg.Resilience.BreakerHalfOpenCalls = uint32(getEnvInt("ENGRAM_BREAKER_HALF_OPEN", int(cfg.Resilience.BreakerHalfOpenCalls)))
	cfg.Resilience.RetryMaxAttempts = getEnvInt("ENGRAM_RETRY_MAX", cfg.Resilience.RetryMaxAttempts)
	cfg.Resilience.RetryBackoff = Duration(getEnvDuration("ENGRAM_RETRY_BACKOFF", cfg.Resilience.RetryBackoff.Std()))
	cfg.Resilience.BulkheadSize = getEnvInt("ENGRAM_BULKHEAD_SIZE", cfg.Resilience.BulkheadSize)
	cfg.Resilience.BulkheadAcquireTimeout = Duration(getEnvDuration("ENGRAM_BULKHEAD_TIMEOUT", cfg.Resilience.BulkheadAcquireTimeout.Std()))
	cfg.Resilience.RatePerSecond = getEnvFloat("ENGRAM_RATE_PER_SECOND", cfg.Resilience.RatePerSecond)

	cfg.Embedding.Provider = getEnv("ENGRAM_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Dimensions = getEnvInt("ENGRAM_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.CacheEnabled = getEnvBool("ENGRAM_EMBEDDING_CACHE", cfg.Embedding.CacheEnabled)
	cfg.Embedding.CacheMaxEntries = int64(getEnvInt("ENGRAM_EMBEDDING_CACHE_ENTRIES", int(cfg.Embedding.CacheMaxEntries)))

	cfg.Features.EnableOrg = getEnvBool("ENGRAM_ENABLE_ORG", cfg.Features.EnableOrg)

	cfg.Retention.TombstoneTTL = Duration(getEnvDuration("ENGRAM_TOMBSTONE_TTL", cfg.Retention.TombstoneTTL.Std()))
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires ENGRAM_POSTGRES_DSN")
	}
	switch c.Storage.VectorProvider {
	case "native", "chromem":
	default:
		return fmt.Errorf("config: unknown vector provider %q", c.Storage.VectorProvider)
	}
	switch c.Search.Mode {
	case "text", "vector", "hybrid":
	default:
		return fmt.Errorf("config: unknown search mode %q", c.Search.Mode)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("config: rrf_k must be positive, got %v", c.Search.RRFK)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("config: default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	switch c.Embedding.Provider {
	case "hash", "none":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider != "none" && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("config: embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// defaultDataDir resolves the user-level data directory, ~/.engram, falling
// back to ./.engram when the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engram"
	}
	return filepath.Join(home, ".engram")
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30s", "5m") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
