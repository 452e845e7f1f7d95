// Package config loads the service configuration from per-environment YAML
// files with ${VAR} / ${VAR:-default} environment expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the registry search API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PostgresConfig holds registry store settings.
type PostgresConfig struct {
	DSN              string `yaml:"dsn"`
	QueryTimeoutSec  int    `yaml:"query_timeout_sec"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
	IVFFlatProbes    int    `yaml:"ivfflat_probes"`
	ForceSeqScan     bool   `yaml:"force_seqscan"` // exhaustive scan, for tests only
}

// CacheConfig holds embedding cache settings. TTLSec = 0 disables caching.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// TTL returns the cache expiry as a duration.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// Enabled reports whether the embedding cache is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 && c.TTLSec > 0 }

// EmbeddingConfig holds embedding gateway settings. Provider "semantic" uses
// the normalizer sidecar speaking the bespoke JSON contract; "openai" embeds
// directly against an OpenAI-compatible API (no synonym data in that mode).
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"`
	URL             string `yaml:"url"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	Model           string `yaml:"model"`
	SynonymsVersion string `yaml:"synonyms_version"` // cache invalidation knob: synonym dictionary content hash
	APIKey          string `yaml:"api_key"`          // openai provider only
	BaseURL         string `yaml:"base_url"`         // openai provider only
	Dimensions      int    `yaml:"dimensions"`       // openai provider only
}

// Timeout returns the per-call embedding deadline.
func (c EmbeddingConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// SearchConfig holds pagination and ranking limits.
type SearchConfig struct {
	MinLimit      int `yaml:"min_limit"`
	DefaultLimit  int `yaml:"default_limit"`
	MaxLimit      int `yaml:"max_limit"`
	DefaultOffset int `yaml:"default_offset"`
	FetchCap      int `yaml:"fetch_cap"` // upper bound for fetch-size doubling
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Postgres.QueryTimeoutSec <= 0 {
		c.Postgres.QueryTimeoutSec = 30
	}
	if c.Postgres.ReadinessTimeout <= 0 {
		c.Postgres.ReadinessTimeout = 10
	}
	if c.Postgres.IVFFlatProbes <= 0 {
		c.Postgres.IVFFlatProbes = 100
	}
	if c.Cache.TTLSec < 0 {
		c.Cache.TTLSec = 0
	}
	if len(c.Cache.Addrs) > 0 && c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 7 * 24 * 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "semantic"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.Search.MinLimit <= 0 {
		c.Search.MinLimit = 1
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 200
	}
	if c.Search.MaxLimit < c.Search.MinLimit {
		c.Search.MaxLimit = c.Search.MinLimit
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.DefaultLimit < c.Search.MinLimit {
		c.Search.DefaultLimit = c.Search.MinLimit
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		c.Search.DefaultLimit = c.Search.MaxLimit
	}
	if c.Search.DefaultOffset < 0 {
		c.Search.DefaultOffset = 0
	}
	if c.Search.FetchCap <= 0 {
		c.Search.FetchCap = 800
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	switch c.Embedding.Provider {
	case "semantic":
		if c.Embedding.URL == "" {
			return fmt.Errorf("embedding.url is required for the semantic provider")
		}
	case "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for the openai provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"semantic\" or \"openai\", got %q", c.Embedding.Provider)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
