// Package config loads the search service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSources           = errors.New("at least one source is required")
	ErrNoEnabledSources    = errors.New("at least one source must be enabled")
	ErrSourceMissingName   = errors.New("source name is required")
	ErrDuplicateSource     = errors.New("source listed twice")
	ErrInvalidMaxRetries   = errors.New("fetch.max_retries must be non-negative")
	ErrInvalidInitialDelay = errors.New("fetch.initial_delay_ms must be non-negative")
	ErrInvalidBackoff      = errors.New("fetch.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout      = errors.New("fetch.timeout_sec must be at least 1")
	ErrInvalidCacheBackend = errors.New("cache.backend must be one of: file, sqlite, memory, none")
	ErrInvalidCacheTTL     = errors.New("cache.ttl_minutes must be at least 1")
	ErrInvalidConcurrency  = errors.New("search.concurrency must be at least 1")
	ErrInvalidMaxResults   = errors.New("search.default_max_results must be at least 1")
	ErrInvalidLogLevel     = errors.New("log.level must be one of: debug, info, warn, error")
)

type Config struct {
	Sources []SourceConfig `yaml:"sources"`
	Fetch   FetchConfig    `yaml:"fetch"`
	Browser BrowserConfig  `yaml:"browser"`
	Cache   CacheConfig    `yaml:"cache"`
	Search  SearchConfig   `yaml:"search"`
	Log     LogConfig      `yaml:"log"`
	Server  ServerConfig   `yaml:"server"`
}

// SourceConfig enables one retailer adapter. Sources are searched and merged
// in the order they are listed.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	// BaseURL overrides the retailer origin, mostly for tests and mirrors.
	BaseURL string `yaml:"base_url"`
	// AppID is the API credential for sources that need one (ebay).
	AppID string `yaml:"app_id"`
}

// RetryPolicy defines retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries        int     `yaml:"max_retries"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

type FetchConfig struct {
	RetryPolicy      `yaml:",inline"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	CourtesyDelayMs  int    `yaml:"courtesy_delay_ms"`
	SourceTimeoutSec int    `yaml:"source_timeout_sec"`
	UserAgent        string `yaml:"user_agent"`
}

type BrowserConfig struct {
	Headless       bool `yaml:"headless"`
	SettleMs       int  `yaml:"settle_ms"`
	WaitTimeoutSec int  `yaml:"wait_timeout_sec"`
}

type CacheConfig struct {
	Backend    string `yaml:"backend"` // file|sqlite|memory|none
	Dir        string `yaml:"dir"`
	Path       string `yaml:"path"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

type SearchConfig struct {
	DefaultMaxResults int `yaml:"default_max_results"`
	Concurrency       int `yaml:"concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Port              int `yaml:"port"`
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

// DefaultUserAgent is sent by the HTTP fetcher and the headless browser.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Sources: []SourceConfig{
			{Name: "lukiegames", Enabled: true},
			{Name: "vgny", Enabled: true},
			{Name: "jjgames", Enabled: true},
			{Name: "dkoldies", Enabled: true},
			{Name: "ebay", Enabled: false},
		},
		Fetch: FetchConfig{
			RetryPolicy: RetryPolicy{
				MaxRetries:        3,
				InitialDelayMs:    500,
				MaxDelayMs:        8000,
				BackoffMultiplier: 2.0,
			},
			TimeoutSec:       15,
			CourtesyDelayMs:  500,
			SourceTimeoutSec: 60,
			UserAgent:        DefaultUserAgent,
		},
		Browser: BrowserConfig{
			Headless:       true,
			SettleMs:       2000,
			WaitTimeoutSec: 10,
		},
		Cache: CacheConfig{
			Backend:    "file",
			Dir:        ".cache/lootscout",
			Path:       "./cache.db",
			TTLMinutes: 60,
		},
		Search: SearchConfig{
			DefaultMaxResults: 16,
			Concurrency:       4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Port:              9090,
			MaxConcurrentJobs: 3,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CACHE_DB_PATH"); v != "" {
		c.Cache.Path = v
		c.Cache.Backend = "sqlite"
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("CACHE_TTL_MINUTES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			c.Cache.TTLMinutes = parsed
		}
	}
	if v := os.Getenv("LOOTSCOUT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("EBAY_APP_ID"); v != "" {
		for i := range c.Sources {
			if strings.EqualFold(c.Sources[i].Name, "ebay") && c.Sources[i].AppID == "" {
				c.Sources[i].AppID = v
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]bool, len(c.Sources))
	enabled := 0
	for i, src := range c.Sources {
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if name == "" {
			return fmt.Errorf("%w: sources[%d]", ErrSourceMissingName, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
		}
		seen[name] = true
		if src.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoEnabledSources
	}

	if c.Fetch.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.Fetch.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}
	if c.Fetch.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoff
	}
	if c.Fetch.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	switch c.Cache.Backend {
	case "file", "sqlite", "memory", "none":
	default:
		return ErrInvalidCacheBackend
	}
	if c.Cache.TTLMinutes < 1 {
		return ErrInvalidCacheTTL
	}

	if c.Search.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Search.DefaultMaxResults < 1 {
		return ErrInvalidMaxResults
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return ErrInvalidLogLevel
	}

	return nil
}

// EnabledSources returns enabled sources in configuration order.
func (c *Config) EnabledSources() []SourceConfig {
	var enabled []SourceConfig
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled
}

// Delay is the backoff before retry number n (1-based): initial delay,
// multiplied for every further retry and capped at MaxDelayMs.
func (rp RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < n; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if rp.MaxDelayMs > 0 && delayMs > float64(rp.MaxDelayMs) {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(delayMs * float64(time.Millisecond))
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSec) * time.Second
}

func (f FetchConfig) CourtesyDelay() time.Duration {
	return time.Duration(f.CourtesyDelayMs) * time.Millisecond
}

func (f FetchConfig) SourceTimeout() time.Duration {
	return time.Duration(f.SourceTimeoutSec) * time.Second
}

func (b BrowserConfig) Settle() time.Duration {
	return time.Duration(b.SettleMs) * time.Millisecond
}

func (b BrowserConfig) WaitTimeout() time.Duration {
	return time.Duration(b.WaitTimeoutSec) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Sources: %d enabled, MaxRetries: %d, Cache: %s/%dm}",
		len(c.EnabledSources()),
		c.Fetch.MaxRetries,
		c.Cache.Backend,
		c.Cache.TTLMinutes,
	)
}
