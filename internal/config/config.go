// Package config loads and validates webreplica's TOML configuration,
// layering defaults, config file(s), and CLI flag overrides in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration for a capture or replay run.
type Config struct {
	Environment string        `toml:"environment" validate:"omitempty,oneof=development production"`
	Crawl       CrawlConfig   `toml:"crawl"`
	Intercept   InterceptConfig `toml:"intercept"`
	SourceMap   SourceMapConfig `toml:"sourcemap"`
	State       StateConfig   `toml:"state"`
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
}

// CrawlConfig controls the Parallel Crawl Engine (spec §4.3, §4.6).
type CrawlConfig struct {
	Concurrency         int           `toml:"concurrency" validate:"min=1,max=64"`
	MaxDepth            int           `toml:"max_depth" validate:"min=0"`
	MaxPages            int           `toml:"max_pages" validate:"min=0"`
	PageRetries         int           `toml:"page_retries" validate:"min=0"`
	PageTimeout         time.Duration `toml:"page_timeout"`
	RateLimitDelay      time.Duration `toml:"rate_limit_delay"`
	NetworkIdleTimeout  time.Duration `toml:"network_idle_timeout"`
	NetworkIdleTime     time.Duration `toml:"network_idle_time"`
	ScrollDelay         time.Duration `toml:"scroll_delay"`
	PageSettleTime      time.Duration `toml:"page_settle_time"`
	AutoScroll          bool          `toml:"auto_scroll"`
	MaxScrolls          int           `toml:"max_scrolls" validate:"min=0"`
	ScrollStepPixels    int           `toml:"scroll_step_pixels" validate:"min=1"`
	CaptureStatic       bool          `toml:"capture_static"`
	CaptureRenderedHTML bool          `toml:"capture_rendered_html"`
	APIFilter           []string      `toml:"api_filter"`
	BackoffBaseMs       int           `toml:"backoff_base_ms" validate:"min=1"`
	BackoffCapMs        int           `toml:"backoff_cap_ms" validate:"min=1"`
}

// InterceptConfig controls the API Interceptor (spec §4.4).
type InterceptConfig struct {
	CaptureBodies bool `toml:"capture_bodies"`
	MaxBodySize   int  `toml:"max_body_size" validate:"min=0"`
}

// SourceMapConfig controls the Source-Map Core (spec §4.7).
type SourceMapConfig struct {
	MaxSize           int64    `toml:"max_size" validate:"min=0"`
	Timeout           time.Duration `toml:"timeout"`
	IncludeNodeModules bool    `toml:"include_node_modules"`
	InternalPackages  []string `toml:"internal_packages"`
	ExcludePatterns   []string `toml:"exclude_patterns"`
	CacheDir          string   `toml:"cache_dir"`
}

// StateConfig controls the WAL + State Manager (spec §4.9).
type StateConfig struct {
	CompactionThreshold int  `toml:"compaction_threshold" validate:"min=1"`
	TruncateCorruptedWAL bool `toml:"truncate_corrupted_wal"`
	Resume              bool `toml:"resume"`
}

// ServerConfig controls the Replay Server (spec §4.10).
type ServerConfig struct {
	Port  int              `toml:"port" validate:"min=0,max=65535"`
	Host  string           `toml:"host"`
	CORS  bool             `toml:"cors"`
	Delay ServerDelayConfig `toml:"delay"`
	Watch bool             `toml:"watch"`
}

// ServerDelayConfig adds an artificial per-request delay to replayed fixtures.
type ServerDelayConfig struct {
	Enabled bool `toml:"enabled"`
	MinMs   int  `toml:"min_ms" validate:"min=0"`
	MaxMs   int  `toml:"max_ms" validate:"min=0"`
}

// LoggingConfig controls arbor's writer setup.
type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// NewDefault returns the configuration defaults matching spec.md §6.
func NewDefault() *Config {
	return &Config{
		Environment: "development",
		Crawl: CrawlConfig{
			Concurrency:        5,
			MaxDepth:           5,
			MaxPages:           100,
			PageRetries:        2,
			PageTimeout:        30 * time.Second,
			RateLimitDelay:     0,
			NetworkIdleTimeout: 5 * time.Second,
			NetworkIdleTime:    1 * time.Second,
			ScrollDelay:        50 * time.Millisecond,
			PageSettleTime:     1 * time.Second,
			AutoScroll:         true,
			MaxScrolls:         50,
			ScrollStepPixels:   800,
			CaptureStatic:      true,
			BackoffBaseMs:      1000,
			BackoffCapMs:       30000,
		},
		Intercept: InterceptConfig{
			CaptureBodies: true,
			MaxBodySize:   10 * 1024 * 1024,
		},
		SourceMap: SourceMapConfig{
			MaxSize: 100 * 1024 * 1024,
			Timeout: 30 * time.Second,
		},
		State: StateConfig{
			CompactionThreshold: 100,
		},
		Server: ServerConfig{
			Port: 4545,
			Host: "localhost",
			Delay: ServerDelayConfig{
				MinMs: 0,
				MaxMs: 0,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles merges defaults with zero or more TOML files, later files
// overriding earlier ones, then validates the result.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefault()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFlagOverrides applies CLI-flag values over whatever was loaded from
// files, following the teacher CLI's highest-priority-wins convention.
// A zero value for an override means "flag not set".
func ApplyFlagOverrides(cfg *Config, port int, host string, maxPages, maxDepth, concurrency int) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if maxPages != 0 {
		cfg.Crawl.MaxPages = maxPages
	}
	if maxDepth != 0 {
		cfg.Crawl.MaxDepth = maxDepth
	}
	if concurrency != 0 {
		cfg.Crawl.Concurrency = concurrency
	}
}

var validate = validator.New()

// Validate checks structural invariants on the resolved configuration.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Server.Delay.MaxMs < cfg.Server.Delay.MinMs {
		return fmt.Errorf("invalid configuration: server.delay.max_ms (%d) is less than min_ms (%d)", cfg.Server.Delay.MaxMs, cfg.Server.Delay.MinMs)
	}
	return nil
}
