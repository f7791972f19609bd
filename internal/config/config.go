// Package config loads and validates gamesearch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/pelinal/gamesearch/internal/sites"
)

// Config captures all tool configuration knobs loaded via Viper.
type Config struct {
	Search     SearchConfig          `mapstructure:"search"`
	Fetch      FetchConfig           `mapstructure:"fetch"`
	RateLimit  RateLimitConfig       `mapstructure:"ratelimit"`
	Breaker    BreakerConfig         `mapstructure:"breaker"`
	Solver     SolverConfig          `mapstructure:"solver"`
	Render     RenderConfig          `mapstructure:"render"`
	Cache      CacheConfig           `mapstructure:"cache"`
	History    HistoryConfig         `mapstructure:"history"`
	Server     ServerConfig          `mapstructure:"server"`
	Auth       AuthConfig            `mapstructure:"auth"`
	AntiDetect AntiDetectConfig      `mapstructure:"antidetect"`
	Logging    LoggingConfig         `mapstructure:"logging"`
	Global     sites.Defaults        `mapstructure:"global"`
	Sites      map[string]sites.Site `mapstructure:"sites"`
}

// SearchConfig governs the fan-out search pipeline.
type SearchConfig struct {
	Limit          int      `mapstructure:"limit"`
	Concurrency    int      `mapstructure:"concurrency"`
	Sites          []string `mapstructure:"sites"`
	DedupThreshold float64  `mapstructure:"dedup_threshold"`
}

// FetchConfig configures the HTTP transport and retry layer.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Attempts       int    `mapstructure:"attempts"`
	UserAgent      string `mapstructure:"user_agent"`
	Proxy          string `mapstructure:"proxy"`
}

// RateLimitConfig tunes the adaptive per-site limiter.
type RateLimitConfig struct {
	BaseDelayMS       int     `mapstructure:"base_delay_ms"`
	MaxDelayMS        int     `mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	JitterFactor      float64 `mapstructure:"jitter_factor"`
	MaxFailures       int     `mapstructure:"max_failures"`
}

// BreakerConfig tunes the per-site circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	RecoverySeconds  int `mapstructure:"recovery_seconds"`
}

// SolverConfig points at a FlareSolverr instance for challenge-walled sites.
type SolverConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// Preferred routes solver-requiring sites through the proxy before
	// trying a direct fetch.
	Preferred bool `mapstructure:"preferred"`
}

// RenderConfig configures the headless rendering fallback.
type RenderConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	MaxParallel          int     `mapstructure:"max_parallel"`
	NavTimeoutSeconds    int     `mapstructure:"nav_timeout_seconds"`
	NavigationsPerSecond float64 `mapstructure:"navigations_per_second"`
}

// CacheConfig controls the search result cache.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	MaxSize  int    `mapstructure:"max_size"`
	TTLHours int    `mapstructure:"ttl_hours"`
	// Path overrides the default snapshot location under the user cache dir.
	Path string `mapstructure:"path"`
}

// HistoryConfig selects where completed searches are recorded.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// AntiDetectConfig toggles browser-identity rotation on outgoing fetches.
type AntiDetectConfig struct {
	RotateUserAgent  bool   `mapstructure:"rotate_user_agent"`
	RandomizeHeaders bool   `mapstructure:"randomize_headers"`
	ProxyURL         string `mapstructure:"proxy_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. With an explicit path the
// file must exist; otherwise the usual search paths are tried and a missing
// file just means defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GAMESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gamesearch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Site table keys double as names so entries don't have to repeat them.
	for name, site := range cfg.Sites {
		if site.Name == "" {
			site.Name = name
			cfg.Sites[name] = site
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.limit", 10)
	v.SetDefault("search.concurrency", 3)
	v.SetDefault("search.dedup_threshold", 0.85)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("ratelimit.base_delay_ms", 1000)
	v.SetDefault("ratelimit.max_delay_ms", 30000)
	v.SetDefault("ratelimit.backoff_multiplier", 2.0)
	v.SetDefault("ratelimit.jitter_factor", 0.1)
	v.SetDefault("ratelimit.max_failures", 5)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_seconds", 30)
	v.SetDefault("solver.enabled", false)
	v.SetDefault("solver.preferred", false)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("render.nav_timeout_seconds", 45)
	v.SetDefault("render.navigations_per_second", 0.5)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_size", 10)
	v.SetDefault("cache.ttl_hours", 12)
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.table", "searches")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("antidetect.rotate_user_agent", false)
	v.SetDefault("antidetect.randomize_headers", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("global.timeout_seconds", 30)
	v.SetDefault("global.retry_attempts", 3)
	v.SetDefault("global.rate_limit_delay_ms", 1000)
}

// Validate enforces required values and reasonable limits. Configuration is
// the only error class that stops startup.
func (c Config) Validate() error {
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be > 0")
	}
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("search.concurrency must be > 0")
	}
	if c.Search.DedupThreshold < 0 || c.Search.DedupThreshold > 1 {
		return fmt.Errorf("search.dedup_threshold must be in [0, 1]")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.Attempts <= 0 {
		return fmt.Errorf("fetch.attempts must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.History.Backend {
	case "", "memory":
	case "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set when history.backend is postgres")
		}
	default:
		return fmt.Errorf("history.backend must be memory or postgres, got %q", c.History.Backend)
	}
	return nil
}

// BuildRegistry merges the built-in sites with the config's site table and
// returns the validated registry. A configured site with a built-in name
// replaces that entry wholesale; new names are appended in sorted order so
// the registry stays deterministic. The search.sites allowlist narrows
// selection later, not registration.
func (c Config) BuildRegistry() (*sites.Registry, error) {
	list := sites.Builtin()
	index := make(map[string]int, len(list))
	for i, s := range list {
		index[strings.ToLower(s.Name)] = i
	}

	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		site := c.Sites[name]
		if i, ok := index[strings.ToLower(site.Name)]; ok {
			list[i] = site
			continue
		}
		index[strings.ToLower(site.Name)] = len(list)
		list = append(list, site)
	}

	defaults := c.Global
	std := sites.StandardDefaults()
	if defaults.TimeoutSeconds <= 0 {
		defaults.TimeoutSeconds = std.TimeoutSeconds
	}
	if defaults.RetryAttempts <= 0 {
		defaults.RetryAttempts = std.RetryAttempts
	}
	if defaults.RateLimitDelayMS <= 0 {
		defaults.RateLimitDelayMS = std.RateLimitDelayMS
	}

	return sites.NewRegistry(list, defaults)
}
