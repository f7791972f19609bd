package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pelinal/gamesearch/internal/sites"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Search.Limit)
	require.Equal(t, 3, cfg.Search.Concurrency)
	require.InDelta(t, 0.85, cfg.Search.DedupThreshold, 0.001)
	require.Equal(t, 15, cfg.Fetch.TimeoutSeconds)
	require.Equal(t, 1000, cfg.RateLimit.BaseDelayMS)
	require.Equal(t, 30000, cfg.RateLimit.MaxDelayMS)
	require.Equal(t, 5, cfg.RateLimit.MaxFailures)
	require.Equal(t, 5, cfg.Breaker.FailureThreshold)
	require.Equal(t, 30, cfg.Breaker.RecoverySeconds)
	require.False(t, cfg.Solver.Enabled)
	require.True(t, cfg.Render.Enabled)
	require.Equal(t, 10, cfg.Cache.MaxSize)
	require.Equal(t, 12, cfg.Cache.TTLHours)
	require.Equal(t, "memory", cfg.History.Backend)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[search]
limit = 25
concurrency = 5
sites = ["fitgirl", "dodi"]

[fetch]
timeout_seconds = 20
user_agent = "custom-agent"

[solver]
enabled = true
url = "http://solver.local:8191/v1"
preferred = true

[cache]
max_size = 15

[server]
port = 9090

[auth]
enabled = true
api_key = "secret"

[history]
backend = "postgres"
dsn = "postgres://localhost/gamesearch"

[logging]
development = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 25, cfg.Search.Limit)
	require.Equal(t, 5, cfg.Search.Concurrency)
	require.Equal(t, []string{"fitgirl", "dodi"}, cfg.Search.Sites)
	require.Equal(t, 20, cfg.Fetch.TimeoutSeconds)
	require.Equal(t, "custom-agent", cfg.Fetch.UserAgent)
	require.True(t, cfg.Solver.Enabled)
	require.True(t, cfg.Solver.Preferred)
	require.Equal(t, "http://solver.local:8191/v1", cfg.Solver.URL)
	require.Equal(t, 15, cfg.Cache.MaxSize)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "postgres", cfg.History.Backend)
	require.False(t, cfg.Logging.Development)

	// Unset sections keep their defaults.
	require.Equal(t, 3, cfg.Fetch.Attempts)
	require.True(t, cfg.Render.Enabled)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadSiteTable(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[global]
timeout_seconds = 60
retry_attempts = 5
rate_limit_delay_ms = 2000

[sites.test-site]
base_url = "https://example.com/"
search_kind = "QueryParam"
query_param = "q"
result_selector = "a.result"

[sites.fitgirl]
base_url = "https://fitgirl-repacks.site/"
search_kind = "QueryParam"
query_param = "s"
result_selector = "h1.entry-title a"
requires_solver = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Table keys become site names.
	site, ok := cfg.Sites["test-site"]
	require.True(t, ok)
	require.Equal(t, "test-site", site.Name)
	require.Equal(t, "q", site.QueryParam)

	reg, err := cfg.BuildRegistry()
	require.NoError(t, err)

	// New site appended with global defaults applied.
	got, ok := reg.Get("test-site")
	require.True(t, ok)
	require.Equal(t, 60, got.TimeoutSeconds)
	require.Equal(t, 5, got.RetryAttempts)
	require.Equal(t, 2000, got.RateLimitDelayMS)
	require.Equal(t, sites.KindQueryParam, got.Kind)

	// Built-in entry replaced wholesale by the override.
	fitgirl, ok := reg.Get("fitgirl")
	require.True(t, ok)
	require.Equal(t, "h1.entry-title a", fitgirl.ResultSelector)
	require.True(t, fitgirl.RequiresSolver)

	// The rest of the built-ins are still registered.
	_, ok = reg.Get("steamgg")
	require.True(t, ok)
}

func TestBuildRegistryDeterministicOrder(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
[sites.zzz]
base_url = "https://zzz.example/"
result_selector = "a"

[sites.aaa]
base_url = "https://aaa.example/"
result_selector = "a"
`))
	require.NoError(t, err)

	reg, err := cfg.BuildRegistry()
	require.NoError(t, err)

	names := reg.Names()
	builtin := len(sites.Builtin())
	require.Len(t, names, builtin+2)
	require.Equal(t, "aaa", names[builtin])
	require.Equal(t, "zzz", names[builtin+1])
}

func TestBuildRegistryRejectsBadSite(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
[sites.broken]
base_url = "https://broken.example/"
`))
	require.NoError(t, err)

	_, err = cfg.BuildRegistry()
	require.Error(t, err)
	require.Contains(t, err.Error(), "result selector")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Search: SearchConfig{Limit: 10, Concurrency: 3, DedupThreshold: 0.85},
		Fetch:  FetchConfig{TimeoutSeconds: 15, Attempts: 3},
		Cache:  CacheConfig{MaxSize: 10},
		Server: ServerConfig{Port: 8080},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid limit",
			mutate: func(c *Config) { c.Search.Limit = 0 },
			want:   "search.limit",
		},
		{
			name:   "invalid concurrency",
			mutate: func(c *Config) { c.Search.Concurrency = 0 },
			want:   "search.concurrency",
		},
		{
			name:   "threshold out of range",
			mutate: func(c *Config) { c.Search.DedupThreshold = 1.5 },
			want:   "search.dedup_threshold",
		},
		{
			name:   "invalid timeout",
			mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 },
			want:   "fetch.timeout_seconds",
		},
		{
			name:   "render missing max parallel",
			mutate: func(c *Config) { c.Render.Enabled = true },
			want:   "render.max_parallel",
		},
		{
			name:   "invalid cache size",
			mutate: func(c *Config) { c.Cache.MaxSize = 0 },
			want:   "cache.max_size",
		},
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "auth missing api key",
			mutate: func(c *Config) { c.Auth.Enabled = true },
			want:   "auth.api_key",
		},
		{
			name:   "postgres missing dsn",
			mutate: func(c *Config) { c.History.Backend = "postgres" },
			want:   "history.dsn",
		},
		{
			name:   "unknown history backend",
			mutate: func(c *Config) { c.History.Backend = "redis" },
			want:   "history.backend",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want),
				"expected error containing %q, got %v", tt.want, err)
		})
	}
}
