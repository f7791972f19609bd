// Package cmd defines and implements the CLI commands for the gamesearch
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/app"
	"github.com/pelinal/gamesearch/internal/cache"
	"github.com/pelinal/gamesearch/internal/config"
	"github.com/pelinal/gamesearch/internal/history"
	"github.com/pelinal/gamesearch/internal/metrics"
	"github.com/pelinal/gamesearch/internal/progress/sinks"
	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
	"github.com/pelinal/gamesearch/internal/solver"
)

// Flags shared by every subcommand. They override the loaded configuration
// before services are built.
var (
	cfgFile       string
	flagDebug     bool
	flagNoCF      bool
	flagCFURL     string
	flagCookie    string
	flagNoRender  bool
	flagCacheSize int
)

// Search flags, used by the root command's positional-query run.
var (
	flagLimit      int
	flagSites      string
	flagFormat     string
	flagNoCache    bool
	flagDedupe     bool
	flagClearCache bool
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface commands depend on. *app.App satisfies it; tests
// swap in a mock through the newApp factory.
type App interface {
	Search(ctx context.Context, req app.SearchRequest) (app.SearchResponse, error)
	Logger() *zap.Logger
	Config() config.Config
	Registry() *sites.Registry
	Cache() *cache.Cache
	SaveCache() error
	History() history.Store
	Events() *sinks.EventStore
	Metrics() *metrics.Metrics
	PromRegistry() *prometheus.Registry
	Close(ctx context.Context)
}

// newApp builds the application services. A variable so tests can replace it
// with a mock factory.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options) (App, error) {
	return app.New(ctx, cfg, opts)
}

// newRootCmd creates and configures the root command. Running it with a
// query performs a search; subcommands cover the server and cache tooling.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gamesearch [query]",
		Short: "Concurrent game search across release sites",
		Long: `gamesearch fans a query out to the configured game release sites, racing
direct fetches against solver and render fallbacks per site, and merges the
per-site results into one list.

` + search.OperatorHelp,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds and injects the application after flags and config are
		// known but before any RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			applyFlagOverrides(cmd, &cfg)
			opts := app.Options{Cookie: flagCookie, NoRender: flagNoRender}
			appInstance, err := newApp(cmd.Context(), cfg, opts)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},

		RunE: runSearchCommand,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./config.toml, then $HOME/.config/gamesearch)")
	pf.BoolVar(&flagDebug, "debug", false, "verbose development logging")
	pf.BoolVar(&flagNoCF, "no-cf", false, "disable the FlareSolverr solver proxy")
	pf.StringVar(&flagCFURL, "cf-url", solver.DefaultURL, "FlareSolverr endpoint (setting it enables the solver)")
	pf.StringVar(&flagCookie, "cookie", "", "Cookie header to forward to protected sites")
	pf.BoolVar(&flagNoRender, "no-render", false, "disable the headless render fallback")
	pf.IntVar(&flagCacheSize, "cache-size", 0, "maximum cached searches (clamped to 3..20)")

	f := cmd.Flags()
	f.IntVar(&flagLimit, "limit", 0, "limit results per site (default from config)")
	f.StringVar(&flagSites, "sites", "", "comma-separated site list to include (default: all)")
	f.StringVar(&flagFormat, "format", "json", "output format: json or table")
	f.BoolVar(&flagNoCache, "no-cache", false, "bypass the search cache")
	f.BoolVar(&flagDedupe, "dedupe", false, "collapse near-duplicate titles across sites")
	f.BoolVar(&flagClearCache, "clear-cache", false, "clear the search cache and exit")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSitesCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd
}

// applyFlagOverrides folds explicit CLI flags into the loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flagDebug {
		cfg.Logging.Development = true
	}
	if flags.Changed("cf-url") {
		cfg.Solver.URL = flagCFURL
		cfg.Solver.Enabled = true
	}
	if flagNoCF {
		cfg.Solver.Enabled = false
	}
	if flags.Changed("cache-size") {
		cfg.Cache.MaxSize = flagCacheSize
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. The context carries signal cancellation
// from main.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
