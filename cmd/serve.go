package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/api"
)

var flagPort int

// newServeCmd creates the 'serve' subcommand exposing the search pipeline
// over HTTP.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search API",
		Long: `Starts an HTTP server exposing the search pipeline: /v1/search runs
queries, /v1/sites, /v1/cache, /v1/events and /v1/history introspect the
process, and /metrics serves Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
	cmd.Flags().IntVar(&flagPort, "port", 0, "listen port (default from config)")
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	log := appInstance.Logger()
	cfg := appInstance.Config()

	port := cfg.Server.Port
	if flagPort > 0 {
		port = flagPort
	}

	server := api.NewServer(api.Deps{
		Searcher:  appInstance,
		Registry:  appInstance.Registry(),
		Cache:     appInstance.Cache(),
		Events:    appInstance.Events(),
		History:   appInstance.History(),
		Gatherer:  appInstance.PromRegistry(),
		Metrics:   appInstance.Metrics(),
		SaveCache: appInstance.SaveCache,
		Logger:    log,
	}, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-cmd.Context().Done():
	}

	log.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
