package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// newCacheCmd creates the 'cache' subcommand group for inspecting and
// managing the persisted search cache.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the search cache",
	}
	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheRemoveCmd())
	cmd.AddCommand(newCacheSetSizeCmd())
	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached searches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			entries := appInstance.Cache().EntriesNewestFirst()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
				return nil
			}
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "QUERY\tRESULTS\tAGE\tTTL LEFT")
			for _, e := range entries {
				ttl := "expired"
				if !e.Expired(now) {
					ttl = e.RemainingTTL(now).Round(time.Minute).String()
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
					e.Query, len(e.Results), e.Age(now).Round(time.Second), ttl)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d slots used\n",
				appInstance.Cache().Len(), appInstance.Cache().MaxSize())
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return clearCacheAndReport(cmd, appInstance)
		},
	}
}

func newCacheRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <query>",
		Short: "Remove one cached search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			if !appInstance.Cache().Remove(query) {
				return fmt.Errorf("no cache entry for %q", query)
			}
			if err := appInstance.SaveCache(); err != nil {
				return fmt.Errorf("save cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q from cache.\n", query)
			return nil
		},
	}
}

func newCacheSetSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-size <n>",
		Short: "Resize the cache, evicting oldest entries if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid size %q", args[0])
			}
			appInstance.Cache().SetMaxSize(n)
			if err := appInstance.SaveCache(); err != nil {
				return fmt.Errorf("save cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache size set to %d.\n", appInstance.Cache().MaxSize())
			return nil
		},
	}
}
