package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pelinal/gamesearch/internal/app"
	"github.com/pelinal/gamesearch/internal/output"
)

// runSearchCommand implements the root command: search for the positional
// query, prompting interactively when none is given.
func runSearchCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	if flagClearCache {
		return clearCacheAndReport(cmd, appInstance)
	}

	format, err := output.ParseFormat(flagFormat)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		query, err = promptQuery(cmd, appInstance)
		if err != nil {
			return err
		}
	}

	resp, err := appInstance.Search(cmd.Context(), app.SearchRequest{
		Query:   query,
		Sites:   splitSiteList(flagSites),
		Limit:   flagLimit,
		NoCache: flagNoCache,
		Dedupe:  flagDedupe,
	})
	if err != nil {
		return err
	}

	if len(resp.Unknown) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Unknown sites: %s\n", strings.Join(resp.Unknown, ", "))
	}

	out := cmd.OutOrStdout()
	switch format {
	case output.FormatTable:
		plain := os.Getenv("NO_TABLE") != ""
		output.Table(out, resp.Results, plain)
		source := "live"
		if resp.CacheHit {
			source = "cache"
		}
		fmt.Fprintf(out, "\n%d result(s) in %.2fs (%s)\n", len(resp.Results), resp.Took.Seconds(), source)
		return nil
	default:
		return output.JSON(out, resp.Results)
	}
}

// promptQuery asks for a search phrase on stdin, showing recent searches
// first so a returning user can retype one.
func promptQuery(cmd *cobra.Command, appInstance App) (string, error) {
	out := cmd.OutOrStdout()
	entries := appInstance.Cache().EntriesNewestFirst()
	if len(entries) > 0 {
		fmt.Fprintln(out, "Recent searches:")
		for i, e := range entries {
			if i == 5 {
				break
			}
			fmt.Fprintf(out, "  %d. %s (%d results)\n", i+1, e.Query, len(e.Results))
		}
		fmt.Fprintln(out)
	}
	fmt.Fprint(out, "Search phrase: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("empty search phrase")
	}
	query := strings.TrimSpace(line)
	if query == "" {
		return "", errors.New("empty search phrase")
	}
	return query, nil
}

func splitSiteList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func clearCacheAndReport(cmd *cobra.Command, appInstance App) error {
	had := appInstance.Cache().Len()
	appInstance.Cache().Clear()
	if err := appInstance.SaveCache(); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	if had == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cache to clear.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared successfully.")
	return nil
}
