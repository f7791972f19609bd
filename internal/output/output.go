// Package output renders search results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/pelinal/gamesearch/internal/search"
)

// Format selects a result rendering.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatTable:
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or table)", s)
	}
}

// titleWrapWidth keeps table rows readable on a 100-column terminal once the
// URL column is accounted for.
const titleWrapWidth = 60

// JSON writes the results as a pretty-printed {results, count} document.
func JSON(w io.Writer, results []search.Result) error {
	if results == nil {
		results = []search.Result{}
	}
	payload := struct {
		Results []search.Result `json:"results"`
		Count   int             `json:"count"`
	}{Results: results, Count: len(results)}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// Table writes results grouped by site, sites in alphabetical order so no
// group is ever dropped or reordered between runs. With plain set, each row
// renders as a "- title (url)" bullet instead of an aligned table.
func Table(w io.Writer, results []search.Result, plain bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	grouped := make(map[string][]search.Result)
	for _, r := range results {
		grouped[r.Site] = append(grouped[r.Site], r)
	}

	sites := make([]string, 0, len(grouped))
	for site := range grouped {
		sites = append(sites, site)
	}
	slices.Sort(sites)

	for _, site := range sites {
		fmt.Fprintf(w, "%s:\n", site)
		if plain {
			for _, r := range grouped[site] {
				fmt.Fprintf(w, "  - %s (%s)\n", r.Title, displayURL(r.URL))
			}
			fmt.Fprintln(w)
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  TITLE\tURL")
		for _, r := range grouped[site] {
			lines := wrapTitle(r.Title, titleWrapWidth)
			fmt.Fprintf(tw, "  %s\t%s\n", lines[0], displayURL(r.URL))
			for _, line := range lines[1:] {
				fmt.Fprintf(tw, "  %s\t\n", line)
			}
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
}

// displayURL cleans up the "/./" joins some phpBB feeds leave in links.
func displayURL(url string) string {
	return strings.ReplaceAll(url, "/./", "/")
}

// wrapTitle greedily wraps a title at width. Words longer than width get
// their own line rather than being split mid-word.
func wrapTitle(title string, width int) []string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
