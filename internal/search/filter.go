package search

import (
	"strings"

	"github.com/pelinal/gamesearch/internal/sites"
)

// PostFilter de-noises one site's parsed results. Scrapes of front pages,
// listings and forum search results return navigation links alongside hits,
// so those kinds always get the generic query-presence filter. Site filter
// capabilities tighten it further:
//
//   - LinkMustContain drops results whose URL lacks the substring.
//   - PathPrefixes keeps only query-matching URLs under the given prefixes.
//   - TitleMustMatch requires the query in the title; URL matches alone do
//     not count (forum software echoes the query into every result URL).
func PostFilter(site sites.Site, query string, results []Result) []Result {
	v := VariantsOf(query)
	out := results[:0]
	for _, r := range results {
		if site.Filter.LinkMustContain != "" &&
			!strings.Contains(r.URL, site.Filter.LinkMustContain) {
			continue
		}
		if len(site.Filter.PathPrefixes) > 0 &&
			(!hasPathPrefix(r.URL, site.Filter.PathPrefixes) || !v.Matches(r)) {
			continue
		}
		if site.Filter.TitleMustMatch && !v.MatchesTitle(r.Title) {
			continue
		}
		if site.PostFilterKind() && !site.Filter.TitleMustMatch && !v.Matches(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasPathPrefix(rawURL string, prefixes []string) bool {
	ul := strings.ToLower(rawURL)
	for _, p := range prefixes {
		if strings.Contains(ul, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
