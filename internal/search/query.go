package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pelinal/gamesearch/internal/sites"
)

// Normalize collapses all whitespace runs in a query to single spaces and
// trims the ends. Empty and whitespace-only input normalizes to "".
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// BuildURL renders the search page URL for one site and query according to
// the site's search kind. Front-page and listing kinds ignore the query here;
// matching happens in post-filtering instead.
func BuildURL(site sites.Site, query string) string {
	switch site.Kind {
	case sites.KindQueryParam:
		param := site.QueryParam
		if param == "" {
			param = "s"
		}
		qs := url.Values{param: {query}}.Encode()
		return site.BaseURL + "?" + qs
	case sites.KindPathEncoded:
		// Spaces must stay literal %20, everything else untouched.
		return site.BaseURL + strings.ReplaceAll(query, " ", "%20")
	case sites.KindListingPage:
		if site.ListingURL != "" {
			return site.ListingURL
		}
		return site.BaseURL
	case sites.KindPhpBBSearch:
		return fmt.Sprintf("%ssearch.php?keywords=%s&fid%%5B%%5D=10&sr=topics&sf=firstpost",
			site.BaseURL, percentEncode(query))
	default: // KindFrontPage
		return site.BaseURL
	}
}

// PageURLs builds the candidate URL list for one site search. Most sites get
// a single URL. phpBB search supports offset paging, so sites with Pages > 1
// on that kind get one URL per page.
func PageURLs(site sites.Site, query string) []string {
	first := BuildURL(site, query)
	if site.Kind != sites.KindPhpBBSearch || site.Pages <= 1 {
		return []string{first}
	}
	urls := make([]string, 0, site.Pages)
	urls = append(urls, first)
	for page := 1; page < site.Pages; page++ {
		// phpBB lists ten topics per page.
		urls = append(urls, fmt.Sprintf("%s&start=%d", first, page*10))
	}
	return urls
}

// Variants returns the case-folded query forms a result URL or title is
// matched against: the plain lowercase query plus its dash, plus,
// percent-encoded and stripped space substitutions.
type Variants struct {
	Lower    string
	Dash     string
	Plus     string
	Encoded  string
	Stripped string
}

// VariantsOf precomputes the matching forms for one query.
func VariantsOf(query string) Variants {
	lower := strings.ToLower(query)
	return Variants{
		Lower:    lower,
		Dash:     strings.ReplaceAll(lower, " ", "-"),
		Plus:     strings.ReplaceAll(lower, " ", "+"),
		Encoded:  strings.ReplaceAll(lower, " ", "%20"),
		Stripped: strings.ReplaceAll(lower, " ", ""),
	}
}

// MatchesTitle reports whether the case-folded title contains the query.
func (v Variants) MatchesTitle(title string) bool {
	return strings.Contains(strings.ToLower(title), v.Lower)
}

// MatchesURL reports whether the case-folded URL contains any query form.
func (v Variants) MatchesURL(u string) bool {
	ul := strings.ToLower(u)
	return strings.Contains(ul, v.Lower) ||
		strings.Contains(ul, v.Dash) ||
		strings.Contains(ul, v.Plus) ||
		strings.Contains(ul, v.Encoded) ||
		strings.Contains(ul, v.Stripped)
}

// Matches reports whether either the title or the URL matches the query.
func (v Variants) Matches(r Result) bool {
	return v.MatchesTitle(r.Title) || v.MatchesURL(r.URL)
}

// percentEncode escapes a query for URL use with %20 for spaces, the form
// phpBB and the alternate JSON endpoints expect.
func percentEncode(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

// EncodeQuery exposes the %20-style escaping for endpoint URL templates.
func EncodeQuery(q string) string {
	return percentEncode(q)
}
