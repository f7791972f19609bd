// Package sites holds the static per-site search descriptors: how to build a
// search URL for a site, how to extract results from its pages, and which
// fallback capabilities it supports. Descriptors are immutable once loaded.
package sites

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind selects how a site's search page URL is built.
type Kind uint8

const (
	// KindQueryParam appends the query as a URL parameter (?s=...).
	KindQueryParam Kind = iota
	// KindFrontPage fetches the front page and relies on post-filtering.
	KindFrontPage
	// KindPathEncoded appends the percent-encoded query to the base path.
	KindPathEncoded
	// KindListingPage fetches a fixed listing URL and post-filters.
	KindListingPage
	// KindPhpBBSearch uses a phpBB search.php keyword URL.
	KindPhpBBSearch
)

var kindNames = map[Kind]string{
	KindQueryParam:  "QueryParam",
	KindFrontPage:   "FrontPage",
	KindPathEncoded: "PathEncoded",
	KindListingPage: "ListingPage",
	KindPhpBBSearch: "PhpBBSearch",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "QueryParam"
}

// ParseKind maps a config string to a Kind. Unrecognized values fall back to
// QueryParam, matching the permissive config handling this tool has always
// had.
func ParseKind(s string) Kind {
	switch strings.TrimSpace(s) {
	case "FrontPage", "front_page":
		return KindFrontPage
	case "PathEncoded", "path_encoded":
		return KindPathEncoded
	case "ListingPage", "listing_page":
		return KindListingPage
	case "PhpBBSearch", "phpbb_search":
		return KindPhpBBSearch
	default:
		return KindQueryParam
	}
}

// Extraction strategy names understood by the result parser. Empty selects
// the generic selector-driven extraction.
const (
	// ExtractorHeadings scans heading elements for query matches and takes
	// the first link inside each; for front pages listing releases as
	// headings with download links.
	ExtractorHeadings = "headings"
	// ExtractorThreads reads forum thread listings, skipping pagination,
	// member and anchor links, and requires every query word in the title.
	ExtractorThreads = "threads"
	// ExtractorCards reads card/article listings, keeping same-host links
	// only and requiring every query word in the title.
	ExtractorCards = "cards"
)

// KnownExtractor reports whether name is a registered extraction strategy.
func KnownExtractor(name string) bool {
	switch name {
	case "", ExtractorHeadings, ExtractorThreads, ExtractorCards:
		return true
	}
	return false
}

// FeedSpec describes a site's machine-readable feed used as a structured
// fallback when page scraping yields nothing.
type FeedSpec struct {
	// Path is resolved against the site base URL (e.g. "feed.php?f=10").
	Path string `mapstructure:"path"`
	// LinkMustContain keeps only entries whose link contains this substring.
	LinkMustContain string `mapstructure:"link_must_contain"`
}

// AltEndpointSpec describes alternate JSON search endpoints tried when the
// primary pages yield nothing. Templates substitute {query} with the
// URL-encoded query and {slug} with a record's slug field.
type AltEndpointSpec struct {
	URLs    []string `mapstructure:"urls"`
	Referer string   `mapstructure:"referer"`
	// SlugURL expands records that carry only a slug into a full URL.
	SlugURL string `mapstructure:"slug_url"`
	// LinkBase prefixes root-relative links found in endpoint payloads.
	LinkBase string `mapstructure:"link_base"`
}

// Filter tunes the post-filtering applied to a site's parsed results.
type Filter struct {
	// LinkMustContain drops results whose URL lacks this substring.
	LinkMustContain string `mapstructure:"link_must_contain"`
	// PathPrefixes, when set, requires the URL path to start with one of
	// these prefixes.
	PathPrefixes []string `mapstructure:"path_prefixes"`
	// TitleMustMatch requires the query to appear in the result title.
	// URL matches do not count; forum search pages echo the query into
	// every result link.
	TitleMustMatch bool `mapstructure:"title_must_match"`
}

// DropSpec names extraction-time noise: anchors matching any rule never
// become results. Blog-style sites surface pagination, comment counts and
// date archives through the same selectors as real entries.
type DropSpec struct {
	URLContains    []string `mapstructure:"url_contains"`
	TitleEquals    []string `mapstructure:"title_equals"`
	TitlePrefixes  []string `mapstructure:"title_prefixes"`
	TitleContains  []string `mapstructure:"title_contains"`
	AllDigitTitles bool     `mapstructure:"all_digit_titles"`
	DateTitles     bool     `mapstructure:"date_titles"`
}

// DropURL reports whether a candidate link is navigation noise.
func (d *DropSpec) DropURL(url string) bool {
	if d == nil {
		return false
	}
	lower := strings.ToLower(url)
	for _, part := range d.URLContains {
		if strings.Contains(lower, strings.ToLower(part)) {
			return true
		}
	}
	return false
}

// DropTitle reports whether a candidate title is navigation noise.
func (d *DropSpec) DropTitle(title string) bool {
	if d == nil {
		return false
	}
	t := strings.TrimSpace(title)
	lower := strings.ToLower(t)
	for _, exact := range d.TitleEquals {
		if lower == strings.ToLower(exact) {
			return true
		}
	}
	for _, prefix := range d.TitlePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	for _, part := range d.TitleContains {
		if strings.Contains(lower, strings.ToLower(part)) {
			return true
		}
	}
	if d.AllDigitTitles && allASCIIDigits(t) {
		return true
	}
	if d.DateTitles && looksLikeDate(t) {
		return true
	}
	return false
}

func allASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// looksLikeDate matches dd/mm/yyyy-style strings, the shape WordPress date
// archive links render as anchor text.
func looksLikeDate(s string) bool {
	if len(s) < 8 || len(s) > 10 {
		return false
	}
	slashes := 0
	for _, r := range s {
		switch {
		case r == '/':
			slashes++
		case r < '0' || r > '9':
			return false
		}
	}
	return slashes == 2
}

// Site is one search target. The capability fields replace the per-site
// name dispatch the tool grew up with: behavior differences are declared
// here and looked up by the task, never switched on the site name.
type Site struct {
	Name             string   `mapstructure:"name"`
	BaseURL          string   `mapstructure:"base_url"`
	Kind             Kind     `mapstructure:"-"`
	KindName         string   `mapstructure:"search_kind"`
	QueryParam       string   `mapstructure:"query_param"`
	ListingURL       string   `mapstructure:"listing_url"`
	ResultSelector   string   `mapstructure:"result_selector"`
	TitleAttr        string   `mapstructure:"title_attr"`
	URLAttr          string   `mapstructure:"url_attr"`
	RequiresJS       bool     `mapstructure:"requires_js"`
	RequiresSolver   bool     `mapstructure:"requires_solver"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	RetryAttempts    int      `mapstructure:"retry_attempts"`
	RateLimitDelayMS int      `mapstructure:"rate_limit_delay_ms"`
	Pages            int      `mapstructure:"pages"`
	TitleStrip       []string `mapstructure:"title_strip"`
	// Extractor names a registered extraction strategy; empty selects the
	// generic selector-driven one.
	Extractor string `mapstructure:"extractor"`

	Feed         *FeedSpec        `mapstructure:"feed"`
	AltEndpoints *AltEndpointSpec `mapstructure:"alt_endpoints"`
	Filter       Filter           `mapstructure:"filter"`
	Drop         *DropSpec        `mapstructure:"drop"`

	titleStripRE []*regexp.Regexp
}

// Defaults are applied to zero-valued per-site fields at load time.
type Defaults struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	RetryAttempts    int `mapstructure:"retry_attempts"`
	RateLimitDelayMS int `mapstructure:"rate_limit_delay_ms"`
}

// StandardDefaults mirrors the tool's long-standing global defaults.
func StandardDefaults() Defaults {
	return Defaults{
		TimeoutSeconds:   30,
		RetryAttempts:    3,
		RateLimitDelayMS: 1000,
	}
}

// Finalize resolves the kind name, applies defaults and compiles the title
// strip patterns. It must run once per site before the site is used.
func (s *Site) Finalize(d Defaults) error {
	if s.KindName != "" {
		s.Kind = ParseKind(s.KindName)
	}
	if s.TitleAttr == "" {
		s.TitleAttr = "text"
	}
	if s.URLAttr == "" {
		s.URLAttr = "href"
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = d.TimeoutSeconds
	}
	if s.RetryAttempts == 0 {
		s.RetryAttempts = d.RetryAttempts
	}
	if s.RateLimitDelayMS == 0 {
		s.RateLimitDelayMS = d.RateLimitDelayMS
	}
	if s.Pages <= 0 {
		s.Pages = 1
	}
	s.titleStripRE = s.titleStripRE[:0]
	for _, pat := range s.TitleStrip {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("site %s: title strip pattern %q: %w", s.Name, pat, err)
		}
		s.titleStripRE = append(s.titleStripRE, re)
	}
	return nil
}

// Validate reports configuration errors that must stop startup.
func (s *Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("site with base URL %q has no name", s.BaseURL)
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("site %s has no base URL", s.Name)
	}
	if strings.TrimSpace(s.ResultSelector) == "" {
		return fmt.Errorf("site %s has no result selector", s.Name)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("site %s has non-positive timeout", s.Name)
	}
	if !KnownExtractor(s.Extractor) {
		return fmt.Errorf("site %s has unknown extractor %q", s.Name, s.Extractor)
	}
	return nil
}

// CleanTitle applies the site's title strip patterns.
func (s *Site) CleanTitle(title string) string {
	for _, re := range s.titleStripRE {
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}

// PostFilterKind reports whether this site's kind requires the generic
// query-presence post-filter. Front-page and listing scrapes return site
// navigation links; the filter strips the unrelated ones.
func (s *Site) PostFilterKind() bool {
	switch s.Kind {
	case KindFrontPage, KindListingPage, KindPhpBBSearch:
		return true
	default:
		return false
	}
}

// Registry is the loaded, validated set of sites for one process.
type Registry struct {
	sites []Site
	index map[string]int
}

// NewRegistry finalizes, validates and indexes the given sites.
func NewRegistry(list []Site, d Defaults) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(list))}
	for i := range list {
		s := list[i]
		if err := s.Finalize(d); err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(s.Name)
		if _, dup := r.index[key]; dup {
			return nil, fmt.Errorf("duplicate site name %q", s.Name)
		}
		r.index[key] = len(r.sites)
		r.sites = append(r.sites, s)
	}
	return r, nil
}

// All returns every site in registration order.
func (r *Registry) All() []Site {
	return append([]Site(nil), r.sites...)
}

// Names returns the site names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.sites))
	for i, s := range r.sites {
		names[i] = s.Name
	}
	return names
}

// Get looks a site up case-insensitively.
func (r *Registry) Get(name string) (Site, bool) {
	i, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Site{}, false
	}
	return r.sites[i], true
}

// Select returns the sites matching the requested names, preserving registry
// order. An empty request selects every site. Unknown names are reported so
// the caller can surface them without failing the run.
func (r *Registry) Select(names []string) (selected []Site, unknown []string) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := r.index[n]; ok {
			want[n] = true
		} else {
			unknown = append(unknown, n)
		}
	}
	for _, s := range r.sites {
		if want[strings.ToLower(s.Name)] {
			selected = append(selected, s)
		}
	}
	return selected, unknown
}
