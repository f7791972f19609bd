// Package parse turns raw page bodies into search results. Extraction is
// capability-driven: a site either uses the generic selector pass or names a
// registered strategy, so no code here ever switches on a site name.
package parse

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
)

// maxListResults bounds how many entries the listing strategies return from
// one page. Forum indexes run to hundreds of threads.
const maxListResults = 50

// Parser extracts results from HTML and from alternate JSON payloads.
type Parser struct {
	log *zap.Logger
}

// New builds a Parser.
func New(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("parse")}
}

// Parse extracts results for site from html. Empty input and malformed
// markup yield nil rather than errors; a page that parses to nothing is an
// ordinary outcome in this domain.
func (p *Parser) Parse(site sites.Site, html, query string) []search.Result {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.log.Debug("unparseable page", zap.String("site", site.Name), zap.Error(err))
		return nil
	}

	switch site.Extractor {
	case sites.ExtractorHeadings:
		return p.headings(site, doc, query)
	case sites.ExtractorThreads:
		return p.threads(site, doc, query)
	case sites.ExtractorCards:
		return p.cards(site, doc, query)
	case "":
		return p.generic(site, doc, query)
	default:
		p.log.Warn("unknown extractor, using generic",
			zap.String("site", site.Name),
			zap.String("extractor", site.Extractor))
		return p.generic(site, doc, query)
	}
}

// generic runs the configured selector and keeps hits matching the query;
// when the selector yields nothing usable it falls back to scanning every
// anchor on the page.
func (p *Parser) generic(site sites.Site, doc *goquery.Document, query string) []search.Result {
	variants := search.VariantsOf(query)

	primary := p.selectorPass(site, doc)
	if len(primary) > 0 {
		kept := make([]search.Result, 0, len(primary))
		for _, r := range primary {
			if variants.Matches(r) {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			return kept
		}
	}
	return p.anchorFallback(site, doc, variants)
}

func (p *Parser) selectorPass(site sites.Site, doc *goquery.Document) []search.Result {
	var out []search.Result
	doc.Find(site.ResultSelector).Each(func(_ int, el *goquery.Selection) {
		href := elementURL(site, el)
		if href == "" {
			return
		}
		pageURL := AbsoluteURL(site.BaseURL, href)

		title := elementTitle(site, el)
		if title == "" {
			title = deriveTitleFromHref(pageURL)
		}
		if title == "" {
			return
		}
		if site.Drop.DropURL(pageURL) || site.Drop.DropTitle(title) {
			return
		}
		out = append(out, search.Result{Site: site.Name, Title: title, URL: pageURL})
	})
	return out
}

func (p *Parser) anchorFallback(site sites.Site, doc *goquery.Document, variants search.Variants) []search.Result {
	var out []search.Result
	doc.Find("a[href]").Each(func(_ int, el *goquery.Selection) {
		href := el.AttrOr("href", "")
		if href == "" {
			return
		}
		text := el.Text()
		if !variants.MatchesTitle(text) && !variants.MatchesURL(href) {
			return
		}

		pageURL := AbsoluteURL(site.BaseURL, href)
		title := strings.TrimSpace(text)
		if title == "" {
			title = deriveTitleFromHref(pageURL)
		}
		if title == "" {
			return
		}
		if site.Drop.DropURL(pageURL) || site.Drop.DropTitle(title) {
			return
		}
		out = append(out, search.Result{
			Site:  site.Name,
			Title: title,
			URL:   strings.ReplaceAll(pageURL, "/./", "/"),
		})
	})
	return out
}

// headings matches release-listing front pages: each release is a heading
// whose text carries the title and whose first anchor carries the link.
func (p *Parser) headings(site sites.Site, doc *goquery.Document, query string) []search.Result {
	lowerQuery := strings.ToLower(query)
	var out []search.Result

	doc.Find(site.ResultSelector).Each(func(_ int, heading *goquery.Selection) {
		text := strings.TrimSpace(heading.Text())
		if text == "" || !strings.Contains(strings.ToLower(text), lowerQuery) {
			return
		}
		href := heading.Find("a[href]").First().AttrOr("href", "")
		if href == "" {
			return
		}
		out = append(out, search.Result{
			Site:  site.Name,
			Title: text,
			URL:   AbsoluteURL(site.BaseURL, href),
		})
	})
	return out
}

// threads matches forum thread listings. Pagination, member and in-page
// anchor links share the thread link shape and are skipped; titles must
// contain every query word since a listing page shows the whole forum.
func (p *Parser) threads(site sites.Site, doc *goquery.Document, query string) []search.Result {
	words := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{})
	base := strings.TrimRight(site.BaseURL, "/")
	var out []search.Result

	doc.Find(site.ResultSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		href := el.AttrOr("href", "")
		if href == "" {
			return true
		}
		if strings.Contains(href, "/page-") ||
			strings.Contains(href, "/members/") ||
			strings.Contains(href, "/latest") ||
			strings.Contains(href, "#") {
			return true
		}

		pageURL := href
		if !strings.HasPrefix(pageURL, "http") {
			pageURL = base + pageURL
		}
		if _, dup := seen[pageURL]; dup {
			return true
		}

		title := strings.TrimSpace(el.Text())
		if title == "" {
			return true
		}
		lower := strings.ToLower(title)
		if len(lower) < 3 || lower == "threads" || lower == "games" ||
			strings.HasPrefix(lower, "page ") || allDigits(lower) {
			return true
		}
		if !containsAllWords(lower, words) {
			return true
		}
		if site.Drop.DropURL(pageURL) || site.Drop.DropTitle(title) {
			return true
		}

		seen[pageURL] = struct{}{}
		out = append(out, search.Result{Site: site.Name, Title: title, URL: pageURL})
		return len(out) < maxListResults
	})
	return out
}

// cards matches card or article listings where navigation links share the
// result selectors. Only same-host absolute links count, and titles must
// contain every query word.
func (p *Parser) cards(site sites.Site, doc *goquery.Document, query string) []search.Result {
	host := baseHost(site.BaseURL)
	words := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{})
	var out []search.Result

	doc.Find(site.ResultSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		href := el.AttrOr("href", "")
		if href == "" {
			return true
		}
		if site.Drop.DropURL(href) {
			return true
		}
		if host != "" && !strings.Contains(href, host) {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}

		title := strings.TrimSpace(el.Text())
		if title == "" {
			return true
		}
		lower := strings.ToLower(title)
		if lower == host || site.Drop.DropTitle(title) {
			return true
		}
		if !containsAllWords(lower, words) {
			return true
		}

		seen[href] = struct{}{}
		out = append(out, search.Result{Site: site.Name, Title: title, URL: href})
		return len(out) < maxListResults
	})
	return out
}

func elementURL(site sites.Site, el *goquery.Selection) string {
	attr := site.URLAttr
	if attr == "" {
		attr = "href"
	}
	if v, ok := el.Attr(attr); ok && v != "" {
		return v
	}
	// Some cards wrap the anchor around the selected element.
	if v, ok := el.Parent().Attr(attr); ok && v != "" {
		return v
	}
	return ""
}

func elementTitle(site sites.Site, el *goquery.Selection) string {
	if site.TitleAttr == "" || site.TitleAttr == "text" {
		return strings.TrimSpace(el.Text())
	}
	return strings.TrimSpace(el.AttrOr(site.TitleAttr, ""))
}

// AbsoluteURL resolves href the way browsers on these sites effectively do:
// scheme-qualified and protocol-relative links pass through, rooted paths
// join the trimmed base, fragments append to the base page, and bare slugs
// become base-relative paths.
func AbsoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") ||
		strings.HasPrefix(href, "https://") ||
		strings.HasPrefix(href, "//") {
		return href
	}
	trimmed := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(href, "/"):
		return trimmed + href
	case strings.HasPrefix(href, "#"):
		return base + href
	default:
		// phpBB feeds emit ./viewtopic.php style links.
		return trimmed + "/" + strings.TrimPrefix(href, "./")
	}
}

// deriveTitleFromHref recovers a display title from a slug-style URL when
// the anchor has no text: last path segment, decoded, dashes and underscores
// to spaces, words title-cased.
func deriveTitleFromHref(href string) string {
	segment := href
	if idx := strings.LastIndex(href, "/"); idx >= 0 {
		segment = href[idx+1:]
	}
	if cut := strings.IndexAny(segment, "?#"); cut >= 0 {
		segment = segment[:cut]
	}
	if segment == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(segment)
	if err != nil {
		return ""
	}
	replaced := strings.NewReplacer("-", " ", "_", " ").Replace(decoded)

	words := strings.Fields(replaced)
	for i, w := range words {
		words[i] = titleCaseWord(w)
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

func titleCaseWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if size == 0 {
		return ""
	}
	return strings.ToUpper(string(r)) + strings.ToLower(w[size:])
}

func baseHost(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func allDigits(s string) bool {
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

func containsAllWords(haystack string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}
