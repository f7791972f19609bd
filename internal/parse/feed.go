package parse

import (
	"html"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
)

// ExtractFeed reads a site's syndication feed and keeps the entries that
// look like hits for the query. Some forums serve the Atom XML wrapped in an
// HTML <pre> page with escaped entities; that wrapping is undone before
// parsing. Entries must carry the site's feed link filter (when one is
// configured) and match a query variant in title or link.
func (p *Parser) ExtractFeed(site sites.Site, body, query string, max int) []search.Result {
	xml := strings.TrimSpace(body)
	if xml == "" {
		return nil
	}
	if !looksLikeFeed(xml) {
		if inner, ok := preBlock(xml); ok {
			if decoded := html.UnescapeString(strings.TrimSpace(inner)); looksLikeFeed(decoded) {
				xml = decoded
			}
		}
	}

	feed, err := gofeed.NewParser().ParseString(xml)
	if err != nil {
		p.log.Debug("unparseable feed",
			zap.String("site", site.Name), zap.Error(err))
		return nil
	}

	linkFilter := ""
	if site.Feed != nil {
		linkFilter = site.Feed.LinkMustContain
	}
	variants := search.VariantsOf(query)

	var out []search.Result
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		if title == "" || link == "" {
			continue
		}
		if linkFilter != "" && !strings.Contains(link, linkFilter) {
			continue
		}
		if !variants.MatchesTitle(title) && !variants.MatchesURL(link) {
			continue
		}
		out = append(out, search.Result{
			Site:  site.Name,
			Title: site.CleanTitle(title),
			URL:   AbsoluteURL(site.BaseURL, link),
		})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func looksLikeFeed(s string) bool {
	return strings.Contains(s, "<feed") ||
		strings.Contains(s, "<rss") ||
		strings.Contains(s, "<rdf:RDF")
}
