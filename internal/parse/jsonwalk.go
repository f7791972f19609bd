package parse

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
)

// ExtractJSON pulls results out of an alternate-endpoint payload. Endpoints
// in the wild answer with plain JSON, JSON wrapped in a <pre> debug page, or
// an HTML fragment under an "html" key, so all three shapes are handled.
func (p *Parser) ExtractJSON(site sites.Site, body, query string) []search.Result {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "<") {
		if inner, ok := preBlock(trimmed); ok {
			var v any
			if err := json.Unmarshal([]byte(inner), &v); err == nil {
				if results := p.collectPairs(site, v); len(results) > 0 {
					return results
				}
			}
		}
		// Not a JSON page after all; read it as a plain result page.
		return p.Parse(site, body, query)
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		p.log.Debug("undecodable endpoint payload",
			zap.String("site", site.Name), zap.Error(err))
		return nil
	}

	if obj, ok := v.(map[string]any); ok {
		if html, ok := obj["html"].(string); ok {
			if results := p.Parse(site, html, query); len(results) > 0 {
				return results
			}
		}
		if data, ok := obj["data"].(map[string]any); ok {
			if html, ok := data["html"].(string); ok {
				if results := p.Parse(site, html, query); len(results) > 0 {
					return results
				}
			}
		}
	}
	return p.collectPairs(site, v)
}

// collectPairs walks arbitrary JSON and collects every object carrying both
// a title-ish and a link-ish field. Objects with only a slug expand through
// the site's slug template.
func (p *Parser) collectPairs(site sites.Site, v any) []search.Result {
	var out []search.Result
	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			title := firstString(node, "title", "name")
			link := firstString(node, "url", "permalink", "href", "path")
			if link == "" {
				if slug := firstString(node, "slug"); slug != "" {
					link = slugURL(site, slug)
				}
			}
			if title != "" && link != "" {
				out = append(out, search.Result{
					Site:  site.Name,
					Title: title,
					URL:   rebaseLink(site, link),
				})
			}
			for _, child := range node {
				walk(child)
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(v)
	return out
}

func firstString(node map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := node[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func slugURL(site sites.Site, slug string) string {
	if site.AltEndpoints == nil || site.AltEndpoints.SlugURL == "" {
		return ""
	}
	return strings.ReplaceAll(site.AltEndpoints.SlugURL, "{slug}", slug)
}

func rebaseLink(site sites.Site, link string) string {
	if strings.HasPrefix(link, "/") && site.AltEndpoints != nil && site.AltEndpoints.LinkBase != "" {
		return site.AltEndpoints.LinkBase + link
	}
	return link
}

// preBlock returns the content of the first <pre> element, tolerating
// attributes on the opening tag.
func preBlock(s string) (string, bool) {
	start := strings.Index(s, "<pre")
	if start < 0 {
		return "", false
	}
	tagEnd := strings.Index(s[start:], ">")
	if tagEnd < 0 {
		return "", false
	}
	contentStart := start + tagEnd + 1
	closeRel := strings.Index(s[contentStart:], "</pre>")
	if closeRel < 0 {
		return "", false
	}
	return s[contentStart : contentStart+closeRel], true
}
