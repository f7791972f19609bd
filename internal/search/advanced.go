package search

import (
	"regexp"
	"strings"
)

var quotedPhrase = regexp.MustCompile(`"([^"]+)"`)

// Advanced is a query parsed for search operators:
//
//	site:name     restrict to sites whose name contains name
//	-term         drop results containing term in title or URL
//	"phrase"      require the exact phrase in title or URL
//	regex:pattern require the pattern to match title or URL
//
// Remaining tokens are ordinary search terms.
type Advanced struct {
	Terms   []string
	Exclude []string
	Sites   []string
	Phrases []string
	Regexes []*regexp.Regexp
	Raw     string
}

// ParseAdvanced splits a raw query into terms and operators. Operators with
// empty values and regex patterns that fail to compile are dropped silently;
// a malformed operator should never abort a search.
func ParseAdvanced(input string) Advanced {
	q := Advanced{Raw: input}
	input = strings.TrimSpace(input)
	if input == "" {
		return q
	}

	for _, m := range quotedPhrase.FindAllStringSubmatch(input, -1) {
		q.Phrases = append(q.Phrases, m[1])
	}
	remaining := quotedPhrase.ReplaceAllString(input, " ")

	for _, token := range strings.Fields(remaining) {
		switch {
		case strings.HasPrefix(token, "site:"):
			if site := token[len("site:"):]; site != "" {
				q.Sites = append(q.Sites, strings.ToLower(site))
			}
		case strings.HasPrefix(token, "regex:"):
			if pattern := token[len("regex:"):]; pattern != "" {
				if re, err := regexp.Compile(pattern); err == nil {
					q.Regexes = append(q.Regexes, re)
				}
			}
		case strings.HasPrefix(token, "-"):
			if term := token[1:]; term != "" {
				q.Exclude = append(q.Exclude, strings.ToLower(term))
			}
		default:
			q.Terms = append(q.Terms, token)
		}
	}
	return q
}

// SearchTerms joins the plain terms and phrases back into the string sent to
// sites. Operators never reach the wire.
func (q Advanced) SearchTerms() string {
	terms := append([]string(nil), q.Terms...)
	terms = append(terms, q.Phrases...)
	return strings.Join(terms, " ")
}

// HasOperators reports whether any operator beyond plain terms was used.
func (q Advanced) HasOperators() bool {
	return len(q.Exclude) > 0 || len(q.Sites) > 0 || len(q.Phrases) > 0 || len(q.Regexes) > 0
}

// IsEmpty reports whether the query carries no searchable text at all.
func (q Advanced) IsEmpty() bool {
	return len(q.Terms) == 0 && len(q.Phrases) == 0
}

// SiteFilter returns the site: restrictions, or nil when unrestricted.
func (q Advanced) SiteFilter() []string {
	if len(q.Sites) == 0 {
		return nil
	}
	return append([]string(nil), q.Sites...)
}

// MatchesResult applies the operator constraints to one result.
func (q Advanced) MatchesResult(r Result) bool {
	titleLower := strings.ToLower(r.Title)
	urlLower := strings.ToLower(r.URL)

	if len(q.Sites) > 0 {
		siteLower := strings.ToLower(r.Site)
		found := false
		for _, s := range q.Sites {
			if strings.Contains(siteLower, s) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, ex := range q.Exclude {
		if strings.Contains(titleLower, ex) || strings.Contains(urlLower, ex) {
			return false
		}
	}
	for _, phrase := range q.Phrases {
		pl := strings.ToLower(phrase)
		if !strings.Contains(titleLower, pl) && !strings.Contains(urlLower, pl) {
			return false
		}
	}
	for _, re := range q.Regexes {
		if !re.MatchString(r.Title) && !re.MatchString(r.URL) {
			return false
		}
	}
	return true
}

// FilterAdvanced drops results that violate the query's operators. Queries
// without operators pass everything through untouched.
func FilterAdvanced(results []Result, q Advanced) []Result {
	if !q.HasOperators() {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if q.MatchesResult(r) {
			out = append(out, r)
		}
	}
	return out
}

// OperatorHelp describes the advanced query syntax for CLI help output.
const OperatorHelp = `Advanced query operators:
  site:name     Restrict to specific site (e.g., site:fitgirl)
  -term         Exclude results containing term (e.g., -deluxe)
  "phrase"      Require exact phrase match (e.g., "elden ring")
  regex:pattern Match using regex (e.g., regex:v[0-9]+)

Examples:
  elden ring site:fitgirl
  elden ring -deluxe -edition
  "elden ring" site:dodi
  cyberpunk regex:v[0-9]+\.[0-9]+`
