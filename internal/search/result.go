// Package search holds the core search pipeline: query normalization and URL
// building, the per-site task with its fallback strategy chain, the bounded
// fan-out orchestrator, and result merging.
package search

import "sort"

// Result is one extracted search hit. Two results are the same hit when
// their (site, url) pair matches; the title is display data.
type Result struct {
	Site  string `json:"site"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Merge combines per-site result lists into the final ordered set: sorted by
// (site, title) ascending, deduplicated by exact (site, url) keeping the
// first occurrence after sort. A positive max truncates the merged list.
func Merge(results []Result, max int) []Result {
	merged := append([]Result(nil), results...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Site != merged[j].Site {
			return merged[i].Site < merged[j].Site
		}
		return merged[i].Title < merged[j].Title
	})

	type key struct{ site, url string }
	seen := make(map[key]bool, len(merged))
	out := merged[:0]
	for _, r := range merged {
		k := key{r.Site, r.URL}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
