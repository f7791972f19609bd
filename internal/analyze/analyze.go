// Package analyze extracts release metadata from result titles and detects
// cross-site duplicates by title similarity.
package analyze

import (
	"regexp"
	"strings"

	"github.com/pelinal/gamesearch/internal/search"
)

// DefaultThreshold is the similarity at or above which two cross-site titles
// count as the same release.
const DefaultThreshold = 0.85

// Metadata holds release details recovered from a result title.
type Metadata struct {
	FileSize    string `json:"file_size,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Version     string `json:"version,omitempty"`
	Build       string `json:"build,omitempty"`
}

// HasData reports whether any field was extracted.
func (m Metadata) HasData() bool {
	return m.FileSize != "" || m.ReleaseDate != "" || m.Version != "" || m.Build != ""
}

var (
	sizePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[\[(]?\s*(\d+(?:\.\d+)?\s*(?:GB|MB|TB|GiB|MiB|TiB))\s*[\])]?`),
		regexp.MustCompile(`(?i)[|(](\d+(?:\.\d+)?\s*(?:GB|MB|TB))[)\]]?`),
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)v(\d+\.\d+(?:\.\d+)*)`),
		regexp.MustCompile(`(?i)version\s+(\d+\.\d+(?:\.\d+)*)`),
		regexp.MustCompile(`\[(\d+\.\d+\.\d+(?:\.\d+)?)\]`),
	}
	buildPattern = regexp.MustCompile(`(?i)(?:build\s*|b)(\d{4,})`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4}[-/]\d{2}[-/]\d{2})`),
		regexp.MustCompile(`(\d{2}[-/]\d{2}[-/]\d{4})`),
		regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})`),
	}
)

// ExtractMetadata pulls file size, version, build number and release date out
// of a title. Sizes come back upper-cased with whitespace removed ("45.2GB"),
// versions with a "v" prefix. First matching pattern wins per field.
func ExtractMetadata(title string) Metadata {
	var meta Metadata
	for _, re := range sizePatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			meta.FileSize = strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))
			break
		}
	}
	for _, re := range versionPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			meta.Version = "v" + m[1]
			break
		}
	}
	if m := buildPattern.FindStringSubmatch(title); m != nil {
		meta.Build = m[1]
	}
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			meta.ReleaseDate = m[1]
			break
		}
	}
	return meta
}

// Noise stripped before comparing titles: bracketed size/version/build
// markers, bare version tags, release-group words, and separator runs.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[\[(][^\])]*(?:gb|mb|tb|gib|mib|tib)[\])]`),
	regexp.MustCompile(`(?i)\s*[\[(]v?\d+(?:\.\d+)+[\])]`),
	regexp.MustCompile(`(?i)\s*v\d+(?:\.\d+)+`),
	regexp.MustCompile(`(?i)\s*[\[(]build\s*\d+[\])]`),
	regexp.MustCompile(`(?i)repack|rip|proper|update|fix`),
	regexp.MustCompile(`[-_]+`),
}

func normalizeTitle(title string) string {
	s := strings.ToLower(title)
	for _, re := range noisePatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores two titles in [0, 1] using Levenshtein distance over the
// normalized forms. Two empty titles are identical; one empty title matches
// nothing.
func Similarity(a, b string) float64 {
	return similarity([]rune(normalizeTitle(a)), []rune(normalizeTitle(b)))
}

func similarity(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dist := levenshtein(a, b)
	return 1 - float64(dist)/float64(max(len(a), len(b)))
}

// levenshtein computes edit distance with two rolling rows.
func levenshtein(a, b []rune) int {
	m, n := len(a), len(b)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}
	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[n]
}

// FindDuplicates returns index pairs (i, j), i < j, whose titles score at or
// above threshold. Pairs from the same site are never reported; a site
// listing two near-identical titles usually means two real releases.
func FindDuplicates(results []search.Result, threshold float64) [][2]int {
	threshold = clamp01(threshold)
	norm := make([][]rune, len(results))
	for i, r := range results {
		norm[i] = []rune(normalizeTitle(r.Title))
	}
	var dups [][2]int
	for i := range results {
		for j := i + 1; j < len(results); j++ {
			if results[i].Site == results[j].Site {
				continue
			}
			if similarity(norm[i], norm[j]) >= threshold {
				dups = append(dups, [2]int{i, j})
			}
		}
	}
	return dups
}

// Deduplicate drops the later result of every duplicate pair, keeping first
// occurrences in their original order.
func Deduplicate(results []search.Result, threshold float64) []search.Result {
	if len(results) == 0 {
		return results
	}
	drop := make([]bool, len(results))
	for _, pair := range FindDuplicates(results, threshold) {
		drop[pair[1]] = true
	}
	out := make([]search.Result, 0, len(results))
	for i, r := range results {
		if !drop[i] {
			out = append(out, r)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
