package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAdvancedSimple(t *testing.T) {
	t.Parallel()

	q := ParseAdvanced("elden ring")
	require.Equal(t, []string{"elden", "ring"}, q.Terms)
	require.Empty(t, q.Exclude)
	require.Empty(t, q.Sites)
	require.Empty(t, q.Phrases)
	require.False(t, q.HasOperators())
	require.False(t, q.IsEmpty())
}

func TestParseAdvancedOperators(t *testing.T) {
	t.Parallel()

	q := ParseAdvanced(`"elden ring" site:fitgirl site:dodi -deluxe regex:v[0-9]+`)
	require.Equal(t, []string{"elden ring"}, q.Phrases)
	require.Equal(t, []string{"fitgirl", "dodi"}, q.Sites)
	require.Equal(t, []string{"deluxe"}, q.Exclude)
	require.Len(t, q.Regexes, 1)
	require.True(t, q.Regexes[0].MatchString("v123"))
	require.True(t, q.HasOperators())
}

func TestParseAdvancedMultiplePhrases(t *testing.T) {
	t.Parallel()

	q := ParseAdvanced(`"elden ring" "shadow of the erdtree"`)
	require.Equal(t, []string{"elden ring", "shadow of the erdtree"}, q.Phrases)
}

func TestParseAdvancedLowercasesOperators(t *testing.T) {
	t.Parallel()

	q := ParseAdvanced("game site:FitGirl -DELUXE")
	require.Equal(t, []string{"fitgirl"}, q.Sites)
	require.Equal(t, []string{"deluxe"}, q.Exclude)
}

func TestParseAdvancedDropsMalformedTokens(t *testing.T) {
	t.Parallel()

	q := ParseAdvanced("game regex:[invalid( site: - x")
	require.Empty(t, q.Regexes)
	require.Empty(t, q.Sites)
	require.Empty(t, q.Exclude)
	require.Equal(t, []string{"game", "x"}, q.Terms)
}

func TestParseAdvancedEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, ParseAdvanced("").IsEmpty())
	require.True(t, ParseAdvanced("   \t\n  ").IsEmpty())
	require.False(t, ParseAdvanced(`"elden ring"`).IsEmpty())
}

func TestSearchTerms(t *testing.T) {
	t.Parallel()

	require.Equal(t, "elden ring", ParseAdvanced("elden ring site:fitgirl -deluxe").SearchTerms())

	withPhrase := ParseAdvanced(`"elden ring" dlc`).SearchTerms()
	require.Contains(t, withPhrase, "dlc")
	require.Contains(t, withPhrase, "elden ring")
}

func TestSiteFilter(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseAdvanced("elden ring").SiteFilter())
	require.Equal(t, []string{"fitgirl", "dodi"},
		ParseAdvanced("x site:fitgirl site:dodi").SiteFilter())
}

func TestMatchesResult(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		query  string
		result Result
		want   bool
	}{
		{
			name:   "site restriction match",
			query:  "elden ring site:fitgirl",
			result: Result{Site: "fitgirl", Title: "Elden Ring", URL: "https://f.com"},
			want:   true,
		},
		{
			name:   "site restriction mismatch",
			query:  "elden ring site:fitgirl",
			result: Result{Site: "dodi", Title: "Elden Ring", URL: "https://d.com"},
			want:   false,
		},
		{
			name:   "site restriction case insensitive",
			query:  "game site:FitGirl",
			result: Result{Site: "FITGIRL", Title: "Game", URL: "https://f.com"},
			want:   true,
		},
		{
			name:   "exclusion hits title",
			query:  "elden ring -deluxe",
			result: Result{Site: "fitgirl", Title: "Elden Ring Deluxe Edition", URL: "https://f.com"},
			want:   false,
		},
		{
			name:   "exclusion hits url",
			query:  "game -deluxe",
			result: Result{Site: "fitgirl", Title: "Game", URL: "https://f.com/deluxe-edition"},
			want:   false,
		},
		{
			name:   "phrase required",
			query:  `"elden ring"`,
			result: Result{Site: "fitgirl", Title: "Elden's Ring", URL: "https://f.com"},
			want:   false,
		},
		{
			name:   "phrase present",
			query:  `"elden ring"`,
			result: Result{Site: "fitgirl", Title: "Elden Ring - Full Game", URL: "https://f.com"},
			want:   true,
		},
		{
			name:   "regex required",
			query:  `game regex:v[0-9]+\.[0-9]+`,
			result: Result{Site: "fitgirl", Title: "Game", URL: "https://f.com"},
			want:   false,
		},
		{
			name:   "regex present",
			query:  `game regex:v[0-9]+\.[0-9]+`,
			result: Result{Site: "fitgirl", Title: "Game v1.5", URL: "https://f.com"},
			want:   true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := ParseAdvanced(tc.query)
			require.Equal(t, tc.want, q.MatchesResult(tc.result))
		})
	}
}

func TestFilterAdvanced(t *testing.T) {
	t.Parallel()

	q := ParseAdvanced("elden ring site:fitgirl -deluxe")
	results := []Result{
		{Site: "fitgirl", Title: "Elden Ring", URL: "https://f.com/1"},
		{Site: "dodi", Title: "Elden Ring", URL: "https://d.com/1"},
		{Site: "fitgirl", Title: "Elden Ring Deluxe", URL: "https://f.com/2"},
	}
	filtered := FilterAdvanced(results, q)
	require.Len(t, filtered, 1)
	require.Equal(t, "https://f.com/1", filtered[0].URL)

	plain := ParseAdvanced("elden ring")
	untouched := FilterAdvanced([]Result{{Site: "x", Title: "unrelated", URL: "u"}}, plain)
	require.Len(t, untouched, 1)
}
