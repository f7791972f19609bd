package sites

// Builtin returns the stock site list. Config files may replace it wholesale
// but most installs run with these. Order matters only for display.
func Builtin() []Site {
	return []Site{
		{
			Name:           "steamgg",
			BaseURL:        "https://steamgg.net/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, h3.entry-title a, .post-title a",
		},
		{
			Name:           "gog-games",
			BaseURL:        "https://gog-games.to/",
			Kind:           KindQueryParam,
			QueryParam:     "search",
			ResultSelector: "a.card, .games-list a, article a",
			AltEndpoints: &AltEndpointSpec{
				URLs: []string{
					"https://gog-games.to/search?search={query}&page=1&den_filter=none",
					"https://gog-games.to/search?page=1&search={query}",
					"https://gog-games.to/?search={query}",
				},
				Referer:  "https://gog-games.to/?search={query}",
				SlugURL:  "https://gog-games.to/game/{slug}",
				LinkBase: "https://gog-games.to",
			},
			Filter: Filter{PathPrefixes: []string{"/game/", "/games/"}},
		},
		{
			Name:           "atopgames",
			BaseURL:        "https://atopgames.com/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, h3.entry-title a, .post-box-title a",
		},
		{
			Name:           "elamigos",
			BaseURL:        "https://elamigos.site/",
			Kind:           KindFrontPage,
			ResultSelector: "h3, h5",
			Extractor:      ExtractorHeadings,
			TitleStrip:     []string{`DOWNLOAD`},
		},
		{
			Name:           "fitgirl",
			BaseURL:        "https://fitgirl-repacks.site/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, h1.post-title a, .post-title a",
			RequiresSolver: true,
			Drop: &DropSpec{
				URLContains: []string{
					"/page/", "#respond", "?s=",
					"/tag/", "/category/", "/categories/",
					"/inquiry", "/inquery",
				},
				TitleContains:  []string{"comments"},
				TitlePrefixes:  []string{"continue reading"},
				AllDigitTitles: true,
				DateTitles:     true,
			},
		},
		{
			Name:           "dodi",
			BaseURL:        "https://dodi-repacks.download/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, .entry-title a",
			RequiresSolver: true,
		},
		{
			Name:           "skidrowrepacks",
			BaseURL:        "https://skidrowrepacks.com/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, h1.entry-title a, .entry-title a, .entry-title > a, article h2 a",
		},
		{
			Name:           "steamrip",
			BaseURL:        "https://steamrip.com/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, h3.entry-title a, .post-title a, article h2 a",
			Drop: &DropSpec{
				URLContains:    []string{"/page/", "?s="},
				TitleEquals:    []string{"next", "previous"},
				TitlePrefixes:  []string{"next", "prev"},
				AllDigitTitles: true,
			},
		},
		{
			Name:           "reloadedsteam",
			BaseURL:        "https://reloadedsteam.com/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2.entry-title a, .post-title a, article h2 a",
		},
		{
			Name:           "ankergames",
			BaseURL:        "https://ankergames.net/search/",
			Kind:           KindPathEncoded,
			ListingURL:     "https://ankergames.net/games-list",
			ResultSelector: "div a[href^='/game/'], a.game-card, h2 a, h3 a",
			TitleStrip:     []string{`\s+\S+\s+GB$`},
		},
		{
			Name:           "csrin",
			BaseURL:        "https://cs.rin.ru/forum/",
			Kind:           KindPhpBBSearch,
			QueryParam:     "keywords",
			ListingURL:     "https://cs.rin.ru/forum/viewforum.php?f=10",
			ResultSelector: "a.topictitle, a[href^='viewtopic.php']",
			RequiresJS:     true,
			TitleStrip:     []string{`Main Forum •`, `^\s*Re:\s?`},
			Feed: &FeedSpec{
				Path:            "feed.php?f=10",
				LinkMustContain: "viewtopic.php",
			},
			Filter: Filter{LinkMustContain: "viewtopic.php", TitleMustMatch: true},
		},
		{
			Name:           "nswpedia",
			BaseURL:        "https://nswpedia.com/",
			Kind:           KindQueryParam,
			QueryParam:     "s",
			ResultSelector: "h2 a, article a, .post-title a",
			Extractor:      ExtractorCards,
			Drop: &DropSpec{
				URLContains: []string{
					"/page/", "/category/", "/tag/", "/badge/",
					"/tutorials/", "/about", "/contact", "/privacy",
				},
				TitleEquals: []string{
					"switch roms", "exclusives", "tutorials", "more", "home",
				},
			},
		},
		{
			Name:           "f95zone",
			BaseURL:        "https://f95zone.to/",
			Kind:           KindListingPage,
			ListingURL:     "https://f95zone.to/forums/games.2/",
			ResultSelector: "a[href*='/threads/']",
			Extractor:      ExtractorThreads,
		},
	}
}

// BuiltinRegistry builds the stock registry with standard defaults applied.
func BuiltinRegistry() (*Registry, error) {
	return NewRegistry(Builtin(), StandardDefaults())
}
