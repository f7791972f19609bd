// Package render fetches pages through a headless browser for sites whose
// result lists only exist after JavaScript runs.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pelinal/gamesearch/internal/search"
	"github.com/pelinal/gamesearch/internal/sites"
)

// ErrDisabled is returned by the Noop renderer so callers can tell a
// disabled feature apart from a failed render.
var ErrDisabled = errors.New("headless rendering disabled")

// Config controls the headless browser pool.
type Config struct {
	// MaxParallel bounds concurrent browser sessions. Values below one
	// collapse to one; rendered sites are heavyweight.
	MaxParallel int
	// UserAgent overrides the browser's own User-Agent when set.
	UserAgent string
	// NavigationTimeout bounds one full navigate-and-extract cycle.
	NavigationTimeout time.Duration
	// NavigationsPerSecond caps how fast new page loads may start across
	// all sessions. Zero leaves the rate uncapped.
	NavigationsPerSecond float64
	// Cookie is forwarded on every navigation when set, for sites whose
	// search is gated behind a logged-in session.
	Cookie string
}

// Browser renders search pages with headless Chrome via chromedp. Sessions
// share one exec allocator; a channel semaphore bounds parallelism and a
// rate limiter paces navigations so a burst of rendered sites does not start
// a burst of page loads.
type Browser struct {
	cfg         Config
	log         *zap.Logger
	limiter     chan struct{}
	nav         *rate.Limiter
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewBrowser creates the renderer. The browser process starts lazily on the
// first render, so construction is cheap even when no site needs JS.
func NewBrowser(cfg Config, log *zap.Logger) *Browser {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	var nav *rate.Limiter
	if cfg.NavigationsPerSecond > 0 {
		nav = rate.NewLimiter(rate.Limit(cfg.NavigationsPerSecond), 1)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		log:         log.Named("render"),
		limiter:     make(chan struct{}, cfg.MaxParallel),
		nav:         nav,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close shuts the browser allocator down.
func (b *Browser) Close() {
	b.allocCancel()
}

// RenderSearch navigates to the site's search URL for the query and returns
// the rendered DOM once the body is ready.
func (b *Browser) RenderSearch(ctx context.Context, site sites.Site, query string) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.release()

	if b.nav != nil {
		if err := b.nav.Wait(ctx); err != nil {
			return "", fmt.Errorf("navigation rate wait: %w", err)
		}
	}

	pageURL := search.BuildURL(site, query)

	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavigationTimeout)
	defer cancel()

	start := time.Now()
	html, err := b.run(taskCtx, pageURL)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	b.log.Debug("page rendered",
		zap.String("site", site.Name),
		zap.String("url", pageURL),
		zap.Int("bytes", len(html)),
		zap.Duration("took", time.Since(start)))
	return html, nil
}

func (b *Browser) run(ctx context.Context, pageURL string) (string, error) {
	var html string
	actions := []chromedp.Action{
		b.sessionSetup(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Let late scripts fill the result list in.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (b *Browser) sessionSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if b.cfg.Cookie != "" {
			headers := network.Headers{"Cookie": b.cfg.Cookie}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set cookie header: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	select {
	case <-b.limiter:
	default:
	}
}

// Noop satisfies the renderer seam when rendering is disabled or no site
// needs it.
type Noop struct{}

// RenderSearch always fails with ErrDisabled.
func (Noop) RenderSearch(context.Context, sites.Site, string) (string, error) {
	return "", ErrDisabled
}
