// Package fetch retrieves raw page bodies over HTTP with the status and
// retry policy the search pipeline depends on. Redirects are never followed
// and non-2xx statuses surface as pages, not transport errors, so the retry
// layer can apply its own per-status handling.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/pelinal/gamesearch/internal/antidetect"
)

// DefaultUserAgent identifies the tool when header rotation is off. The
// browser prefix keeps naive filters quiet; the suffix keeps us honest.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36 gamesearch/0.1"

const defaultTimeout = 15 * time.Second

// ClientConfig controls collector behavior.
type ClientConfig struct {
	// UserAgent overrides DefaultUserAgent when the rotator is absent.
	UserAgent string
	// Timeout bounds a single request end to end. Defaults to 15s.
	Timeout time.Duration
	// Proxy routes all requests through the given URL (http, https or
	// socks5). Empty means direct, honoring the standard proxy env vars.
	Proxy string
	// Rotator, when set, supplies rotating user agents and browser-like
	// headers per request.
	Rotator *antidetect.Rotator
}

// Page is one completed HTTP exchange.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Client executes single GET requests through a Colly collector tuned for
// hostile hosts. Sites in this domain answer challenges with 3xx, 403 and
// 429 instead of content, so the collector parses error responses and hands
// back redirect responses unfollowed.
type Client struct {
	cfg           ClientConfig
	baseCollector *colly.Collector
}

// NewClient builds a Client. The base collector is cloned per request;
// retries of the same URL rely on AllowURLRevisit since clones share the
// visit store.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(colly.Async(false))
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		// Challenge pages hide behind redirects; return the 3xx itself.
		return http.ErrUseLastResponse
	})

	transport := newHTTPTransport()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy URL %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	c.WithTransport(transport)

	return &Client{cfg: cfg, baseCollector: c}, nil
}

// Get fetches a single URL. Extra headers override rotator-supplied ones.
// The returned error covers transport failures only; inspect Page.StatusCode
// for HTTP-level outcomes.
func (c *Client) Get(ctx context.Context, pageURL string, headers map[string]string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)
	start := time.Now()
	collector := c.buildCollector(headers, start, &page, &fetchErr)

	if err := c.runCollector(ctx, collector, pageURL); err != nil {
		return Page{}, err
	}
	if fetchErr != nil {
		return Page{}, fmt.Errorf("request failed: %w", fetchErr)
	}
	return page, nil
}

func (c *Client) buildCollector(headers map[string]string, start time.Time, page *Page, fetchErr *error) *colly.Collector {
	collector := c.baseCollector.Clone()
	collector.UserAgent = c.userAgent()

	collector.OnRequest(func(r *colly.Request) {
		if c.cfg.Rotator != nil {
			for key, value := range c.cfg.Rotator.Headers() {
				r.Headers.Set(key, value)
			}
		}
		for key, value := range headers {
			r.Headers.Set(key, value)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})

	return collector
}

func (c *Client) userAgent() string {
	if c.cfg.Rotator != nil {
		if ua := c.cfg.Rotator.UserAgent(); ua != "" {
			return ua
		}
	}
	if c.cfg.UserAgent != "" {
		return c.cfg.UserAgent
	}
	return DefaultUserAgent
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, pageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

// newHTTPTransport pools conservatively: scraped hosts throttle aggressive
// connection reuse, so idle connections stay small and short-lived.
func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
	}
}
