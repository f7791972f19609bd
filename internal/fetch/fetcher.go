package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/resilience"
)

// defaultMaxAttempts is how many times a single URL is tried before the last
// error is returned.
const defaultMaxAttempts = 3

// Limiter is the slice of the adaptive rate limiter the fetcher drives: a
// gate before every attempt plus outcome feedback so the per-site delay can
// adapt.
type Limiter interface {
	WaitForSite(ctx context.Context, site string) error
	RecordSuccess(site string, responseTime time.Duration)
	RecordFailure(site string) error
}

// Observer receives one callback per completed attempt. Status is zero when
// the attempt failed below the HTTP layer.
type Observer func(site string, status int, d time.Duration, err error)

// FetcherConfig wires the retry layer's collaborators. All fields are
// optional.
type FetcherConfig struct {
	// MaxAttempts bounds tries per URL. Defaults to 3.
	MaxAttempts int
	// Limiter paces attempts per site and learns from their outcomes.
	Limiter Limiter
	// Observer is invoked once per attempt, typically to record metrics.
	Observer Observer
	Log      *zap.Logger
}

// Fetcher retries page fetches under a deliberately unusual status policy.
// Scraped sites answer bot checks with redirects and auth statuses rather
// than content, so 3xx, 401, 403 and 404 all mean "nothing here" and return
// an empty body with a nil error. Only transient classes retry: 429 with a
// 1s exponential backoff, 5xx with 500ms exponential, transport errors with
// 200ms exponential, anything else with a flat 500ms.
type Fetcher struct {
	client      *Client
	limiter     Limiter
	observe     Observer
	log         *zap.Logger
	maxAttempts int

	// sleep is swapped out in tests so backoff schedules can be asserted
	// without waiting them out.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher builds a Fetcher around an HTTP client.
func NewFetcher(client *Client, cfg FetcherConfig) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Fetcher{
		client:      client,
		limiter:     cfg.Limiter,
		observe:     cfg.Observer,
		log:         cfg.Log,
		maxAttempts: cfg.MaxAttempts,
		sleep:       sleepContext,
	}
}

// Fetch retrieves pageURL on behalf of site.
func (f *Fetcher) Fetch(ctx context.Context, site, pageURL string) (string, error) {
	return f.fetch(ctx, site, pageURL, nil)
}

// FetchWithHeaders retrieves pageURL with extra request headers, typically a
// session cookie or referer a site demands.
func (f *Fetcher) FetchWithHeaders(ctx context.Context, site, pageURL string, headers map[string]string) (string, error) {
	return f.fetch(ctx, site, pageURL, headers)
}

func (f *Fetcher) fetch(ctx context.Context, site, pageURL string, headers map[string]string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.WaitForSite(ctx, site); err != nil {
				return "", fmt.Errorf("rate limit for %s: %w", site, err)
			}
		}

		page, err := f.client.Get(ctx, pageURL, headers)
		if f.observe != nil {
			f.observe(site, page.StatusCode, page.Duration, err)
		}

		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			lastErr = err
			f.log.Debug("fetch attempt failed",
				zap.String("site", site),
				zap.String("url", pageURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if serr := f.backoff(ctx, site, attempt, 200*time.Millisecond<<uint(attempt)); serr != nil {
				return "", serr
			}
			continue
		}

		status := page.StatusCode
		switch {
		case status == 200:
			if f.limiter != nil {
				f.limiter.RecordSuccess(site, page.Duration)
			}
			return string(page.Body), nil

		case status == 429:
			if f.limiter != nil {
				if rerr := f.limiter.RecordFailure(site); rerr != nil {
					return "", fmt.Errorf("site %s: %w", site, rerr)
				}
			}
			lastErr = &resilience.HTTPError{StatusCode: status, URL: pageURL}
			f.log.Debug("rate limited",
				zap.String("site", site),
				zap.Int("attempt", attempt+1))
			if serr := f.backoff(ctx, site, attempt, 1000*time.Millisecond<<uint(attempt)); serr != nil {
				return "", serr
			}

		case status == 401 || status == 403:
			// Auth walls are an expected answer, not a failure.
			f.log.Debug("access denied",
				zap.String("site", site),
				zap.Int("status", status))
			return "", nil

		case status == 404:
			return "", nil

		case status >= 300 && status < 400:
			// Unfollowed challenge redirect. Following it would only
			// land on the bot check, so report "nothing here".
			f.log.Debug("redirect challenge",
				zap.String("site", site),
				zap.Int("status", status))
			return "", nil

		case status >= 500:
			lastErr = &resilience.HTTPError{StatusCode: status, URL: pageURL}
			if serr := f.backoff(ctx, site, attempt, 500*time.Millisecond<<uint(attempt)); serr != nil {
				return "", serr
			}

		default:
			lastErr = &resilience.HTTPError{StatusCode: status, URL: pageURL}
			if serr := f.backoff(ctx, site, attempt, 500*time.Millisecond); serr != nil {
				return "", serr
			}
		}
	}

	return "", fmt.Errorf("fetching %s after %d attempts: %w", pageURL, f.maxAttempts, lastErr)
}

// backoff sleeps the per-status delay, plus extra pacing when no limiter is
// spacing requests for us.
func (f *Fetcher) backoff(ctx context.Context, site string, attempt int, d time.Duration) error {
	if err := f.sleep(ctx, d); err != nil {
		return err
	}
	if f.limiter == nil {
		return f.sleep(ctx, 300*time.Millisecond<<uint(attempt))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
