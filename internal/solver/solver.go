// Package solver talks to a FlareSolverr-compatible solving proxy: a
// sidecar service that drives a real browser through bot-defense challenges
// and hands back the rendered HTML.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pelinal/gamesearch/internal/resilience"
)

// DefaultURL is where a local FlareSolverr instance listens.
const DefaultURL = "http://localhost:8191/v1"

// maxSolveMS is the render budget forwarded to the service. The HTTP client
// timeout below must stay above it or slow challenges get cut off mid-solve.
const maxSolveMS = 20000

const clientTimeout = 25 * time.Second

type solveRequest struct {
	Cmd        string            `json:"cmd"`
	URL        string            `json:"url"`
	MaxTimeout int               `json:"maxTimeout"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type solveResponse struct {
	Solution struct {
		Response string `json:"response"`
	} `json:"solution"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client submits URLs to the solving service. It carries no retry loop of
// its own: the site task treats a solver failure like any other failed
// transport and falls through to the next strategy.
type Client struct {
	endpoint string
	httpc    *http.Client
	log      *zap.Logger
}

// New builds a Client against endpoint, defaulting to DefaultURL.
func New(endpoint string, log *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: clientTimeout},
		log:      log.Named("solver"),
	}
}

// Endpoint reports the configured service URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Solve asks the service to fetch pageURL through its browser, forwarding
// extra request headers (typically cookies) when given. Returns the rendered
// page body.
func (c *Client) Solve(ctx context.Context, pageURL string, headers map[string]string) (string, error) {
	payload, err := json.Marshal(solveRequest{
		Cmd:        "request.get",
		URL:        pageURL,
		MaxTimeout: maxSolveMS,
		Headers:    headers,
	})
	if err != nil {
		return "", fmt.Errorf("encode solve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build solve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("send solve request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("solver: %w", &resilience.HTTPError{
			StatusCode: resp.StatusCode,
			URL:        c.endpoint,
		})
	}

	var decoded solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode solve response: %w", err)
	}
	if decoded.Status != "" && decoded.Status != "ok" {
		// The service reported a soft failure but still answered 2xx;
		// pass whatever body it produced up the chain.
		c.log.Debug("solver status not ok",
			zap.String("status", decoded.Status),
			zap.String("message", decoded.Message))
	}
	return decoded.Solution.Response, nil
}
