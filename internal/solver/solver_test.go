package solver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pelinal/gamesearch/internal/resilience"
)

func TestSolveReturnsRenderedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req solveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "request.get", req.Cmd)
		require.Equal(t, "https://fitgirl-repacks.site/?s=elden+ring", req.URL)
		require.Equal(t, 20000, req.MaxTimeout)
		require.Empty(t, req.Headers)

		_, _ = w.Write([]byte(`{"solution":{"response":"<html>solved</html>"},"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	body, err := c.Solve(context.Background(), "https://fitgirl-repacks.site/?s=elden+ring", nil)
	require.NoError(t, err)
	require.Equal(t, "<html>solved</html>", body)
}

func TestSolveForwardsHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req solveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sid=abc", req.Headers["Cookie"])

		_, _ = w.Write([]byte(`{"solution":{"response":"ok"},"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	body, err := c.Solve(context.Background(), "https://example.com/", map[string]string{"Cookie": "sid=abc"})
	require.NoError(t, err)
	require.Equal(t, "ok", body)
}

func TestSolveServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Solve(context.Background(), "https://example.com/", nil)
	require.Error(t, err)
	require.Equal(t, resilience.CategoryServerError, resilience.Classify(err))
}

func TestSolveMalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("challenge failed"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Solve(context.Background(), "https://example.com/", nil)
	require.Error(t, err)
}

func TestSolveNonOKStatusStillReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"solution":{"response":"partial"},"status":"error","message":"challenge loop"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	body, err := c.Solve(context.Background(), "https://example.com/", nil)
	require.NoError(t, err)
	require.Equal(t, "partial", body)
}

func TestSolveContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"solution":{"response":"x"},"status":"ok"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, nil)
	_, err := c.Solve(ctx, "https://example.com/", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewDefaultEndpoint(t *testing.T) {
	t.Parallel()

	c := New("", nil)
	require.Equal(t, DefaultURL, c.Endpoint())
}
