package contentapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL+"/", "tok-123", WithHTTPClient(&http.Client{Timeout: 2 * time.Second}), WithRateLimit(0, 0))
	require.NoError(t, err)
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := New(" ", "tok")
	require.ErrorContains(t, err, "base URL")

	_, err = New("https://example.test", "")
	require.ErrorContains(t, err, "token")
}

func TestGet_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/location/search", r.URL.Path)
		require.Equal(t, "Paris", r.URL.Query().Get("searchQuery"))
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"location_id":"187147","name":"Paris"}]}`))
	}))
	defer srv.Close()

	var out struct {
		Data []struct {
			LocationID string `json:"location_id"`
			Name       string `json:"name"`
		} `json:"data"`
	}
	err := newTestClient(t, srv).Get(context.Background(), "/location/search", url.Values{"searchQuery": {"Paris"}}, &out)
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	require.Equal(t, "187147", out.Data[0].LocationID)
}

func TestGet_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad key"}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(t, srv).Get(context.Background(), "/movie/1", nil, &out)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.HTTPStatusCode())
	require.Contains(t, statusErr.Body, "bad key")
}

func TestGet_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(t, srv).Get(context.Background(), "/movie/1", nil, &out)
	require.ErrorIs(t, err, ErrDecode)
}

func TestGet_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var out map[string]any
	err := newTestClient(t, srv).Get(ctx, "/slow", nil, &out)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_RateLimiterHonoursContext(t *testing.T) {
	c, err := New("https://example.test", "tok", WithRateLimit(1, 1))
	require.NoError(t, err)
	// Drain the single burst token.
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	var out map[string]any
	err = c.Get(ctx, "/x", nil, &out)
	require.ErrorContains(t, err, "rate limiter wait")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_RateLimiterCancelIsNotTimeout(t *testing.T) {
	c, err := New("https://example.test", "tok", WithRateLimit(1, 1))
	require.NoError(t, err)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]any
	err = c.Get(ctx, "/x", nil, &out)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
}
