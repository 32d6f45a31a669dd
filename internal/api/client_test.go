package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", nil)
	c.baseDelay = time.Millisecond
	return c
}

func TestGet_Success(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"slug":"intro"}]`))
	})

	resp, err := c.Get(context.Background(), "api/lessons", url.Values{"course": {"html"}})
	require.NoError(t, err)

	var items []map[string]string
	require.NoError(t, resp.UnmarshalData(&items))
	assert.Equal(t, "intro", items[0]["slug"])
	assert.Equal(t, "/api/lessons", gotPath)
	assert.Equal(t, "course=html", gotQuery)
	assert.Contains(t, gotUA, "lmscache/")
}

func TestGet_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		code   string
	}{
		{http.StatusUnauthorized, "", output.CodeAuth},
		{http.StatusForbidden, "", output.CodeForbidden},
		{http.StatusNotFound, "", output.CodeNotFound},
		{http.StatusBadRequest, `{"error":"bad course"}`, output.CodeAPI},
		{http.StatusInternalServerError, "", output.CodeAPI},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Get(context.Background(), "/api/lessons", nil)
			require.Error(t, err)
			e := output.AsError(err)
			assert.Equal(t, tt.code, e.Code)
			if tt.body != "" {
				assert.Equal(t, "bad course", e.Message)
			}
		})
	}
}

func TestGet_RetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.Get(context.Background(), "/api/modules", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Get(context.Background(), "/api/modules", nil)
	require.Error(t, err)
	assert.Equal(t, output.CodeRateLimit, output.AsError(err).Code)
	assert.Equal(t, "Try again in 7 seconds", output.AsError(err).Hint)
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestGet_NetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	c.maxRetries = 1

	_, err := c.Get(context.Background(), "/api/lessons", nil)
	require.Error(t, err)
	assert.Equal(t, output.CodeNetwork, output.AsError(err).Code)
}

func TestGet_NoBaseURL(t *testing.T) {
	_, err := NewClient("", nil).Get(context.Background(), "/api/lessons", nil)
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 0, parseRetryAfter(""))
	assert.Equal(t, 12, parseRetryAfter("12"))
	assert.Equal(t, 0, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestGet_BreakerOpensAfterGatewayFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c.maxRetries = 1
	c.SetBreaker(resilience.NewBreaker(resilience.NewStore(t.TempDir()),
		resilience.BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour}))

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), "/api/modules", nil)
		require.Error(t, err)
	}
	require.Equal(t, int32(2), calls.Load())

	_, err := c.Get(context.Background(), "/api/modules", nil)
	require.Error(t, err)
	assert.Equal(t, "CMS temporarily unavailable", output.AsError(err).Message)
	assert.Equal(t, int32(2), calls.Load(), "open circuit fails fast")
}

func TestGet_BreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	breaker := resilience.NewBreaker(resilience.NewStore(t.TempDir()), resilience.BreakerConfig{FailureThreshold: 1})
	c.SetBreaker(breaker)

	_, err := c.Get(context.Background(), "/api/modules", nil)
	require.Error(t, err)

	state, err := breaker.State()
	require.NoError(t, err)
	assert.Equal(t, resilience.CircuitClosed, state)
}

func TestGet_RetryAfterBlocksLaterRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c.maxRetries = 1
	c.SetBreaker(resilience.NewBreaker(resilience.NewStore(t.TempDir()), resilience.BreakerConfig{}))

	_, err := c.Get(context.Background(), "/api/modules", nil)
	require.Error(t, err)
	assert.Equal(t, output.CodeRateLimit, output.AsError(err).Code)

	_, err = c.Get(context.Background(), "/api/modules", nil)
	require.Error(t, err)
	assert.Equal(t, output.CodeNetwork, output.AsError(err).Code)
	assert.Equal(t, int32(1), calls.Load())
}
