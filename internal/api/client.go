// Package api provides an HTTP client for the LMS content API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/resilience"
	"github.com/learnhub/lmscache/internal/version"
)

const (
	maxRetries = 3
	baseDelay  = 500 * time.Millisecond
	maxJitter  = 100 * time.Millisecond
)

// Client is an HTTP client for the CMS.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	breaker    *resilience.Breaker

	maxRetries int
	baseDelay  time.Duration
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// NewClient creates a client for the CMS at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// SetBreaker routes every request through b. A nil breaker disables it.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// BaseURL returns the CMS root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request, retrying retryable failures with backoff.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if c.baseURL == "" {
		return nil, output.ErrUsageHint("No CMS URL configured",
			"Set cms_url in .lmscache/config.json or LMSCACHE_CMS_URL")
	}
	if ok, wait := c.breaker.Allow(); !ok {
		return nil, output.ErrUnavailable("CMS", wait)
	}

	resp, err := c.getWithRetry(ctx, c.buildURL(path, query))
	c.recordOutcome(err)
	return resp, err
}

func (c *Client) getWithRetry(ctx context.Context, target string) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.singleRequest(ctx, target, attempt)
		if err == nil {
			return resp, nil
		}

		var apiErr *output.Error
		if !errors.As(err, &apiErr) || !apiErr.Retryable {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		delay := c.backoffDelay(attempt)
		c.logger.Debug("retrying CMS request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) singleRequest(ctx context.Context, target string, attempt int) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("CMS request", "url", target, "attempt", attempt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("CMS response", "url", target, "status", resp.StatusCode)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, output.ErrNetwork(fmt.Errorf("reading response: %w", err))
		}
		return &Response{Data: body, StatusCode: resp.StatusCode, Headers: resp.Header}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if err := c.breaker.BlockFor(time.Duration(retryAfter) * time.Second); err != nil {
			c.logger.Debug("recording Retry-After", "error", err)
		}
		return nil, output.ErrRateLimit(retryAfter)

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, output.ErrAuth("CMS rejected the request")

	case resp.StatusCode == http.StatusForbidden:
		return nil, output.ErrForbidden("Access denied")

	case resp.StatusCode == http.StatusNotFound:
		return nil, output.ErrNotFound("Resource", target)

	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, &output.Error{
			Code:       output.CodeAPI,
			Message:    fmt.Sprintf("Gateway error (%d)", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
		}

	default:
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error   any    `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			msg := apiErr.Message
			if s, ok := apiErr.Error.(string); ok && s != "" {
				msg = s
			}
			if msg != "" {
				return nil, output.ErrAPI(resp.StatusCode, msg)
			}
		}
		return nil, output.ErrAPI(resp.StatusCode, fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode))
	}
}

// recordOutcome feeds the breaker. Only transport failures and gateway
// errors count against the CMS; 4xx answers mean it is up.
func (c *Client) recordOutcome(err error) {
	var recordErr error
	switch {
	case err == nil:
		recordErr = c.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	default:
		e := output.AsError(err)
		if e.Code == output.CodeNetwork || e.HTTPStatus >= 500 {
			recordErr = c.breaker.RecordFailure()
		}
	}
	if recordErr != nil {
		c.logger.Debug("updating CMS circuit breaker", "error", recordErr)
	}
}

func (c *Client) buildURL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(maxJitter))) //nolint:gosec // G404: jitter doesn't need crypto rand
	return delay + jitter
}

// parseRetryAfter parses the Retry-After header value in seconds.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
