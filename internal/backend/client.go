// Package backend is the resilient HTTP client for the remote customer-data
// API. All tool handlers go through it; it owns connection reuse, timeouts,
// retry with backoff, and response decoding.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/voicegate/internal/backoff"
	"github.com/haasonsaas/voicegate/internal/observability"
)

// Response is the decoded upstream envelope. The upstream wraps every
// payload in {success, message, data, meta}.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    any            `json:"data"`
	Meta    map[string]any `json:"meta"`
}

// Config configures the backend client.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout is the overall per-request deadline (default 30s), kept
	// shorter than the voice engine's own turn budget so a stuck upstream
	// surfaces as a spoken error rather than dead air.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// RetryInitialDelay is the backoff delay after the first failure.
	RetryInitialDelay time.Duration
}

// Client is safe for concurrent use; the underlying http.Client pools and
// reuses connections across calls.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	policy     backoff.Policy

	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger *observability.Logger, metrics *observability.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("backend: API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	policy := backoff.DefaultPolicy()
	policy.Initial = cfg.RetryInitialDelay

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		policy:     policy,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// get issues a GET with retry. Lookups are idempotent, so transient
// failures and 5xx are retried with backoff.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*Response, error) {
	return c.withRetry(ctx, op, func() (*Response, error) {
		return c.do(ctx, op, http.MethodGet, path, query, nil)
	})
}

// post issues a POST with retry; only for operations the upstream treats as
// idempotent (searches and schedule queries that happen to use POST).
func (c *Client) post(ctx context.Context, op, path string, body any) (*Response, error) {
	return c.withRetry(ctx, op, func() (*Response, error) {
		return c.do(ctx, op, http.MethodPost, path, nil, body)
	})
}

// postNoRetry issues a POST exactly once. Used for non-idempotent writes
// such as vaulting a card, where a blind retry could duplicate the side
// effect.
func (c *Client) postNoRetry(ctx context.Context, op, path string, body any) (*Response, error) {
	return c.do(ctx, op, http.MethodPost, path, nil, body)
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() (*Response, error)) (*Response, error) {
	result, err := backoff.Retry(ctx, c.policy, c.maxRetries+1, func(attempt int) (*Response, error) {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, backoff.Permanent(err)
		}
		if attempt <= c.maxRetries {
			c.logger.Warn(ctx, "backend request failed, retrying",
				"operation", op, "attempt", attempt, "error", err.Error())
		}
		return nil, err
	})
	if err != nil {
		return nil, result.LastErr
	}
	return result.Value, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (*Response, error) {
	start := time.Now()
	resp, err := c.doOnce(ctx, op, method, path, query, body)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.BackendRequests.WithLabelValues(op, status).Inc()
		c.metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, query url.Values, body any) (*Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Kind: FailureRejected, Operation: op, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, &APIError{Kind: FailureRejected, Operation: op, Message: err.Error()}
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		kind := FailureTransport
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = FailureTimeout
		}
		return nil, &APIError{Kind: kind, Operation: op, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, &APIError{Kind: FailureTransport, Operation: op, Message: err.Error()}
	}

	if httpResp.StatusCode >= 400 {
		return nil, classifyStatus(op, httpResp.StatusCode, string(raw))
	}

	decoded := &Response{}
	if err := json.Unmarshal(raw, decoded); err != nil {
		return nil, &APIError{Kind: FailureRemote, Operation: op, Status: httpResp.StatusCode,
			Message: fmt.Sprintf("decode response: %v", err)}
	}
	return decoded, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
