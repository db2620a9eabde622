// Package client provides the resilient gateway to the commerce backend:
// per-attempt timeouts, 5xx retries with linear backoff, failure
// classification and a fallback cache for timed out calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/marketplace-gateway/pkg/cache"
	"github.com/Sternrassler/marketplace-gateway/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is the typed gateway to one backend base URL.
type Client struct {
	baseURL  *url.URL
	executor *Executor
	logger   zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the REST API, e.g. "https://shop.example.com/wp-json".
	BaseURL string

	// Credentials may be empty; authenticated calls then fail with
	// UNAUTHORIZED / missing_credentials at first use.
	Credentials credentials.Credentials

	UserAgent string

	// Timeout bounds every attempt.
	Timeout time.Duration

	// Retry controls 5xx retries.
	Retry RetryConfig

	// Cache limits of the fallback cache.
	Cache cache.Config
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string, creds credentials.Credentials) Config {
	return Config{
		BaseURL:     baseURL,
		Credentials: creds,
		UserAgent:   credentials.DefaultUserAgent,
		Timeout:     DefaultTimeout,
		Retry:       DefaultRetryConfig(),
		Cache:       cache.DefaultConfig(),
	}
}

// New creates a new gateway client.
func New(cfg Config, opts ...ExecutorOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	if cfg.Retry.Budget < 0 {
		return nil, fmt.Errorf("retry budget must be >= 0 (got %d)", cfg.Retry.Budget)
	}

	logger := log.With().Str("component", "gateway-client").Logger()

	executor := NewExecutor(ExecutorConfig{
		Headers: credentials.NewBuilder(cfg.Credentials, cfg.UserAgent),
		Cache:   cache.NewMemory(cfg.Cache),
		Timeout: cfg.Timeout,
		Retry:   cfg.Retry,
	}, append([]ExecutorOption{WithLogger(logger)}, opts...)...)

	if !cfg.Credentials.Configured() {
		logger.Warn().
			Str("base_url", base.String()).
			Msg("Backend credentials not configured, authenticated requests will fail")
	}

	return &Client{
		baseURL:  base,
		executor: executor,
		logger:   logger,
	}, nil
}

// NewWithExecutor creates a client around an existing executor.
func NewWithExecutor(baseURL string, executor *Executor) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Client{
		baseURL:  base,
		executor: executor,
		logger:   executor.logger,
	}, nil
}

// Executor returns the underlying executor.
func (c *Client) Executor() *Executor {
	return c.executor
}

// GetCache returns the fallback cache (for testing).
func (c *Client) GetCache() *cache.Memory {
	return c.executor.Cache()
}

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// RequestOption adjusts a single request.
type RequestOption func(*Request)

// WithHeader adds a request header. Authorization cannot be overridden.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Add(key, value)
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = d
	}
}

// WithRetryBudget overrides the retry budget; 0 disables retries.
func WithRetryBudget(n int) RequestOption {
	return func(r *Request) {
		if n <= 0 {
			r.RetryBudget = -1
			return
		}
		r.RetryBudget = n
	}
}

// WithTags declares invalidation tags, echoed on Success.Tags.
func WithTags(tags ...string) RequestOption {
	return func(r *Request) {
		r.Tags = append(r.Tags, tags...)
	}
}

// WithoutAuth sends the request without credentials.
func WithoutAuth() RequestOption {
	return func(r *Request) {
		r.NoAuth = true
	}
}

// Get performs a GET request and decodes the response into T.
//
// The error is non-nil only when the backend reported an expired session
// (a *SessionExpiredError); every other failure is in the Result.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values, opts ...RequestOption) (Result[T], error) {
	return send[T](ctx, c, http.MethodGet, path, query, nil, opts)
}

// Post performs a POST request with a JSON body.
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (Result[T], error) {
	return send[T](ctx, c, http.MethodPost, path, nil, body, opts)
}

// Put performs a PUT request with a JSON body.
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (Result[T], error) {
	return send[T](ctx, c, http.MethodPut, path, nil, body, opts)
}

// Patch performs a PATCH request with a JSON body.
func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (Result[T], error) {
	return send[T](ctx, c, http.MethodPatch, path, nil, body, opts)
}

// Delete performs a DELETE request.
func Delete[T any](ctx context.Context, c *Client, path string, query url.Values, opts ...RequestOption) (Result[T], error) {
	return send[T](ctx, c, http.MethodDelete, path, query, nil, opts)
}

func send[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any, opts []RequestOption) (Result[T], error) {
	req := Request{
		Method: method,
		URL:    c.URL(path, query),
	}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Fail[T](&Failure{
				Code:    CodeValidation,
				Reason:  ReasonEncode,
				Message: fmt.Sprintf("encode request body: %v", err),
			}), nil
		}
		req.Body = payload
	}

	for _, opt := range opts {
		opt(&req)
	}

	res := decodeResult[T](c.executor.Execute(ctx, req))
	if res.Failure != nil && res.Failure.SessionExpired() {
		c.logger.Info().
			Str("method", method).
			Str("path", path).
			Str("upstream_code", res.Failure.UpstreamCode).
			Msg("Backend session expired, re-authentication required")
		return res, &SessionExpiredError{Failure: res.Failure}
	}
	return res, nil
}

// PageInfo reads the WooCommerce pagination headers of a live response.
// Missing or malformed headers yield zero values.
func PageInfo(h http.Header) (total, totalPages int) {
	if h == nil {
		return 0, 0
	}
	total, _ = strconv.Atoi(h.Get("X-WP-Total"))
	totalPages, _ = strconv.Atoi(h.Get("X-WP-TotalPages"))
	return total, totalPages
}
