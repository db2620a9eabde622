package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/marketplace-gateway/pkg/cache"
	"github.com/Sternrassler/marketplace-gateway/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for gateway requests.
var (
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total backend requests by method and outcome",
	}, []string{"method", "outcome"})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Backend request duration in seconds by method, retries included",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 3, 5, 10},
	}, []string{"method"})

	gatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total gateway failures by code",
	}, []string{"code"})

	gatewayRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts after 5xx responses",
	})

	gatewayRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.5, 1, 2, 3, 5, 10},
	})

	gatewayRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retry_exhausted_total",
		Help: "Total number of times the retry budget was exhausted",
	})

	gatewayCacheFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_fallbacks_total",
		Help: "Timeouts answered from the fallback cache (hit) or not (miss)",
	}, []string{"result"})
)

// DefaultTimeout bounds a single attempt.
const DefaultTimeout = 3 * time.Second

// Request describes one gateway call. It is built fresh for every call.
type Request struct {
	Method string

	// URL is absolute, query string included.
	URL string

	Body   []byte
	Header http.Header

	// Timeout bounds each attempt; zero uses the executor default.
	Timeout time.Duration

	// RetryBudget overrides the executor's budget when positive;
	// negative disables retries.
	RetryBudget int

	// Tags are echoed back on success for cache invalidation.
	Tags []string

	// NoAuth sends the request without the Authorization header.
	NoAuth bool
}

// ExecutorConfig holds the executor dependencies.
type ExecutorConfig struct {
	Headers *credentials.Builder
	Cache   *cache.Memory
	Timeout time.Duration
	Retry   RetryConfig
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient sets the transport client (for testing).
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.httpClient = c
	}
}

// WithSleep replaces the backoff wait (for testing).
func WithSleep(fn SleepFunc) ExecutorOption {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// Executor issues backend calls with timeouts, 5xx retries and cache fallback.
type Executor struct {
	httpClient *http.Client
	headers    *credentials.Builder
	cache      *cache.Memory
	timeout    time.Duration
	retry      RetryConfig
	sleep      SleepFunc
	logger     zerolog.Logger
}

// NewExecutor creates an executor. A nil cache gets a default one.
func NewExecutor(cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	if cfg.Headers == nil {
		cfg.Headers = credentials.NewBuilder(credentials.Credentials{}, "")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory(cache.DefaultConfig())
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Budget < 0 {
		cfg.Retry.Budget = 0
	}
	if cfg.Retry.BaseBackoff <= 0 {
		cfg.Retry.BaseBackoff = DefaultRetryConfig().BaseBackoff
	}

	e := &Executor{
		// No client-level timeout: each attempt carries its own deadline.
		httpClient: &http.Client{},
		headers:    cfg.Headers,
		cache:      cfg.Cache,
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		sleep:      sleepContext,
		logger:     log.With().Str("component", "gateway-client").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the fallback cache.
func (e *Executor) Cache() *cache.Memory {
	return e.cache
}

// attemptResult is the raw outcome of one HTTP call.
type attemptResult struct {
	status   int
	header   http.Header
	body     []byte
	err      error
	timedOut bool
}

// Execute performs req and classifies the outcome. It never returns an error
// for ordinary HTTP or network conditions; every outcome is a Result.
func (e *Executor) Execute(ctx context.Context, req Request) Result[json.RawMessage] {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	startTime := time.Now()
	defer func() {
		gatewayRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	budget := e.retry.Budget
	switch {
	case req.RetryBudget > 0:
		budget = req.RetryBudget
	case req.RetryBudget < 0:
		budget = 0
	}

	key := cache.Key(method, req.URL, req.Body)
	includeAuth := !req.NoAuth

	if includeAuth && !e.headers.Configured() {
		e.logger.Error().
			Str("method", method).
			Str("url", req.URL).
			Msg("Backend credentials missing for authenticated request")
		return e.fail(method, &Failure{
			Code:    CodeUnauthorized,
			Reason:  ReasonMissingCredentials,
			Message: ErrMissingCredentials.Error(),
		})
	}

	for retryCount := 0; ; retryCount++ {
		e.logger.Debug().
			Str("method", method).
			Str("url", req.URL).
			Int("attempt", retryCount+1).
			Msg("Executing backend request")

		res := e.attempt(ctx, method, req, timeout, includeAuth)

		if res.timedOut {
			return e.fallback(method, req.URL, key, timeout)
		}

		if res.err != nil {
			e.logger.Warn().
				Err(res.err).
				Str("method", method).
				Str("url", req.URL).
				Msg("Backend request failed")
			return e.fail(method, &Failure{
				Code:    CodeNetworkError,
				Message: res.err.Error(),
			})
		}

		if res.status >= 200 && res.status < 300 {
			return e.succeed(method, req, key, res)
		}

		failure := classifyResponse(res.status, res.body)

		if shouldRetry(failure.Code, retryCount, budget) {
			backoff := e.retry.Backoff(retryCount)
			gatewayRetriesTotal.Inc()
			gatewayRetryBackoffSeconds.Observe(backoff.Seconds())

			e.logger.Warn().
				Str("method", method).
				Str("url", req.URL).
				Int("status", res.status).
				Int("retry", retryCount+1).
				Dur("backoff", backoff).
				Msg("Server error, retrying after backoff")

			if err := e.sleep(ctx, backoff); err != nil {
				e.logger.Warn().
					Err(err).
					Int("retry", retryCount+1).
					Msg("Context cancelled during retry backoff")
				return e.fail(method, &Failure{
					Code:    CodeNetworkError,
					Status:  res.status,
					Message: fmt.Sprintf("retry aborted: %v", err),
				})
			}
			continue
		}

		if failure.Code == CodeServerError {
			failure.Reason = ReasonRetryExhausted
			gatewayRetryExhaustedTotal.Inc()
			e.logger.Error().
				Str("method", method).
				Str("url", req.URL).
				Int("status", res.status).
				Int("attempts", retryCount+1).
				Msg("Retry attempts exhausted")
		} else {
			e.logger.Warn().
				Str("method", method).
				Str("url", req.URL).
				Int("status", res.status).
				Str("code", string(failure.Code)).
				Str("reason", string(failure.Reason)).
				Msg("Backend request error")
		}

		return e.fail(method, failure)
	}
}

// attempt runs one HTTP call under its own timeout.
func (e *Executor) attempt(ctx context.Context, method string, req Request, timeout time.Duration, includeAuth bool) attemptResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return attemptResult{err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header = e.headers.Merge(req.Header, includeAuth, len(req.Body) > 0)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return attemptResult{err: err, timedOut: guardFired(ctx, attemptCtx)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{err: fmt.Errorf("read response body: %w", err), timedOut: guardFired(ctx, attemptCtx)}
	}

	return attemptResult{
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
	}
}

// guardFired is true when the per-attempt deadline expired while the
// caller's context is still alive.
func guardFired(parent, attemptCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
}

func (e *Executor) succeed(method string, req Request, key string, res attemptResult) Result[json.RawMessage] {
	payload := res.body
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("null")
	}

	if !json.Valid(payload) {
		return e.fail(method, &Failure{
			Code:    CodeServerError,
			Reason:  ReasonDecode,
			Status:  res.status,
			Message: "backend returned a non-JSON body",
		})
	}

	e.cache.Put(key, payload, res.status)
	gatewayRequestsTotal.WithLabelValues(method, "success").Inc()

	e.logger.Debug().
		Str("method", method).
		Str("url", req.URL).
		Int("status", res.status).
		Msg("Backend request succeeded")

	return Ok(Success[json.RawMessage]{
		Data:   json.RawMessage(payload),
		Status: res.status,
		Header: res.header,
		Tags:   req.Tags,
	})
}

// fallback answers a timed out call from the cache when possible.
func (e *Executor) fallback(method, url, key string, timeout time.Duration) Result[json.RawMessage] {
	if entry, ok := e.cache.Get(key); ok {
		gatewayCacheFallbacksTotal.WithLabelValues("hit").Inc()
		gatewayRequestsTotal.WithLabelValues(method, "cached").Inc()

		e.logger.Warn().
			Str("method", method).
			Str("url", url).
			Dur("timeout", timeout).
			Time("cached_at", entry.StoredAt).
			Msg("Backend timed out, serving cached response")

		return Ok(Success[json.RawMessage]{
			Data:     json.RawMessage(entry.Payload),
			Status:   http.StatusOK,
			Cached:   true,
			CachedAt: entry.StoredAt,
		})
	}

	gatewayCacheFallbacksTotal.WithLabelValues("miss").Inc()
	e.logger.Warn().
		Str("method", method).
		Str("url", url).
		Dur("timeout", timeout).
		Msg("Backend timed out, no cached response")

	return e.fail(method, &Failure{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("backend did not respond within %s", timeout),
	})
}

func (e *Executor) fail(method string, f *Failure) Result[json.RawMessage] {
	gatewayErrorsTotal.WithLabelValues(string(f.Code)).Inc()
	gatewayRequestsTotal.WithLabelValues(method, strings.ToLower(string(f.Code))).Inc()
	return Fail[json.RawMessage](f)
}
