// Package productboard is the HTTP client for the Productboard REST API.
// Every call goes through the local rate limiter, the instance circuit
// breaker and the retry policy.
package productboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"productboard-mcp/internal/circuitbreaker"
	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/logging"
	"productboard-mcp/internal/metrics"
	"productboard-mcp/internal/pagination"
	"productboard-mcp/internal/retry"
)

const (
	// APIVersion is sent in the X-Version header
	APIVersion = "1"

	userAgent       = "productboard-mcp"
	maxResponseSize = 32 << 20
)

// Limiter admits or throttles calls for a key
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Options configures a Client
type Options struct {
	Instance   string
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      *retry.Config
	Breaker    *circuitbreaker.Config
	Limiter    Limiter
	Metrics    *metrics.Metrics
	Logger     logging.Logger
}

// Client talks to one Productboard instance
type Client struct {
	instance   string
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	limiter    Limiter
	metrics    *metrics.Metrics
	logger     logging.Logger
}

// Request is one logical API call. Path is relative to the base URL and
// may carry its own query string, which is merged with Query.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// NewClient creates a client for one instance
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("productboard API token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.productboard.com"
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid productboard base URL %q", opts.BaseURL)
	}
	if opts.Instance == "" {
		opts.Instance = "default"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithComponent("productboard")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		instance:   opts.Instance,
		baseURL:    base,
		token:      opts.Token,
		httpClient: httpClient,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     logger,
	}

	retryCfg := retry.DefaultConfig()
	if opts.Retry != nil {
		retryCfg = opts.Retry
	}
	rc := *retryCfg
	userOnRetry := rc.OnRetry
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.metrics.ObserveRetry(c.instance)
		c.logger.Warn("retrying productboard call",
			"instance", c.instance, "attempt", attempt, "delay", delay.String(), "error", err)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}
	c.retrier = retry.New(&rc)

	breakerCfg := circuitbreaker.DefaultConfig()
	if opts.Breaker != nil {
		breakerCfg = opts.Breaker
	}
	bc := *breakerCfg
	if bc.IsFailure == nil {
		bc.IsFailure = mcperrors.IsRetryable
	}
	userOnChange := bc.OnStateChange
	bc.OnStateChange = func(from, to circuitbreaker.State) {
		c.metrics.SetBreakerState(c.instance, int(to))
		c.logger.Warn("circuit breaker state changed",
			"instance", c.instance, "from", from.String(), "to", to.String())
		if userOnChange != nil {
			userOnChange(from, to)
		}
	}
	c.breaker = circuitbreaker.New(&bc)

	return c, nil
}

// Instance returns the instance name the client serves
func (c *Client) Instance() string {
	return c.instance
}

// Breaker exposes the instance circuit breaker
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Do executes req and returns the raw response body, nil for empty bodies
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	target, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, mcperrors.NewValidationError("body", "request body is not valid JSON", nil)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	return retry.Execute(ctx, c.retrier, func(ctx context.Context) (json.RawMessage, error) {
		return c.attempt(ctx, method, req.Path, target, body)
	})
}

// attempt is one try: rate limiter, then breaker-guarded HTTP exchange
func (c *Client) attempt(ctx context.Context, method, path, target string, body []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Allow(ctx, c.instance); err != nil {
			var rl *mcperrors.RateLimitError
			if errors.As(err, &rl) {
				c.metrics.ObserveRateLimited(c.instance)
			}
			return nil, err
		}
	}

	var data json.RawMessage
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.send(ctx, method, path, target, body)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, mcperrors.NewCircuitOpenError(c.breaker.RetryIn())
	}
	return data, err
}

func (c *Client) send(ctx context.Context, method, path, target string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to build upstream request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("X-Version", APIVersion)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveUpstream(method, 0)
		c.logger.DebugContext(ctx, "productboard request failed",
			"instance", c.instance, "method", method, "path", path, "error", err)
		return nil, &mcperrors.NetworkError{Op: method + " " + path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.metrics.ObserveUpstream(method, resp.StatusCode)
	c.logger.DebugContext(ctx, "productboard request",
		"instance", c.instance, "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &mcperrors.NetworkError{Op: "read " + path, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, newUpstreamError(method, path, resp, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

func newUpstreamError(method, path string, resp *http.Response, body []byte) *mcperrors.UpstreamError {
	ue := &mcperrors.UpstreamError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}

	var payload struct {
		Errors []mcperrors.APIErrorItem `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		ue.Items = payload.Errors
	}
	return ue
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", mcperrors.NewValidationError("path", "invalid request path", nil)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	if ref.RawPath != "" {
		u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimLeft(ref.RawPath, "/")
	}

	q := ref.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Get fetches a single resource and decodes the JSON document
func (c *Client) Get(ctx context.Context, path string, query url.Values) (interface{}, error) {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// DoJSON executes req and decodes the body into generic JSON values
func (c *Client) DoJSON(ctx context.Context, req Request) (interface{}, error) {
	data, err := c.Do(ctx, req)
	if err != nil || data == nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Path, err)
	}
	return out, nil
}

// GetPage fetches one page of a collection endpoint
func (c *Client) GetPage(ctx context.Context, path string, params url.Values) (*pagination.Page, error) {
	data, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: params})
	if err != nil {
		return nil, err
	}
	page := &pagination.Page{}
	if data == nil {
		return page, nil
	}
	if err := json.Unmarshal(data, page); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", path, err)
	}
	return page, nil
}
