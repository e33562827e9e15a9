package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

// RequestOption represents a function that can modify an HTTP request
type RequestOption func(*http.Request)

// ClientOption represents a function that can modify the HTTP client
type ClientOption func(*HTTPClient)

// HTTPError represents an error returned from an HTTP request
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Method     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// RetryConfig configures the retry behavior
type RetryConfig struct {
	MaxRetries           int
	InitialInterval      time.Duration
	MaxInterval          time.Duration
	Multiplier           float64
	MaxElapsedTime       time.Duration
	RetryableStatusCodes []int
}

// DefaultRetryConfig provides sensible defaults for retries
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:           3,
		InitialInterval:      100 * time.Millisecond,
		MaxInterval:          10 * time.Second,
		Multiplier:           2.0,
		MaxElapsedTime:       30 * time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// HTTPClient is a resilient HTTP client shared by the outbound
// integrations (ledger network, notification sender).
type HTTPClient struct {
	httpClient     *http.Client
	baseURL        string
	defaultHeaders map[string]string
	retryConfig    *RetryConfig
}

// NewHTTPClient creates a new HTTPClient with the given options
func NewHTTPClient(options ...ClientOption) *HTTPClient {
	client := &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		retryConfig: DefaultRetryConfig(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithBaseURL sets the base URL for all requests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the timeout for all requests
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetryConfig sets the retry configuration
func WithRetryConfig(config *RetryConfig) ClientOption {
	return func(c *HTTPClient) {
		c.retryConfig = config
	}
}

// WithBearerToken adds a bearer token to the request
func WithBearerToken(token string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQueryParam adds a query parameter to the request
func WithQueryParam(key, value string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		q.Set(key, value)
		r.URL.RawQuery = q.Encode()
	}
}

// Get performs a GET request against the given path
func (c *HTTPClient) Get(ctx context.Context, path string, options ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, options...)
}

// Post performs a POST request with a JSON body against the given path
func (c *HTTPClient) Post(ctx context.Context, path string, body interface{}, options ...RequestOption) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body, options...)
}

func (c *HTTPClient) resolveURL(path string) (string, error) {
	if c.baseURL == "" {
		return path, nil
	}
	base, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *HTTPClient) retryable(statusCode int) bool {
	for _, code := range c.retryConfig.RetryableStatusCodes {
		if code == statusCode {
			return true
		}
	}
	return false
}

// do builds and executes the request, retrying retryable status codes
// and transport errors with exponential backoff.
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, options ...RequestOption) (*http.Response, error) {
	fullURL, err := c.resolveURL(path)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryConfig.InitialInterval
	policy.MaxInterval = c.retryConfig.MaxInterval
	policy.Multiplier = c.retryConfig.Multiplier
	policy.MaxElapsedTime = c.retryConfig.MaxElapsedTime

	var resp *http.Response
	operation := func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if reqErr != nil {
			return backoff.Permanent(reqErr)
		}
		for key, value := range c.defaultHeaders {
			req.Header.Set(key, value)
		}
		for _, option := range options {
			option(req)
		}

		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(reqErr)
			}
			return reqErr
		}

		if c.retryable(resp.StatusCode) {
			resp.Body.Close()
			return fmt.Errorf("retryable status %d from %s %s", resp.StatusCode, method, fullURL)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if logger.Log != nil {
			logger.Log.Warn("Retrying HTTP request",
				zap.String("method", method),
				zap.String("url", fullURL),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}
	}

	retries := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(c.retryConfig.MaxRetries))
	if err := backoff.RetryNotify(operation, retries, notify); err != nil {
		return nil, err
	}

	return resp, nil
}

// ProcessJSONResponse decodes a JSON response body into out, turning
// non-2xx statuses into an HTTPError.
func (c *HTTPClient) ProcessJSONResponse(resp *http.Response, out interface{}) error {
	if resp == nil {
		return fmt.Errorf("nil response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        resp.Request.URL.String(),
			Method:     resp.Request.Method,
			Body:       string(bodyBytes),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
