package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timebankhq/timebank-go/shared/errors"
	"github.com/timebankhq/timebank-go/shared/logging"
	"github.com/timebankhq/timebank-go/shared/metrics"
	"github.com/timebankhq/timebank-go/shared/resilience"
)

// Client is the JSON/HTTP client for the time-bank backend. It carries the
// session's bearer token and maps error responses into structured errors.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logging.Logger
	met     *metrics.Metrics
	retry   *resilience.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.met = m }
}

// WithRetry overrides the retry configuration used for idempotent reads.
func WithRetry(r *resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = r }
}

// NewClient creates a client for baseURL authenticating with token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logging.Nop(),
		met:     metrics.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		r := resilience.DefaultRetryConfig()
		r.RetryableErrors = errors.IsRetryable
		c.retry = r
	}
	return c
}

// apiError is the backend's error body shape.
type apiError struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e apiError) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}

// do performs one request. A non-2xx response decodes into a structured
// error carrying the backend's message.
func (c *Client) do(ctx context.Context, method, operation, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.met.APIRequestErrors.WithLabelValues(operation, "transport").Inc()
		return errors.Unavailable(fmt.Sprintf("request %s failed", operation)).WithCause(err)
	}
	defer resp.Body.Close()

	c.met.APIRequestsTotal.WithLabelValues(method, operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		msg := ae.message()
		if msg == "" {
			msg = resp.Status
		}
		apiErr := errors.FromHTTPStatus(resp.StatusCode, msg)
		c.met.APIRequestErrors.WithLabelValues(operation, string(apiErr.Type)).Inc()
		c.log.WithError(apiErr).WithField("operation", operation).Debug("api request rejected")
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.met.APIRequestErrors.WithLabelValues(operation, "decode").Inc()
			return errors.Internal(fmt.Sprintf("decode %s response", operation)).WithCause(err)
		}
	}
	return nil
}

// get performs an idempotent read, retrying transient failures.
func (c *Client) get(ctx context.Context, operation, path string, out interface{}) error {
	return resilience.RetryWithConfig(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, operation, path, nil, out)
	})
}

// post performs a mutation. Mutations are never retried here: the callers
// recover conflicts by refetching authoritative state instead.
func (c *Client) post(ctx context.Context, operation, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, operation, path, body, out)
}
