// Package transport issues completion requests to a chat completion endpoint,
// retrying with exponential backoff and decoding either a single JSON answer or
// a framed stream of incremental tokens.
package transport

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

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/llm"
)

const (
	// DefaultRetryBase is the first backoff delay; attempt n waits base × 2^n.
	DefaultRetryBase = 500 * time.Millisecond

	// maxErrorBody caps how much of an error response is kept for diagnostics.
	maxErrorBody = 4 * 1024
)

// Options bounds and observes a single Send.
type Options struct {
	// OnToken receives each incremental token in arrival order. It is never
	// invoked after Send returns.
	OnToken func(token string)

	// Timeout bounds the whole call, retries and streaming included. Zero means
	// no bound beyond the caller's context.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
}

// Client sends completion requests to one endpoint, either the proxy or an
// upstream API directly.
type Client struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
	retryBase  time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero: streams
// are bounded through Options.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a header to every request, e.g. an Authorization header when
// talking to the upstream API without the proxy.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithRetryBase sets the base delay of the exponential backoff.
func WithRetryBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBase = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client posting to endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		headers:    map[string]string{},
		retryBase:  DefaultRetryBase,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send issues req and returns the complete answer text. Network failures and
// non-success statuses are retried up to opts.MaxRetries times, except once a
// token has been delivered: a stream that breaks after delivering tokens fails
// immediately so that no token is delivered twice.
func (c *Client) Send(ctx context.Context, req llm.ChatRequest, opts Options) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var (
		answer   string
		attempts int
		lastErr  error
	)

	startTime := time.Now()
	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(c.retryBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		text, delivered, err := c.attempt(ctx, body, req.Stream, opts.OnToken)
		if err == nil {
			answer = text
			return nil
		}
		lastErr = err

		if delivered || ctx.Err() != nil {
			return err
		}

		c.logger.Warn("completion attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})

	if err == nil {
		c.logger.Debug("completion resolved",
			zap.Int("attempts", attempts),
			zap.Int("answer_chars", len(answer)),
			zap.Duration("duration", time.Since(startTime)),
		)
		return answer, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.logger.Warn("completion timed out", zap.Duration("timeout", opts.Timeout), zap.Int("attempts", attempts))
		return "", &TimeoutError{Timeout: opts.Timeout}
	case ctx.Err() != nil:
		c.logger.Debug("completion canceled", zap.Int("attempts", attempts))
		return "", ErrCanceled
	}

	if lastErr == nil {
		lastErr = err
	}
	transportErr := &TransportError{Attempts: attempts, Cause: lastErr}
	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) {
		transportErr.Status = statusErr.Status
	}

	c.logger.Error("completion failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	return "", transportErr
}

// attempt performs one HTTP round trip and decodes the answer. delivered reports
// whether any token reached onToken.
func (c *Client) attempt(ctx context.Context, body []byte, stream bool, onToken func(string)) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("sending completion request",
		zap.String("url", c.endpoint),
		zap.Int("body_size", len(body)),
		zap.Bool("stream", stream),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return "", false, &StatusError{Status: httpResp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	if isStreamResponse(httpResp, stream) {
		return c.readStream(httpResp.Body, onToken)
	}
	return c.readJSON(httpResp.Body, onToken)
}

// isStreamResponse decides the decoding mode from the response Content-Type,
// falling back to what was requested when the type is inconclusive.
func isStreamResponse(resp *http.Response, requested bool) bool {
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		return true
	case strings.HasPrefix(contentType, "application/json"):
		return false
	}
	return requested
}

// readJSON decodes a single complete answer. The whole answer counts as one
// increment for onToken.
func (c *Client) readJSON(body io.Reader, onToken func(string)) (string, bool, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, &ParseError{Data: truncate(string(data), 200), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", false, &ParseError{Data: truncate(string(data), 200), Err: errors.New("response has no choices")}
	}

	answer := resp.Content()
	if answer == "" || onToken == nil {
		return answer, false, nil
	}
	onToken(answer)
	return answer, true, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
