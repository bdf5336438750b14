package fetch

import (
	"context"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// RetryConfig controls the exponential backoff used for transient HTTP
// and network failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultRetryConfig returns the backoff policy used by Fetch's HTTP
// downloads (FetchGit does not retry): 5 attempts, starting at 500ms, doubling up to 30s, with 20%
// jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// calculateDelay returns the backoff delay before attempt (1-indexed).
func (c RetryConfig) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		jitterRange := delay * c.Jitter
		delay += (rand.Float64()*2 - 1) * jitterRange
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}

// retryableStatusError marks an HTTP response whose status code is
// worth retrying; it carries no network-level error of its own.
type retryableStatusError struct {
	statusCode int
}

func (e *retryableStatusError) Error() string {
	return errors.Errorf("fetch: retryable status %d", e.statusCode).Error()
}

// IsRetryable reports whether err represents a transient failure worth
// retrying: network timeouts, connection resets, temporary errors, and
// retryable HTTP status codes surfaced via retryableStatusError.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *retryableStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || isTemporary(netErr)
	}
	return false
}

func isTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}

// IsHTTPRetryable reports whether an HTTP status code is worth retrying:
// request timeout, too many requests, and the 5xx family except
// not-implemented.
func IsHTTPRetryable(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return statusCode >= 500 && statusCode != http.StatusNotImplemented
	}
}

// RetryableOperation is a unit of work that RetryWithBackoff will retry
// on transient failure.
type RetryableOperation func(ctx context.Context, attempt int) error

// RetryWithBackoff runs op, retrying with exponential backoff while
// IsRetryable(err) holds and attempts remain, and respecting ctx
// cancellation between attempts.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, op RetryableOperation) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == cfg.MaxAttempts {
			break
		}
		delay := cfg.calculateDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Wrapf(lastErr, "fetch: exhausted %d attempts", cfg.MaxAttempts)
}

// RetryableHTTPClient wraps http.Client's Do with the retry policy
// above, additionally retrying HTTP responses whose status code is in
// IsHTTPRetryable.
type RetryableHTTPClient struct {
	Client *http.Client
	Config RetryConfig
}

// NewRetryableHTTPClient builds a RetryableHTTPClient with a sane
// default transport timeout and the default retry policy.
func NewRetryableHTTPClient() *RetryableHTTPClient {
	return &RetryableHTTPClient{
		Client: &http.Client{Timeout: 2 * time.Minute},
		Config: DefaultRetryConfig(),
	}
}

// Do executes req, retrying on transport errors and retryable status
// codes. The caller owns closing the final response body.
func (c *RetryableHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := RetryWithBackoff(req.Context(), c.Config, func(ctx context.Context, attempt int) error {
		r, err := c.Client.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if IsHTTPRetryable(r.StatusCode) {
			r.Body.Close()
			return &retryableStatusError{statusCode: r.StatusCode}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
