package kotapay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// execute runs one vendor request through the rate limiter and retry policy.
// Every attempt, retries included, passes through the rate limiter so a
// retrying call cannot exceed the hourly budget.
//
// Network failures, 429s and 5xx responses are retried with exponential
// backoff (base delay doubling per attempt) up to the configured attempt
// budget. A 401 earns exactly one token-invalidate-and-retry per call which
// is not charged against the budget; a second 401 on the same call is
// terminal. Other 4xx responses and rate limit rejections never retry.
func (c *Client) execute(ctx context.Context, method, path string, body any, query url.Values) (*vendorResponse, error) {
	maxAttempts := c.config.RetryMaxAttempts
	if !c.config.RetryEnabled {
		maxAttempts = 1
	}

	var lastErr error
	refreshed := false
	attempt := 1
	for {
		if err := c.admit(); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, method, path, body, query)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var vendorErr *VendorError
		if errors.As(err, &vendorErr) && vendorErr.Status == http.StatusUnauthorized {
			if refreshed {
				return nil, err
			}
			refreshed = true
			c.invalidateToken()
			c.logger.Warn("unauthorized response, refreshing access token",
				"method", method,
				"path", path,
			)
			continue
		}

		if !retryable(err) {
			return nil, err
		}
		if attempt >= maxAttempts {
			break
		}

		delay := c.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
		c.logger.Debug("retrying vendor request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(delay):
		}
		attempt++
	}

	return nil, fmt.Errorf("kotapay request failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryable reports whether an error is transient: a connection-level
// failure, a 429 or a 5xx.
func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var vendorErr *VendorError
	if errors.As(err, &vendorErr) {
		return vendorErr.Status == http.StatusTooManyRequests || vendorErr.Status >= 500
	}
	return false
}
