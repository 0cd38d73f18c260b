package kotapay

import (
	"fmt"
	"time"
)

// rateWindowFormat keys the request counter by UTC hour.
const rateWindowFormat = "2006-01-02-15"

// admit consumes one unit of the hourly request budget. It must be called
// before any network activity so rejected requests cost nothing.
func (c *Client) admit() error {
	return c.admitAt(c.clock.Now())
}

func (c *Client) admitAt(now time.Time) error {
	if !c.config.RateLimitEnabled {
		return nil
	}

	window := now.UTC().Format(rateWindowFormat)
	count, err := c.store.Increment("kotapay:requests:"+window, time.Hour)
	if err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}

	if count > int64(c.config.RateLimitPerHour) {
		c.logger.Warn("hourly request budget exhausted",
			"window", window,
			"count", count,
			"limit", c.config.RateLimitPerHour,
		)
		return &RateLimitError{Limit: c.config.RateLimitPerHour, Window: window}
	}
	return nil
}
