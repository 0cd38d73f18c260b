// Package kotapay implements a resilient client for the Kotapay ACH payment
// API: cached token auth, hourly rate limiting, retry with exponential
// backoff, payment validation and report normalization.
package kotapay

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"
)

// Config holds Kotapay client configuration.
type Config struct {
	BaseURL      string        `envconfig:"KOTAPAY_BASE_URL"`
	ClientID     string        `envconfig:"KOTAPAY_CLIENT_ID"`
	ClientSecret string        `envconfig:"KOTAPAY_CLIENT_SECRET"`
	Username     string        `envconfig:"KOTAPAY_USERNAME"`
	Password     string        `envconfig:"KOTAPAY_PASSWORD"`
	CompanyID    string        `envconfig:"KOTAPAY_COMPANY_ID"`
	Enabled      bool          `envconfig:"KOTAPAY_ENABLED" default:"true"`
	Timeout      time.Duration `envconfig:"KOTAPAY_TIMEOUT" default:"30s"`

	TokenCacheKey     string        `envconfig:"KOTAPAY_TOKEN_CACHE_KEY" default:"kotapay:access-token"`
	TokenExpiryBuffer time.Duration `envconfig:"KOTAPAY_TOKEN_EXPIRY_BUFFER" default:"5m"`

	RateLimitEnabled bool `envconfig:"KOTAPAY_RATE_LIMIT_ENABLED" default:"true"`
	RateLimitPerHour int  `envconfig:"KOTAPAY_RATE_LIMIT_PER_HOUR" default:"1000"`

	RetryEnabled     bool          `envconfig:"KOTAPAY_RETRY_ENABLED" default:"true"`
	RetryMaxAttempts int           `envconfig:"KOTAPAY_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"KOTAPAY_RETRY_BASE_DELAY" default:"100ms"`

	MaxAmount string `envconfig:"KOTAPAY_MAX_AMOUNT" default:"100000.00"`

	// FileAckReportTypes is the ordered list of report type codes tried when
	// locating the file acknowledgement report. The vendor has renamed this
	// report between environments, so the candidates are configuration.
	FileAckReportTypes []string `envconfig:"KOTAPAY_FILE_ACK_REPORT_TYPES" default:"fileAcknowledgement,fileAck,ack"`
}

// Client is a Kotapay API client. All methods are safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	store      Store
	clock      clockz.Clock
	logger     *slog.Logger
	maxAmount  decimal.Decimal
}

// Option customizes a Client.
type Option func(*Client)

// WithClock overrides the clock used for backoff delays, rate limit windows
// and effective date validation.
func WithClock(clock clockz.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithHTTPClient overrides the underlying HTTP client. The configured timeout
// is not applied to a client supplied this way.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New creates a Kotapay client. When the integration is enabled, every
// credential must be present.
func New(cfg Config, store Store, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.Enabled {
		required := []struct{ name, value string }{
			{"KOTAPAY_BASE_URL", cfg.BaseURL},
			{"KOTAPAY_CLIENT_ID", cfg.ClientID},
			{"KOTAPAY_CLIENT_SECRET", cfg.ClientSecret},
			{"KOTAPAY_USERNAME", cfg.Username},
			{"KOTAPAY_PASSWORD", cfg.Password},
			{"KOTAPAY_COMPANY_ID", cfg.CompanyID},
		}
		for _, r := range required {
			if r.value == "" {
				return nil, fmt.Errorf("kotapay config: %s is required", r.name)
			}
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenCacheKey == "" {
		cfg.TokenCacheKey = "kotapay:access-token"
	}
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxAmount == "" {
		cfg.MaxAmount = "100000.00"
	}

	maxAmount, err := decimal.NewFromString(cfg.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("kotapay config: parsing KOTAPAY_MAX_AMOUNT: %w", err)
	}

	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		store:     store,
		clock:     clockz.RealClock,
		logger:    logger,
		maxAmount: maxAmount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Enabled reports whether the integration is switched on.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}
