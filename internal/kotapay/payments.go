package kotapay

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// transactionIDPattern matches the vendor's transaction identifiers. Checked
// before any network call so malformed ids never reach the URL path.
var transactionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PaymentResult is the normalized outcome of a successful payment submission.
type PaymentResult struct {
	TransactionID  string         `json:"transactionId"`
	Status         string         `json:"status"`
	IdempotencyKey string         `json:"idempotencyKey"`
	OrderNumber    string         `json:"orderNumber"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// ListPaymentsParams filters a payment listing.
type ListPaymentsParams struct {
	StartDate string
	EndDate   string
	Limit     int
	Offset    int
}

// CreatePayment validates, sanitizes and submits an ACH payment. The caller's
// request is not mutated; sanitization happens on a copy. An idempotency key
// and order number are generated when the caller does not supply them, and
// both are echoed in the result so callers can persist them.
//
// A 200 response whose body reports a failed status is an error: the vendor
// signals logical rejection this way, and treating it as success would record
// a payment that never moved money.
func (c *Client) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}
	if err := c.ValidatePayment(req); err != nil {
		return nil, err
	}

	submission := *req
	sanitizePayment(&submission)
	submission.AccountType = normalizeAccountType(submission.AccountType)

	if submission.IdempotencyKey == "" {
		submission.IdempotencyKey = ulid.Make().String()
	}
	if submission.OrderNumber == "" {
		submission.OrderNumber = "ACH-" + ulid.Make().String()
	}

	c.logger.Info("submitting ACH payment",
		"order_number", submission.OrderNumber,
		"amount", submission.Amount,
		"effective_date", submission.EffectiveDate,
	)

	resp, err := c.execute(ctx, http.MethodPost, "/v1/companies/"+c.config.CompanyID+"/ach/payments", submission, nil)
	if err != nil {
		return nil, err
	}

	status, _ := resp.payload["status"].(string)
	if paymentFailed(resp.payload) {
		c.logger.Warn("vendor rejected ACH payment",
			"order_number", submission.OrderNumber,
			"status", status,
		)
		return nil, &PaymentFailedError{Status: status, Result: resp.payload}
	}

	transactionID, _ := resp.payload["transactionId"].(string)

	c.logger.Info("ACH payment accepted",
		"order_number", submission.OrderNumber,
		"transaction_id", transactionID,
		"status", status,
	)

	return &PaymentResult{
		TransactionID:  transactionID,
		Status:         status,
		IdempotencyKey: submission.IdempotencyKey,
		OrderNumber:    submission.OrderNumber,
		Raw:            resp.payload,
	}, nil
}

// GetPayment retrieves a payment by the vendor's transaction id.
func (c *Client) GetPayment(ctx context.Context, transactionID string) (map[string]any, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}
	if !transactionIDPattern.MatchString(transactionID) {
		return nil, &ValidationError{Field: "transactionId", Message: "contains invalid characters"}
	}

	resp, err := c.execute(ctx, http.MethodGet, "/v1/companies/"+c.config.CompanyID+"/ach/payments/"+transactionID, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.payload, nil
}

// ListPayments returns payments matching params as raw vendor records.
func (c *Client) ListPayments(ctx context.Context, params ListPaymentsParams) ([]map[string]any, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	q := url.Values{}
	if params.StartDate != "" {
		q.Set("startDate", params.StartDate)
	}
	if params.EndDate != "" {
		q.Set("endDate", params.EndDate)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	resp, err := c.execute(ctx, http.MethodGet, "/v1/companies/"+c.config.CompanyID+"/ach/payments", nil, q)
	if err != nil {
		return nil, err
	}

	items, _ := resp.payload["payments"].([]any)
	return toRows(items), nil
}

// VoidPayment cancels a pending payment. Like CreatePayment it treats a 200
// with a failed body status as an error.
func (c *Client) VoidPayment(ctx context.Context, transactionID string) (map[string]any, error) {
	if !c.config.Enabled {
		return nil, ErrDisabled
	}
	if !transactionIDPattern.MatchString(transactionID) {
		return nil, &ValidationError{Field: "transactionId", Message: "contains invalid characters"}
	}

	resp, err := c.execute(ctx, http.MethodPost, "/v1/companies/"+c.config.CompanyID+"/ach/payments/"+transactionID+"/void", nil, nil)
	if err != nil {
		return nil, err
	}

	if paymentFailed(resp.payload) {
		status, _ := resp.payload["status"].(string)
		return nil, &PaymentFailedError{Status: status, Result: resp.payload}
	}

	c.logger.Info("ACH payment voided", "transaction_id", transactionID)
	return resp.payload, nil
}

// paymentFailed reports whether a 2xx payment response body carries a logical
// failure.
func paymentFailed(payload map[string]any) bool {
	if msg, ok := payload["errorMessage"].(string); ok && msg != "" {
		return true
	}
	status, _ := payload["status"].(string)
	switch strings.ToLower(status) {
	case "failed", "rejected", "error":
		return true
	}
	return false
}
