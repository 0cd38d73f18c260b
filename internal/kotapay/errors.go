package kotapay

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDisabled is returned by every operation when the integration is switched
// off by configuration.
var ErrDisabled = errors.New("kotapay integration is disabled")

// AuthError indicates the client could not obtain or refresh an access token.
type AuthError struct {
	Message string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kotapay auth: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("kotapay auth: %s", e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError indicates the hourly request budget is exhausted. The request
// was rejected before reaching the network.
type RateLimitError struct {
	Limit  int
	Window string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("kotapay rate limit exceeded: %d requests allowed in window %s", e.Limit, e.Window)
}

// NetworkError indicates the request never produced an HTTP response, such as
// a connection failure or timeout.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("kotapay network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// VendorError is a non-success response from the Kotapay API. Status is the
// HTTP status code, or the body-level code when the vendor reports a failure
// inside a 200 response.
type VendorError struct {
	Status  int
	Payload map[string]any
	Raw     string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("kotapay api error: status=%d body=%s", e.Status, e.Raw)
}

// ValidationError rejects a payment before submission. Field is the JSON name
// of the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// PaymentFailedError indicates the vendor accepted the request at the HTTP
// level but reported the payment itself as failed in the response body.
type PaymentFailedError struct {
	Status string
	Result map[string]any
}

func (e *PaymentFailedError) Error() string {
	if msg, ok := e.Result["errorMessage"].(string); ok && msg != "" {
		return fmt.Sprintf("kotapay payment failed: status=%s message=%s", e.Status, msg)
	}
	return fmt.Sprintf("kotapay payment failed: status=%s", e.Status)
}

// DiscoveryError indicates no configured report type code produced the file
// acknowledgement report. It wraps the last error the vendor returned.
type DiscoveryError struct {
	Attempted []string
	Err       error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("file acknowledgement report discovery failed, tried [%s]: %v",
		strings.Join(e.Attempted, ", "), e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
