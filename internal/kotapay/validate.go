package kotapay

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	effectiveDateFormat  = "2006-01-02"
	effectiveDateHorizon = 30 // days
	maxDescriptionLen    = 10
	maxAddendaLen        = 80
	minAccountDigits     = 4
	maxAccountDigits     = 17
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PaymentRequest is an ACH payment instruction prior to submission. Routing
// and account numbers may contain separators; they are stripped to digits
// during sanitization.
type PaymentRequest struct {
	AccountName   string          `json:"accountName" validate:"required"`
	RoutingNumber string          `json:"routingNumber" validate:"required"`
	AccountNumber string          `json:"accountNumber" validate:"required"`
	AccountType   string          `json:"accountType" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate string          `json:"effectiveDate" validate:"required"`
	Description   string          `json:"description,omitempty"`
	Addenda       string          `json:"addenda,omitempty"`

	// IdempotencyKey and OrderNumber are generated at submission when empty.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	OrderNumber    string `json:"orderNumber,omitempty"`
}

// ValidatePayment checks a payment request against the vendor's constraints.
// Rules run in a fixed order and the first violation wins, so callers get a
// stable error for a given request.
func (c *Client) ValidatePayment(req *PaymentRequest) error {
	return c.validatePaymentAt(req, c.clock.Now())
}

func (c *Client) validatePaymentAt(req *PaymentRequest, now time.Time) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Field(), Message: "is required"}
		}
		return &ValidationError{Field: "payment", Message: err.Error()}
	}

	if !req.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if req.Amount.GreaterThan(c.maxAmount) {
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("exceeds maximum of %s", c.maxAmount)}
	}

	routing := digitsOnly(req.RoutingNumber)
	if len(routing) != 9 {
		return &ValidationError{Field: "routingNumber", Message: "must be 9 digits"}
	}
	if !ValidRoutingNumber(routing) {
		return &ValidationError{Field: "routingNumber", Message: "failed ABA checksum"}
	}

	account := digitsOnly(req.AccountNumber)
	if len(account) < minAccountDigits || len(account) > maxAccountDigits {
		return &ValidationError{Field: "accountNumber", Message: fmt.Sprintf("must be %d to %d digits", minAccountDigits, maxAccountDigits)}
	}

	if !validAccountType(req.AccountType) {
		return &ValidationError{Field: "accountType", Message: "must be checking or savings"}
	}

	return validateEffectiveDate(req.EffectiveDate, now)
}

// ValidRoutingNumber reports whether s is a 9 digit ABA routing number with a
// valid checksum: 3(d1+d4+d7) + 7(d2+d5+d8) + (d3+d6+d9) divisible by 10.
func ValidRoutingNumber(s string) bool {
	if len(s) != 9 {
		return false
	}
	sum := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		d := int(r - '0')
		switch i % 3 {
		case 0:
			sum += 3 * d
		case 1:
			sum += 7 * d
		default:
			sum += d
		}
	}
	return sum%10 == 0
}

// validAccountType accepts the checking/savings spellings and their
// single-letter codes, case-insensitively.
func validAccountType(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checking", "c", "savings", "s":
		return true
	}
	return false
}

// normalizeAccountType maps account type spellings onto the vendor's
// single-letter codes. Savings in any casing maps to S; everything else,
// checking included, maps to C. Total on purpose: validation has already
// rejected anything outside the accepted spellings.
func normalizeAccountType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "savings", "s":
		return "S"
	}
	return "C"
}

// validateEffectiveDate requires a YYYY-MM-DD date between today and 30 days
// out, inclusive. Dates compare by UTC calendar day.
func validateEffectiveDate(s string, now time.Time) error {
	d, err := time.Parse(effectiveDateFormat, s)
	if err != nil {
		return &ValidationError{Field: "effectiveDate", Message: "must be formatted YYYY-MM-DD"}
	}

	utc := now.UTC()
	today := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return &ValidationError{Field: "effectiveDate", Message: "must not be in the past"}
	}
	if d.After(today.AddDate(0, 0, effectiveDateHorizon)) {
		return &ValidationError{Field: "effectiveDate", Message: fmt.Sprintf("must be within %d days", effectiveDateHorizon)}
	}
	return nil
}

// sanitizePayment normalizes the request into what the vendor's file format
// tolerates. Runs after validation so nothing here can reject.
func sanitizePayment(req *PaymentRequest) {
	req.RoutingNumber = digitsOnly(req.RoutingNumber)
	req.AccountNumber = digitsOnly(req.AccountNumber)
	req.AccountName = sanitizeName(req.AccountName)
	req.Description = truncate(req.Description, maxDescriptionLen)
	req.Addenda = truncate(req.Addenda, maxAddendaLen)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeName keeps letters, digits, whitespace and the punctuation the ACH
// name field allows.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune("-.,'&", r):
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
