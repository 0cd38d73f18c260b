package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses beyond what the vendor reports.
const (
	StatusVoided = "VOIDED"
)

// PaymentRecord is the persisted view of a submitted ACH payment. Account
// and routing numbers are stored masked; the full values only ever transit
// to the vendor.
type PaymentRecord struct {
	ID                  string          `json:"id"`
	VendorName          string          `json:"vendor_name"`
	VendorTransactionID string          `json:"vendor_transaction_id,omitempty"`
	IdempotencyKey      string          `json:"idempotency_key"`
	OrderNumber         string          `json:"order_number"`
	AccountName         string          `json:"account_name"`
	RoutingNumberMasked string          `json:"routing_number_masked"`
	AccountNumberMasked string          `json:"account_number_masked"`
	AccountType         string          `json:"account_type"`
	Amount              decimal.Decimal `json:"amount"`
	EffectiveDate       string          `json:"effective_date"`
	Description         string          `json:"description,omitempty"`
	Status              string          `json:"status"`
	VendorResponse      map[string]any  `json:"vendor_response,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	VoidedAt            *time.Time      `json:"voided_at,omitempty"`
}

// maskNumber keeps the last four characters of an account or routing number.
func maskNumber(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
