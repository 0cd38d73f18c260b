package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Initiator     string          `json:"initiator,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds the correlation ID and initiator
func (e *Event) WithCorrelation(correlationID, initiator string) *Event {
	e.CorrelationID = correlationID
	e.Initiator = initiator
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Payment lifecycle event types
const (
	EventPaymentCreated = "payment.created"
	EventPaymentVoided  = "payment.voided"
	EventPaymentFailed  = "payment.failed"
)

// PaymentCreatedData is the data for payment.created events
type PaymentCreatedData struct {
	PaymentID     string         `json:"payment_id"`
	TransactionID string         `json:"transaction_id"`
	OrderNumber   string         `json:"order_number"`
	Amount        string         `json:"amount"`
	EffectiveDate string         `json:"effective_date"`
	Initiator     string         `json:"initiator"`
	Response      map[string]any `json:"response,omitempty"`
}

// PaymentVoidedData is the data for payment.voided events
type PaymentVoidedData struct {
	PaymentID     string         `json:"payment_id"`
	TransactionID string         `json:"transaction_id"`
	Initiator     string         `json:"initiator"`
	Response      map[string]any `json:"response,omitempty"`
}

// PaymentFailedData is the data for payment.failed events
type PaymentFailedData struct {
	OrderNumber string `json:"order_number,omitempty"`
	Amount      string `json:"amount"`
	Initiator   string `json:"initiator"`
	Error       string `json:"error"`
}
