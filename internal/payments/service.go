// Package payments orchestrates ACH payments through the Kotapay gateway:
// each submission is validated by the client, persisted, and announced on the
// event stream.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"achgateway/internal/common/events"
	"achgateway/internal/common/middleware"
	"achgateway/internal/kotapay"
)

// Gateway is the vendor client surface the service depends on. Implemented
// by *kotapay.Client.
type Gateway interface {
	CreatePayment(ctx context.Context, req *kotapay.PaymentRequest) (*kotapay.PaymentResult, error)
	GetPayment(ctx context.Context, transactionID string) (map[string]any, error)
	ListPayments(ctx context.Context, params kotapay.ListPaymentsParams) ([]map[string]any, error)
	VoidPayment(ctx context.Context, transactionID string) (map[string]any, error)
	FileAcknowledgementReport(ctx context.Context, startDate, endDate string) (*kotapay.ReportResult, error)
}

// Store persists payment records.
type Store interface {
	Create(ctx context.Context, rec *PaymentRecord) error
	GetByID(ctx context.Context, id string) (*PaymentRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*PaymentRecord, error)
	List(ctx context.Context, limit, offset int) ([]*PaymentRecord, error)
	MarkVoided(ctx context.Context, id string, voidedAt time.Time) error
}

// Publisher publishes lifecycle events. Implemented by *nats.Publisher.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Service coordinates the gateway, the store and the event stream.
type Service struct {
	gateway   Gateway
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a payment service.
func NewService(gateway Gateway, store Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		gateway:   gateway,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// CreatePaymentRequest is an inbound payment submission.
type CreatePaymentRequest struct {
	AccountName    string `json:"account_name" validate:"required"`
	RoutingNumber  string `json:"routing_number" validate:"required"`
	AccountNumber  string `json:"account_number" validate:"required"`
	AccountType    string `json:"account_type" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	EffectiveDate  string `json:"effective_date" validate:"required"`
	Description    string `json:"description,omitempty"`
	Addenda        string `json:"addenda,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreatePayment submits a payment to the vendor and records the outcome.
// A replayed idempotency key returns the original record instead of
// resubmitting.
func (s *Service) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentRecord, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, &kotapay.ValidationError{Field: "amount", Message: "must be a decimal number"}
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			s.logger.Info("idempotency key replayed", "payment_id", existing.ID)
			return existing, nil
		}
	}

	vendorReq := &kotapay.PaymentRequest{
		AccountName:    req.AccountName,
		RoutingNumber:  req.RoutingNumber,
		AccountNumber:  req.AccountNumber,
		AccountType:    req.AccountType,
		Amount:         amount,
		EffectiveDate:  req.EffectiveDate,
		Description:    req.Description,
		Addenda:        req.Addenda,
		IdempotencyKey: req.IdempotencyKey,
	}

	result, err := s.gateway.CreatePayment(ctx, vendorReq)
	if err != nil {
		s.publishFailed(ctx, req, err)
		return nil, err
	}

	now := time.Now().UTC()
	rec := &PaymentRecord{
		ID:                  ulid.Make().String(),
		VendorName:          "kotapay",
		VendorTransactionID: result.TransactionID,
		IdempotencyKey:      result.IdempotencyKey,
		OrderNumber:         result.OrderNumber,
		AccountName:         req.AccountName,
		RoutingNumberMasked: maskNumber(req.RoutingNumber),
		AccountNumberMasked: maskNumber(req.AccountNumber),
		AccountType:         req.AccountType,
		Amount:              amount,
		EffectiveDate:       req.EffectiveDate,
		Description:         req.Description,
		Status:              result.Status,
		VendorResponse:      result.Raw,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting payment record: %w", err)
	}

	s.publish(ctx, events.EventPaymentCreated, rec.ID, events.PaymentCreatedData{
		PaymentID:     rec.ID,
		TransactionID: rec.VendorTransactionID,
		OrderNumber:   rec.OrderNumber,
		Amount:        rec.Amount.String(),
		EffectiveDate: rec.EffectiveDate,
		Initiator:     middleware.GetInitiator(ctx),
		Response:      result.Raw,
	})

	s.logger.Info("payment created",
		"payment_id", rec.ID,
		"transaction_id", rec.VendorTransactionID,
		"order_number", rec.OrderNumber,
	)

	return rec, nil
}

// GetPayment returns a stored payment record.
func (s *Service) GetPayment(ctx context.Context, id string) (*PaymentRecord, error) {
	return s.store.GetByID(ctx, id)
}

// ListPayments returns stored payment records, newest first.
func (s *Service) ListPayments(ctx context.Context, limit, offset int) ([]*PaymentRecord, error) {
	return s.store.List(ctx, limit, offset)
}

// VoidPayment cancels a pending payment with the vendor and marks the local
// record.
func (s *Service) VoidPayment(ctx context.Context, id string) (*PaymentRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusVoided {
		return rec, nil
	}

	response, err := s.gateway.VoidPayment(ctx, rec.VendorTransactionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.MarkVoided(ctx, rec.ID, now); err != nil {
		return nil, fmt.Errorf("marking payment voided: %w", err)
	}
	rec.Status = StatusVoided
	rec.VoidedAt = &now
	rec.UpdatedAt = now

	s.publish(ctx, events.EventPaymentVoided, rec.ID, events.PaymentVoidedData{
		PaymentID:     rec.ID,
		TransactionID: rec.VendorTransactionID,
		Initiator:     middleware.GetInitiator(ctx),
		Response:      response,
	})

	s.logger.Info("payment voided",
		"payment_id", rec.ID,
		"transaction_id", rec.VendorTransactionID,
	)

	return rec, nil
}

// FileAcknowledgementReport fetches the vendor's file acknowledgement report
// for the date range.
func (s *Service) FileAcknowledgementReport(ctx context.Context, startDate, endDate string) (*kotapay.ReportResult, error) {
	return s.gateway.FileAcknowledgementReport(ctx, startDate, endDate)
}

func (s *Service) publish(ctx context.Context, eventType, aggregateID string, data any) {
	event, err := events.NewEvent(eventType, "payment", aggregateID, data)
	if err != nil {
		s.logger.Error("building event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx), middleware.GetInitiator(ctx))

	if err := s.publisher.Publish(ctx, event); err != nil {
		// Event delivery is best effort; the payment record is the source
		// of truth.
		s.logger.Error("publishing event", "type", eventType, "error", err)
	}
}

func (s *Service) publishFailed(ctx context.Context, req *CreatePaymentRequest, cause error) {
	s.publish(ctx, events.EventPaymentFailed, "", events.PaymentFailedData{
		Amount:    req.Amount,
		Initiator: middleware.GetInitiator(ctx),
		Error:     cause.Error(),
	})
}
