package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"achgateway/internal/common/database"
	"achgateway/internal/common/events"
	"achgateway/internal/common/middleware"
	"achgateway/internal/kotapay"
)

type fakeGateway struct {
	createResult *kotapay.PaymentResult
	createErr    error
	createCalls  int
	voidResponse map[string]any
	voidErr      error
	voidCalls    int
	reportResult *kotapay.ReportResult
}

func (f *fakeGateway) CreatePayment(ctx context.Context, req *kotapay.PaymentRequest) (*kotapay.PaymentResult, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResult, nil
}

func (f *fakeGateway) GetPayment(ctx context.Context, transactionID string) (map[string]any, error) {
	return map[string]any{"transactionId": transactionID}, nil
}

func (f *fakeGateway) ListPayments(ctx context.Context, params kotapay.ListPaymentsParams) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeGateway) VoidPayment(ctx context.Context, transactionID string) (map[string]any, error) {
	f.voidCalls++
	if f.voidErr != nil {
		return nil, f.voidErr
	}
	return f.voidResponse, nil
}

func (f *fakeGateway) FileAcknowledgementReport(ctx context.Context, startDate, endDate string) (*kotapay.ReportResult, error) {
	return f.reportResult, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*PaymentRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*PaymentRecord)}
}

func (f *fakeStore) Create(ctx context.Context, rec *PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetByIdempotencyKey(ctx context.Context, key string) (*PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.IdempotencyKey == key {
			return rec, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) List(ctx context.Context, limit, offset int) ([]*PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*PaymentRecord
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) MarkVoided(ctx context.Context, id string, voidedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return database.ErrNotFound
	}
	rec.Status = StatusVoided
	rec.VoidedAt = &voidedAt
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event *events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) byType(eventType string) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(gateway *fakeGateway) (*Service, *fakeStore, *fakePublisher) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(gateway, store, publisher, logger), store, publisher
}

func initiatorContext(initiator string) context.Context {
	return context.WithValue(context.Background(), middleware.InitiatorKey, initiator)
}

func createRequest() *CreatePaymentRequest {
	return &CreatePaymentRequest{
		AccountName:   "Acme Supplies",
		RoutingNumber: "021000021",
		AccountNumber: "12345678",
		AccountType:   "checking",
		Amount:        "250.00",
		EffectiveDate: "2026-08-25",
	}
}

func TestServiceCreatePayment(t *testing.T) {
	gateway := &fakeGateway{
		createResult: &kotapay.PaymentResult{
			TransactionID:  "TX-1",
			Status:         "Processed",
			IdempotencyKey: "IK-1",
			OrderNumber:    "ACH-1",
			Raw:            map[string]any{"status": "Processed"},
		},
	}
	svc, store, publisher := newTestService(gateway)

	rec, err := svc.CreatePayment(initiatorContext("ops"), createRequest())
	require.NoError(t, err)
	require.Equal(t, "kotapay", rec.VendorName)
	require.Equal(t, "TX-1", rec.VendorTransactionID)
	require.Equal(t, "ACH-1", rec.OrderNumber)
	require.Equal(t, "****0021", rec.RoutingNumberMasked)
	require.Equal(t, "****5678", rec.AccountNumberMasked)
	require.True(t, rec.Amount.Equal(decimal.RequireFromString("250.00")))

	stored, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.VendorTransactionID, stored.VendorTransactionID)

	created := publisher.byType(events.EventPaymentCreated)
	require.Len(t, created, 1)

	var data events.PaymentCreatedData
	require.NoError(t, created[0].DecodeData(&data))
	require.Equal(t, "TX-1", data.TransactionID)
	require.Equal(t, "ops", data.Initiator)
}

func TestServiceCreatePaymentGatewayFailurePublishesEvent(t *testing.T) {
	gateway := &fakeGateway{
		createErr: &kotapay.PaymentFailedError{Status: "Failed", Result: map[string]any{}},
	}
	svc, store, publisher := newTestService(gateway)

	_, err := svc.CreatePayment(initiatorContext("ops"), createRequest())
	var failed *kotapay.PaymentFailedError
	require.ErrorAs(t, err, &failed)

	records, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, records)

	failedEvents := publisher.byType(events.EventPaymentFailed)
	require.Len(t, failedEvents, 1)
	require.Empty(t, publisher.byType(events.EventPaymentCreated))
}

func TestServiceCreatePaymentIdempotencyReplay(t *testing.T) {
	gateway := &fakeGateway{
		createResult: &kotapay.PaymentResult{
			TransactionID:  "TX-1",
			Status:         "Processed",
			IdempotencyKey: "IK-1",
			OrderNumber:    "ACH-1",
		},
	}
	svc, _, _ := newTestService(gateway)

	req := createRequest()
	req.IdempotencyKey = "IK-1"

	first, err := svc.CreatePayment(initiatorContext("ops"), req)
	require.NoError(t, err)

	second, err := svc.CreatePayment(initiatorContext("ops"), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, gateway.createCalls)
}

func TestServiceCreatePaymentRejectsBadAmount(t *testing.T) {
	svc, _, _ := newTestService(&fakeGateway{})

	req := createRequest()
	req.Amount = "two hundred"

	_, err := svc.CreatePayment(initiatorContext("ops"), req)
	var verr *kotapay.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "amount", verr.Field)
}

func TestServiceVoidPayment(t *testing.T) {
	gateway := &fakeGateway{
		createResult: &kotapay.PaymentResult{
			TransactionID:  "TX-1",
			Status:         "Processed",
			IdempotencyKey: "IK-1",
			OrderNumber:    "ACH-1",
		},
		voidResponse: map[string]any{"status": "Voided"},
	}
	svc, _, publisher := newTestService(gateway)

	rec, err := svc.CreatePayment(initiatorContext("ops"), createRequest())
	require.NoError(t, err)

	voided, err := svc.VoidPayment(initiatorContext("ops"), rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoided, voided.Status)
	require.NotNil(t, voided.VoidedAt)
	require.Equal(t, 1, gateway.voidCalls)

	require.Len(t, publisher.byType(events.EventPaymentVoided), 1)
}

func TestServiceVoidPaymentAlreadyVoided(t *testing.T) {
	gateway := &fakeGateway{
		createResult: &kotapay.PaymentResult{
			TransactionID:  "TX-1",
			Status:         "Processed",
			IdempotencyKey: "IK-1",
			OrderNumber:    "ACH-1",
		},
		voidResponse: map[string]any{"status": "Voided"},
	}
	svc, _, _ := newTestService(gateway)

	rec, err := svc.CreatePayment(initiatorContext("ops"), createRequest())
	require.NoError(t, err)

	_, err = svc.VoidPayment(initiatorContext("ops"), rec.ID)
	require.NoError(t, err)
	_, err = svc.VoidPayment(initiatorContext("ops"), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 1, gateway.voidCalls)
}

func TestServiceVoidPaymentUnknownID(t *testing.T) {
	svc, _, _ := newTestService(&fakeGateway{})

	_, err := svc.VoidPayment(initiatorContext("ops"), "nope")
	require.True(t, errors.Is(err, database.ErrNotFound))
}
