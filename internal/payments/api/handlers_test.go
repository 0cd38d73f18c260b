package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"achgateway/internal/common/database"
	"achgateway/internal/common/events"
	"achgateway/internal/kotapay"
	"achgateway/internal/payments"
)

type stubGateway struct {
	createResult *kotapay.PaymentResult
	createErr    error
	reportResult *kotapay.ReportResult
	reportErr    error
}

func (s *stubGateway) CreatePayment(ctx context.Context, req *kotapay.PaymentRequest) (*kotapay.PaymentResult, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResult, nil
}

func (s *stubGateway) GetPayment(ctx context.Context, transactionID string) (map[string]any, error) {
	return map[string]any{"transactionId": transactionID}, nil
}

func (s *stubGateway) ListPayments(ctx context.Context, params kotapay.ListPaymentsParams) ([]map[string]any, error) {
	return nil, nil
}

func (s *stubGateway) VoidPayment(ctx context.Context, transactionID string) (map[string]any, error) {
	return map[string]any{"status": "Voided"}, nil
}

func (s *stubGateway) FileAcknowledgementReport(ctx context.Context, startDate, endDate string) (*kotapay.ReportResult, error) {
	if s.reportErr != nil {
		return nil, s.reportErr
	}
	return s.reportResult, nil
}

type stubStore struct {
	records map[string]*payments.PaymentRecord
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*payments.PaymentRecord)}
}

func (s *stubStore) Create(ctx context.Context, rec *payments.PaymentRecord) error {
	s.records[rec.ID] = rec
	return nil
}

func (s *stubStore) GetByID(ctx context.Context, id string) (*payments.PaymentRecord, error) {
	if rec, ok := s.records[id]; ok {
		return rec, nil
	}
	return nil, database.ErrNotFound
}

func (s *stubStore) GetByIdempotencyKey(ctx context.Context, key string) (*payments.PaymentRecord, error) {
	for _, rec := range s.records {
		if rec.IdempotencyKey == key {
			return rec, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *stubStore) List(ctx context.Context, limit, offset int) ([]*payments.PaymentRecord, error) {
	var out []*payments.PaymentRecord
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubStore) MarkVoided(ctx context.Context, id string, voidedAt time.Time) error {
	rec, ok := s.records[id]
	if !ok {
		return database.ErrNotFound
	}
	rec.Status = payments.StatusVoided
	rec.VoidedAt = &voidedAt
	return nil
}

type stubPublisher struct{}

func (s *stubPublisher) Publish(ctx context.Context, event *events.Event) error { return nil }

func newTestHandler(gateway *stubGateway) (*Handler, *stubStore) {
	store := newStubStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := payments.NewService(gateway, store, &stubPublisher{}, logger)
	return NewHandler(svc), store
}

func processedGateway() *stubGateway {
	return &stubGateway{
		createResult: &kotapay.PaymentResult{
			TransactionID:  "TX-1",
			Status:         "Processed",
			IdempotencyKey: "IK-1",
			OrderNumber:    "ACH-1",
		},
	}
}

const createBody = `{
	"account_name": "Acme Supplies",
	"routing_number": "021000021",
	"account_number": "12345678",
	"account_type": "checking",
	"amount": "250.00",
	"effective_date": "2026-08-25"
}`

func TestCreatePaymentHandler(t *testing.T) {
	h, _ := newTestHandler(processedGateway())

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(createBody))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Data payments.PaymentRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "TX-1", resp.Data.VendorTransactionID)
	require.Equal(t, "****5678", resp.Data.AccountNumberMasked)
}

func TestCreatePaymentHandlerMissingFields(t *testing.T) {
	h, _ := newTestHandler(processedGateway())

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":"1.00"}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}

func TestCreatePaymentHandlerVendorDecline(t *testing.T) {
	h, _ := newTestHandler(&stubGateway{
		createErr: &kotapay.PaymentFailedError{Status: "Failed", Result: map[string]any{}},
	})

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(createBody))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYMENT_FAILED")
}

func TestCreatePaymentHandlerRateLimited(t *testing.T) {
	h, _ := newTestHandler(&stubGateway{
		createErr: &kotapay.RateLimitError{Limit: 1000, Window: "2026-08-24-10"},
	})

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(createBody))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")
}

func TestGetPaymentHandlerNotFound(t *testing.T) {
	h, _ := newTestHandler(processedGateway())

	req := httptest.NewRequest(http.MethodGet, "/payments/unknown", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVoidPaymentHandler(t *testing.T) {
	h, store := newTestHandler(processedGateway())

	now := time.Now().UTC()
	store.records["PAY-1"] = &payments.PaymentRecord{
		ID:                  "PAY-1",
		VendorTransactionID: "TX-1",
		Status:              "Processed",
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	req := httptest.NewRequest(http.MethodPost, "/payments/PAY-1/void", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data payments.PaymentRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, payments.StatusVoided, resp.Data.Status)
}

func TestFileAcknowledgementReportHandler(t *testing.T) {
	h, _ := newTestHandler(&stubGateway{
		reportResult: &kotapay.ReportResult{
			RowCount: 2,
			Rows: []map[string]any{
				{"file": "a.ach"},
				{"file": "b.ach"},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/reports/file-acknowledgement?start_date=2026-08-01", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data kotapay.ReportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Data.RowCount)
}

func TestFileAcknowledgementReportHandlerDiscoveryFailure(t *testing.T) {
	h, _ := newTestHandler(&stubGateway{
		reportErr: &kotapay.DiscoveryError{Attempted: []string{"fileAck"}, Err: context.DeadlineExceeded},
	})

	req := httptest.NewRequest(http.MethodGet, "/reports/file-acknowledgement", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "VENDOR_ERROR")
}
