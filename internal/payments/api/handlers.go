package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"achgateway/internal/common/api"
	"achgateway/internal/common/database"
	"achgateway/internal/kotapay"
	"achgateway/internal/payments"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *payments.Service
}

// NewHandler creates a new payments handler
func NewHandler(service *payments.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/payments", h.CreatePayment)
	r.Get("/payments", h.ListPayments)
	r.Get("/payments/{id}", h.GetPayment)
	r.Post("/payments/{id}/void", h.VoidPayment)

	r.Get("/reports/file-acknowledgement", h.FileAcknowledgementReport)

	return r
}

// CreatePayment handles POST /payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req payments.CreatePaymentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	rec, err := h.service.CreatePayment(r.Context(), &req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, rec)
}

// GetPayment handles GET /payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "payment not found")
			return
		}
		api.InternalError(w, "failed to load payment")
		return
	}

	api.WriteData(w, http.StatusOK, rec)
}

// ListPayments handles GET /payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	params := api.GetPaginationParams(r, 50, 200)

	records, err := h.service.ListPayments(r.Context(), params.Limit, params.Offset)
	if err != nil {
		api.InternalError(w, "failed to list payments")
		return
	}

	api.WritePaginated(w, records, &api.Pagination{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   int64(params.Offset + len(records)),
		HasMore: len(records) == params.Limit,
	})
}

// VoidPayment handles POST /payments/{id}/void
func (h *Handler) VoidPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.VoidPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "payment not found")
			return
		}
		writeGatewayError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, rec)
}

// FileAcknowledgementReport handles GET /reports/file-acknowledgement
func (h *Handler) FileAcknowledgementReport(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	result, err := h.service.FileAcknowledgementReport(r.Context(), startDate, endDate)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, result)
}

// writeGatewayError maps the client error taxonomy onto HTTP responses.
func writeGatewayError(w http.ResponseWriter, err error) {
	var validationErr *kotapay.ValidationError
	if errors.As(err, &validationErr) {
		api.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, api.ErrCodeValidation,
			"Validation failed", map[string]string{validationErr.Field: validationErr.Message})
		return
	}

	var rateLimitErr *kotapay.RateLimitError
	if errors.As(err, &rateLimitErr) {
		api.WriteError(w, http.StatusTooManyRequests, api.ErrCodeRateLimited, err.Error())
		return
	}

	var failedErr *kotapay.PaymentFailedError
	if errors.As(err, &failedErr) {
		api.WriteError(w, http.StatusBadGateway, api.ErrCodePaymentFailed, err.Error())
		return
	}

	var vendorErr *kotapay.VendorError
	var networkErr *kotapay.NetworkError
	var authErr *kotapay.AuthError
	var discoveryErr *kotapay.DiscoveryError
	if errors.As(err, &vendorErr) || errors.As(err, &networkErr) ||
		errors.As(err, &authErr) || errors.As(err, &discoveryErr) {
		api.WriteError(w, http.StatusBadGateway, api.ErrCodeVendorError, err.Error())
		return
	}

	if errors.Is(err, kotapay.ErrDisabled) {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrCodeServiceUnavail, err.Error())
		return
	}

	api.InternalError(w, "payment operation failed")
}
