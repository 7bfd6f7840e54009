package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-registration/internal/api"
	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/query"
	"ms-registration/internal/recon"
	"ms-registration/internal/ticketstore"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Register(ctx context.Context, req models.RegisterRequest) (*models.Ticket, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockCheckoutService) StartCheckout(ctx context.Context, ticketID string) (*models.CheckoutResponse, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutResponse), args.Error(1)
}

func (m *MockCheckoutService) Retry(ctx context.Context, ticketID string) (*models.CheckoutResponse, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutResponse), args.Error(1)
}

func (m *MockCheckoutService) ApplyCallback(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Status(ctx context.Context, ticketID string) (*models.StatusResponse, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatusResponse), args.Error(1)
}

func (m *MockQueryService) Receipt(ctx context.Context, ticketID string) (*models.ReceiptView, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReceiptView), args.Error(1)
}

func setupRouter(checkout *MockCheckoutService, querySvc *MockQueryService) *chi.Mux {
	handler := api.NewHandler(checkout, querySvc, logger.NewTestLogger())

	r := chi.NewRouter()
	r.Post("/api/v1/registrations", handler.Register)
	r.Post("/api/v1/tickets/{ticketId}/checkout", handler.StartCheckout)
	r.Post("/api/v1/tickets/{ticketId}/retry", handler.Retry)
	r.Post("/api/v1/payments/webhook", handler.Webhook)
	r.Get("/api/v1/tickets/{ticketId}", handler.Status)
	r.Get("/api/v1/tickets/{ticketId}/receipt", handler.Receipt)
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterEndpoint(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))

	checkout.On("Register", mock.Anything, mock.Anything).Return(&models.Ticket{
		TicketID:    "tck-1",
		AmountMinor: 100000,
		Currency:    "INR",
		Status:      models.TicketPending,
	}, nil)

	body, _ := json.Marshal(models.RegisterRequest{
		EventID:        "evt-1",
		PurchaserName:  "Asha Rao",
		PurchaserEmail: "asha@example.com",
		ClassName:      "General",
		Quantity:       2,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/registrations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestRegisterEndpointValidationFailure(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))

	checkout.On("Register", mock.Anything, mock.Anything).Return(nil, &recon.ValidationError{Field: "quantity", Reason: "must be positive"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registrations", bytes.NewReader([]byte(`{"quantity":0}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
}

func TestRegisterEndpointMalformedBody(t *testing.T) {
	router := setupRouter(new(MockCheckoutService), new(MockQueryService))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registrations", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartCheckoutEndpoint(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))

	checkout.On("StartCheckout", mock.Anything, "tck-1").Return(&models.CheckoutResponse{
		TicketID:    "tck-1",
		AttemptID:   "att-1",
		RedirectURL: "https://pay.example.com/pi_1",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/tck-1/checkout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"unknown ticket", ticketstore.ErrTicketNotFound, http.StatusNotFound},
		{"not pending", recon.ErrNotPending, http.StatusConflict},
		{"gateway down", recon.ErrCheckoutUnavailable, http.StatusServiceUnavailable},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checkout := new(MockCheckoutService)
			router := setupRouter(checkout, new(MockQueryService))
			checkout.On("StartCheckout", mock.Anything, "tck-1").Return(nil, tc.err)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/tck-1/checkout", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestRetryEndpointErrorMapping(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))
	checkout.On("Retry", mock.Anything, "tck-1").Return(nil, recon.ErrNotRetryable)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/tck-1/retry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))

	payload := []byte(`{"intent_id":"pi_1","status":"confirmed"}`)
	checkout.On("ApplyCallback", mock.Anything, payload, "sig-123").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Signature", "sig-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	checkout.AssertExpectations(t)
}

func TestWebhookEndpointInvalidSignature(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))
	checkout.On("ApplyCallback", mock.Anything, mock.Anything, mock.Anything).Return(gateway.ErrInvalidSignature)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Signature", "forged")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookEndpointPrefersStripeSignatureHeader(t *testing.T) {
	checkout := new(MockCheckoutService)
	router := setupRouter(checkout, new(MockQueryService))
	checkout.On("ApplyCallback", mock.Anything, mock.Anything, "t=1,v1=abc").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	req.Header.Set("Signature", "ignored")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	checkout.AssertExpectations(t)
}

func TestStatusEndpoint(t *testing.T) {
	querySvc := new(MockQueryService)
	router := setupRouter(new(MockCheckoutService), querySvc)

	querySvc.On("Status", mock.Anything, "tck-1").Return(&models.StatusResponse{
		TicketID:  "tck-1",
		Status:    models.TicketPaid,
		UpdatedAt: time.Now(),
	}, nil)
	querySvc.On("Status", mock.Anything, "missing").Return(nil, ticketstore.ErrTicketNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/tck-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tickets/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiptEndpoint(t *testing.T) {
	querySvc := new(MockQueryService)
	router := setupRouter(new(MockCheckoutService), querySvc)

	querySvc.On("Receipt", mock.Anything, "tck-paid").Return(&models.ReceiptView{
		TicketID:  "tck-paid",
		EventName: "Community Tech Meetup",
	}, nil)
	querySvc.On("Receipt", mock.Anything, "tck-pending").Return(nil, query.ErrReceiptUnavailable)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/tck-paid/receipt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tickets/tck-pending/receipt", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
