package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHostedClient(baseURL string) *gateway.HostedClient {
	return gateway.NewHostedClient(config.GatewayConfig{
		BaseURL:        baseURL,
		ClientID:       "client-test",
		Secret:         "test-secret",
		RequestTimeout: 2 * time.Second,
	}, logger.NewTestLogger())
}

func intentRequest() gateway.IntentRequest {
	return gateway.IntentRequest{
		TicketID:    "tck-123",
		AmountMinor: 50000,
		Currency:    "INR",
		Name:        "Asha Rao",
		Email:       "asha@example.com",
	}
}

func TestCreateIntentSendsSignedRequest(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"intent_id":    "pi_abc",
			"redirect_url": "https://pay.example.com/pi_abc",
		})
	}))
	defer server.Close()

	client := newHostedClient(server.URL)
	intent, err := client.CreateIntent(context.Background(), intentRequest())
	require.NoError(t, err)

	assert.Equal(t, "pi_abc", intent.GatewayRef)
	assert.Equal(t, "https://pay.example.com/pi_abc", intent.RedirectURL)

	require.NotNil(t, captured)
	assert.Equal(t, "/v1/intents", captured.URL.Path)
	assert.Equal(t, "client-test", captured.Header.Get("Client-Id"))
	assert.NotEmpty(t, captured.Header.Get("Request-Id"))
	assert.NotEmpty(t, captured.Header.Get("Request-Timestamp"))
	assert.NotEmpty(t, captured.Header.Get("Digest"))
	assert.Contains(t, captured.Header.Get("Signature"), "HMACSHA256=")
}

func TestCreateIntentServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newHostedClient(server.URL)
	_, err := client.CreateIntent(context.Background(), intentRequest())
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCreateIntentConnectionErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := newHostedClient(server.URL)
	_, err := client.CreateIntent(context.Background(), intentRequest())
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCreateIntentRejectionIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newHostedClient(server.URL)
	_, err := client.CreateIntent(context.Background(), intentRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrUnavailable)
}

func TestParseCallbackVerifiesSignature(t *testing.T) {
	client := newHostedClient("http://unused")
	payload := []byte(`{"intent_id":"pi_abc","status":"confirmed"}`)

	cb, err := client.ParseCallback(payload, client.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "pi_abc", cb.GatewayRef)
	assert.Equal(t, gateway.OutcomeConfirmed, cb.Outcome)

	_, err = client.ParseCallback(payload, "forged-signature")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)

	// Valid signature over a different body does not transfer.
	other := []byte(`{"intent_id":"pi_abc","status":"declined"}`)
	_, err = client.ParseCallback(other, client.Sign(payload))
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestParseCallbackOutcomes(t *testing.T) {
	client := newHostedClient("http://unused")

	cases := []struct {
		status  string
		outcome gateway.Outcome
	}{
		{"confirmed", gateway.OutcomeConfirmed},
		{"succeeded", gateway.OutcomeConfirmed},
		{"paid", gateway.OutcomeConfirmed},
		{"declined", gateway.OutcomeDeclined},
		{"failed", gateway.OutcomeDeclined},
	}
	for _, tc := range cases {
		payload := []byte(`{"intent_id":"pi_1","status":"` + tc.status + `"}`)
		cb, err := client.ParseCallback(payload, client.Sign(payload))
		require.NoError(t, err, tc.status)
		assert.Equal(t, tc.outcome, cb.Outcome, tc.status)
	}

	pending := []byte(`{"intent_id":"pi_1","status":"processing"}`)
	_, err := client.ParseCallback(pending, client.Sign(pending))
	assert.ErrorIs(t, err, gateway.ErrUnsupportedEvent)
}
