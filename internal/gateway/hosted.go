package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"

	"github.com/google/uuid"
)

// HostedClient talks to an HMAC-authenticated hosted-checkout provider:
// intents are created server to server, the payer is redirected to the
// provider's page, and the outcome comes back on a signed webhook.
type HostedClient struct {
	baseURL  string
	clientID string
	secret   []byte
	client   *http.Client
	log      *logger.Logger
}

func NewHostedClient(cfg config.GatewayConfig, log *logger.Logger) *HostedClient {
	return &HostedClient{
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		secret:   []byte(cfg.Secret),
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		log:      log,
	}
}

type hostedIntentRequest struct {
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
}

type hostedIntentResponse struct {
	IntentID    string `json:"intent_id"`
	RedirectURL string `json:"redirect_url"`
}

func (h *HostedClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body, err := json.Marshal(hostedIntentRequest{
		Reference:   req.TicketID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build intent request: %w", err)
	}
	for k, v := range h.signedHeaders("/v1/intents", body) {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.log.Warn("GATEWAY", fmt.Sprintf("Intent request failed for ticket %s: %v", req.TicketID, err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		h.log.Warn("GATEWAY", fmt.Sprintf("Intent request for ticket %s got status %d", req.TicketID, resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway rejected intent for ticket %s: status %d: %s", req.TicketID, resp.StatusCode, respBody)
	}

	var intentResp hostedIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intentResp); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	if intentResp.IntentID == "" || intentResp.RedirectURL == "" {
		return nil, fmt.Errorf("gateway returned incomplete intent for ticket %s", req.TicketID)
	}

	return &Intent{GatewayRef: intentResp.IntentID, RedirectURL: intentResp.RedirectURL}, nil
}

// signedHeaders builds the provider's HMAC header set: a SHA-256 digest of
// the body, then an HMAC-SHA256 over the canonical request components.
func (h *HostedClient) signedHeaders(requestPath string, body []byte) map[string]string {
	requestID := uuid.NewString()
	requestTimestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	digestSum := sha256.Sum256(body)
	digest := base64.StdEncoding.EncodeToString(digestSum[:])

	component := "Client-Id:" + h.clientID + "\n" +
		"Request-Id:" + requestID + "\n" +
		"Request-Timestamp:" + requestTimestamp + "\n" +
		"Request-Target:" + requestPath + "\n" +
		"Digest:" + digest

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(component))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"Client-Id":         h.clientID,
		"Request-Id":        requestID,
		"Request-Timestamp": requestTimestamp,
		"Digest":            digest,
		"Signature":         "HMACSHA256=" + signature,
		"Content-Type":      "application/json",
	}
}

type hostedCallback struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

// ParseCallback authenticates a webhook body against its signature header
// (base64 HMAC-SHA256 of the raw payload) before reading anything from it.
func (h *HostedClient) ParseCallback(payload []byte, signature string) (*Callback, error) {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var cb hostedCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("decode callback payload: %w", err)
	}
	if cb.IntentID == "" {
		return nil, fmt.Errorf("callback payload missing intent id")
	}

	switch cb.Status {
	case "confirmed", "succeeded", "paid":
		return &Callback{GatewayRef: cb.IntentID, Outcome: OutcomeConfirmed}, nil
	case "declined", "failed":
		return &Callback{GatewayRef: cb.IntentID, Outcome: OutcomeDeclined}, nil
	default:
		return nil, fmt.Errorf("%w: status %q", ErrUnsupportedEvent, cb.Status)
	}
}

// Sign computes the callback signature for a payload. Exported for tests and
// for local gateway simulators.
func (h *HostedClient) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
