package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/query"
	"ms-registration/internal/recon"
	"ms-registration/internal/ticketstore"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

type CheckoutService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.Ticket, error)
	StartCheckout(ctx context.Context, ticketID string) (*models.CheckoutResponse, error)
	Retry(ctx context.Context, ticketID string) (*models.CheckoutResponse, error)
	ApplyCallback(ctx context.Context, payload []byte, signature string) error
}

type QueryService interface {
	Status(ctx context.Context, ticketID string) (*models.StatusResponse, error)
	Receipt(ctx context.Context, ticketID string) (*models.ReceiptView, error)
}

type Handler struct {
	Checkout CheckoutService
	Query    QueryService
	Logger   *logger.Logger
}

func NewHandler(checkout CheckoutService, querySvc QueryService, log *logger.Logger) *Handler {
	return &Handler{Checkout: checkout, Query: querySvc, Logger: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

// Register creates a pending ticket for an event registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	ticket, err := h.Checkout.Register(r.Context(), req)
	if err != nil {
		var vErr *recon.ValidationError
		if errors.As(err, &vErr) {
			h.Logger.Warn("API", fmt.Sprintf("Register: validation failed: %v", vErr))
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", vErr.Error()))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Register: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to create registration", "internal error"))
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Registration created", models.RegisterResponse{
		TicketID:    ticket.TicketID,
		AmountMinor: ticket.AmountMinor,
		Currency:    ticket.Currency,
		Status:      ticket.Status,
	}))
}

// StartCheckout returns the gateway redirect for a pending ticket.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	h.Logger.Info("API", fmt.Sprintf("StartCheckout: ticketId=%s", ticketID))

	resp, err := h.Checkout.StartCheckout(r.Context(), ticketID)
	if err != nil {
		h.respondCheckoutError(w, ticketID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Checkout started", resp))
}

// Retry re-opens a failed or expired ticket and starts a fresh checkout.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	h.Logger.Info("API", fmt.Sprintf("Retry: ticketId=%s", ticketID))

	resp, err := h.Checkout.Retry(r.Context(), ticketID)
	if err != nil {
		h.respondCheckoutError(w, ticketID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Checkout restarted", resp))
}

func (h *Handler) respondCheckoutError(w http.ResponseWriter, ticketID string, err error) {
	switch {
	case errors.Is(err, ticketstore.ErrTicketNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", ticketID))
	case errors.Is(err, recon.ErrNotPending), errors.Is(err, recon.ErrNotRetryable):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Ticket is not in a valid state for checkout", err.Error()))
	case errors.Is(err, recon.ErrCheckoutUnavailable):
		// Transient: the ticket is untouched and the payer can try again.
		h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Checkout temporarily unavailable, please try again", ""))
	default:
		h.Logger.Error("API", fmt.Sprintf("Checkout failed for ticket %s: %v", ticketID, err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Checkout failed", "internal error"))
	}
}

// Webhook receives gateway callbacks. Duplicates are acknowledged with 200
// so the gateway stops retrying; only authentication failures get a 4xx.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Webhook: failed to read payload: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", ""))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("Signature")
	}

	if err := h.Checkout.ApplyCallback(r.Context(), payload, signature); err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid signature", ""))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Webhook: processing failed: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing error", ""))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Status reports the ticket lifecycle state for polling UIs.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	resp, err := h.Query.Status(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, ticketstore.ErrTicketNotFound) {
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", ticketID))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Status: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch status", "internal error"))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Ticket status", resp))
}

// Receipt renders the paid-ticket receipt.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	receipt, err := h.Query.Receipt(r.Context(), ticketID)
	if err != nil {
		switch {
		case errors.Is(err, ticketstore.ErrTicketNotFound):
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", ticketID))
		case errors.Is(err, query.ErrReceiptUnavailable):
			h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Receipt not available yet", ""))
		default:
			h.Logger.Error("API", fmt.Sprintf("Receipt: %v", err))
			h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch receipt", "internal error"))
		}
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Receipt", receipt))
}
