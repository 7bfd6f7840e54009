package models

import "time"

// RegisterRequest is the boundary DTO for creating a ticket. All fields are
// validated before the reconciliation engine sees them.
type RegisterRequest struct {
	EventID        string `json:"event_id"`
	PurchaserName  string `json:"purchaser_name"`
	PurchaserEmail string `json:"purchaser_email"`
	PurchaserPhone string `json:"purchaser_phone,omitempty"`
	ClassName      string `json:"class_name"`
	Quantity       int    `json:"quantity"`
}

type RegisterResponse struct {
	TicketID    string       `json:"ticket_id"`
	AmountMinor int64        `json:"amount_minor"`
	Currency    string       `json:"currency"`
	Status      TicketStatus `json:"status"`
}

type CheckoutResponse struct {
	TicketID    string `json:"ticket_id"`
	AttemptID   string `json:"attempt_id"`
	RedirectURL string `json:"redirect_url"`
}

type StatusResponse struct {
	TicketID  string       `json:"ticket_id"`
	Status    TicketStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ReceiptView is available only once a ticket is paid.
type ReceiptView struct {
	TicketID       string    `json:"ticket_id"`
	EventName      string    `json:"event_name"`
	PurchaserName  string    `json:"purchaser_name"`
	PurchaserEmail string    `json:"purchaser_email"`
	ClassName      string    `json:"class_name"`
	Quantity       int       `json:"quantity"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	PaidAt         time.Time `json:"paid_at"`
	QRCode         []byte    `json:"qr_code,omitempty"`
}
