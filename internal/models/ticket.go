package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending TicketStatus = "pending"
	TicketPaid    TicketStatus = "paid"
	TicketFailed  TicketStatus = "failed"
	TicketExpired TicketStatus = "expired"
)

type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptDeclined  AttemptStatus = "declined"
	AttemptTimedOut  AttemptStatus = "timed_out"
)

// Ticket is a registration attempt moving through the payment lifecycle.
// Status is only ever written through the store's compare-and-swap
// transition; AmountMinor is fixed at creation.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID       string       `bun:"ticket_id,pk" json:"ticket_id"`
	EventID        string       `bun:"event_id,notnull" json:"event_id"`
	PurchaserName  string       `bun:"purchaser_name,notnull" json:"purchaser_name"`
	PurchaserEmail string       `bun:"purchaser_email,notnull" json:"purchaser_email"`
	PurchaserPhone string       `bun:"purchaser_phone" json:"purchaser_phone,omitempty"`
	ClassName      string       `bun:"class_name,notnull" json:"class_name"`
	Quantity       int          `bun:"quantity,notnull" json:"quantity"`
	AmountMinor    int64        `bun:"amount_minor,notnull" json:"amount_minor"`
	Currency       string       `bun:"currency,notnull" json:"currency"`
	Status         TicketStatus `bun:"status,notnull" json:"status"`
	CreatedAt      time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}

// PaymentAttempt is one gateway-facing attempt to collect payment for a
// ticket. Rows are append-only; only the status field is finalized, once,
// through the store's compare-and-swap.
type PaymentAttempt struct {
	bun.BaseModel `bun:"table:payment_attempts"`

	AttemptID   string        `bun:"attempt_id,pk" json:"attempt_id"`
	TicketID    string        `bun:"ticket_id,notnull" json:"ticket_id"`
	GatewayRef  string        `bun:"gateway_ref,notnull" json:"gateway_ref"`
	RedirectURL string        `bun:"redirect_url" json:"redirect_url,omitempty"`
	AmountMinor int64         `bun:"amount_minor,notnull" json:"amount_minor"`
	Status      AttemptStatus `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time     `bun:"created_at,notnull" json:"created_at"`
}
