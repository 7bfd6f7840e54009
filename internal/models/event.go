package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Venue     string    `bun:"venue" json:"venue,omitempty"`
	StartDate time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate   time.Time `bun:"end_date,notnull" json:"end_date"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// TicketClass is a priced tier of an event ("General", "VIP", ...).
// Prices are integer minor currency units.
type TicketClass struct {
	bun.BaseModel `bun:"table:ticket_classes"`

	ID         string `bun:"id,pk" json:"id"`
	EventID    string `bun:"event_id,notnull" json:"event_id"`
	Name       string `bun:"name,notnull" json:"name"`
	PriceMinor int64  `bun:"price_minor,notnull" json:"price_minor"`
	Currency   string `bun:"currency,notnull" json:"currency"`
}
