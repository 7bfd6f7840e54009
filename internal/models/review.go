package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ReviewCase records a gateway outcome that could not be applied to its
// ticket, most importantly a confirmed payment arriving after expiry. These
// are never dropped: an operator reconciles them by hand.
type ReviewCase struct {
	bun.BaseModel `bun:"table:review_cases"`

	CaseID       string       `bun:"case_id,pk" json:"case_id"`
	TicketID     string       `bun:"ticket_id,notnull" json:"ticket_id"`
	GatewayRef   string       `bun:"gateway_ref,notnull" json:"gateway_ref"`
	TicketStatus TicketStatus `bun:"ticket_status,notnull" json:"ticket_status"`
	Reason       string       `bun:"reason,notnull" json:"reason"`
	Resolved     bool         `bun:"resolved,notnull,default:false" json:"resolved"`
	Note         string       `bun:"note" json:"note,omitempty"`
	CreatedAt    time.Time    `bun:"created_at,notnull" json:"created_at"`
	ResolvedAt   time.Time    `bun:"resolved_at,nullzero" json:"resolved_at,omitempty"`
}
