package gateway

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks transient gateway trouble (network error, 5xx).
	// The reconciliation engine retries these with backoff.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrInvalidSignature means the callback payload could not be
	// authenticated. Callers must reject it without touching any ticket.
	ErrInvalidSignature = errors.New("invalid callback signature")

	// ErrUnsupportedEvent is returned for authentic callbacks that carry no
	// payment outcome; they are acknowledged and ignored.
	ErrUnsupportedEvent = errors.New("unsupported callback event")
)

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDeclined  Outcome = "declined"
)

type IntentRequest struct {
	TicketID    string
	AmountMinor int64
	Currency    string
	Name        string
	Email       string
	Phone       string
}

type Intent struct {
	GatewayRef  string
	RedirectURL string
}

type Callback struct {
	GatewayRef string
	Outcome    Outcome
}

// Gateway is the external payment-provider boundary. Implementations own
// the provider wire format; the rest of the service only sees refs and
// outcomes.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	ParseCallback(payload []byte, signature string) (*Callback, error)
}
