package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-registration/internal/events"
	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/ticketstore"

	"github.com/google/uuid"
)

var (
	// ErrNotPending is returned when checkout is requested for a ticket that
	// already left the pending state.
	ErrNotPending = errors.New("ticket is not pending")

	// ErrNotRetryable is returned when a retry is requested for a ticket that
	// is not failed or expired.
	ErrNotRetryable = errors.New("ticket is not retryable")

	// ErrCheckoutUnavailable surfaces after gateway retries are exhausted.
	// The ticket stays pending and the payer can try again.
	ErrCheckoutUnavailable = errors.New("checkout temporarily unavailable")
)

// ValidationError rejects bad input before any state is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	Transition(ctx context.Context, id string, from, to models.TicketStatus) (*models.Ticket, error)
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	LatestAttempt(ctx context.Context, ticketID string) (*models.PaymentAttempt, error)
	AttemptByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentAttempt, error)
	FinalizeAttempt(ctx context.Context, attemptID string, to models.AttemptStatus) error
	ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Ticket, error)
}

type EventCatalog interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ClassByName(ctx context.Context, eventID, name string) (*models.TicketClass, error)
}

type ReviewQueue interface {
	Enqueue(ctx context.Context, ticketID, gatewayRef string, status models.TicketStatus, reason string) (*models.ReviewCase, error)
}

type Publisher interface {
	PublishTicketPaid(ticket models.Ticket) error
	PublishTicketFailed(ticket models.Ticket) error
	PublishTicketExpired(ticket models.Ticket) error
	PublishReviewCase(reviewCase models.ReviewCase) error
}

type Options struct {
	CheckoutTimeout time.Duration
	RetryMax        int
	RetryBackoff    time.Duration
}

// Engine owns the ticket state machine. Every status write funnels through
// the store's compare-and-swap, so duplicate callbacks, double-clicks and
// sweep races all resolve to exactly one winner.
type Engine struct {
	Store   TicketStore
	Catalog EventCatalog
	Gateway gateway.Gateway
	Review  ReviewQueue
	Kafka   Publisher

	logger *logger.Logger
	opts   Options
}

func NewEngine(store TicketStore, catalog EventCatalog, gw gateway.Gateway, review ReviewQueue, kafka Publisher, log *logger.Logger, opts Options) *Engine {
	if opts.CheckoutTimeout <= 0 {
		opts.CheckoutTimeout = 30 * time.Minute
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &Engine{
		Store:   store,
		Catalog: catalog,
		Gateway: gw,
		Review:  review,
		Kafka:   kafka,
		logger:  log,
		opts:    opts,
	}
}

// Register validates the request against the event catalog, computes the
// amount and creates a pending ticket. Nothing is sent to the gateway yet.
func (e *Engine) Register(ctx context.Context, req models.RegisterRequest) (*models.Ticket, error) {
	if strings.TrimSpace(req.PurchaserName) == "" {
		return nil, &ValidationError{Field: "purchaser_name", Reason: "must not be empty"}
	}
	if !strings.Contains(req.PurchaserEmail, "@") {
		return nil, &ValidationError{Field: "purchaser_email", Reason: "must be a valid email address"}
	}
	if req.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	if _, err := e.Catalog.GetEvent(ctx, req.EventID); err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			return nil, &ValidationError{Field: "event_id", Reason: "unknown event"}
		}
		return nil, err
	}

	class, err := e.Catalog.ClassByName(ctx, req.EventID, req.ClassName)
	if err != nil {
		if errors.Is(err, events.ErrClassNotFound) {
			return nil, &ValidationError{Field: "class_name", Reason: "unknown ticket class for event"}
		}
		return nil, err
	}

	now := time.Now()
	ticket := &models.Ticket{
		TicketID:       uuid.NewString(),
		EventID:        req.EventID,
		PurchaserName:  req.PurchaserName,
		PurchaserEmail: req.PurchaserEmail,
		PurchaserPhone: req.PurchaserPhone,
		ClassName:      class.Name,
		Quantity:       req.Quantity,
		AmountMinor:    class.PriceMinor * int64(req.Quantity),
		Currency:       class.Currency,
		Status:         models.TicketPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.Store.CreateTicket(ctx, ticket); err != nil {
		return nil, err
	}

	e.logger.LogTicket("REGISTER", ticket.TicketID, fmt.Sprintf("Created pending ticket for event %s (%d x %s)", req.EventID, req.Quantity, class.Name))
	return ticket, nil
}

// StartCheckout asks the gateway for a payment intent and records a new
// attempt. If an unresolved attempt already exists, its redirect is returned
// instead of creating a second intent, which makes double-clicks harmless.
func (e *Engine) StartCheckout(ctx context.Context, ticketID string) (*models.CheckoutResponse, error) {
	ticket, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketPending {
		return nil, fmt.Errorf("%w: ticket %s has status %s", ErrNotPending, ticketID, ticket.Status)
	}

	latest, err := e.Store.LatestAttempt(ctx, ticketID)
	if err != nil && !errors.Is(err, ticketstore.ErrAttemptNotFound) {
		return nil, err
	}
	if latest != nil && latest.Status == models.AttemptInitiated {
		e.logger.LogTicket("CHECKOUT", ticketID, fmt.Sprintf("Reusing unresolved attempt %s", latest.AttemptID))
		return &models.CheckoutResponse{
			TicketID:    ticketID,
			AttemptID:   latest.AttemptID,
			RedirectURL: latest.RedirectURL,
		}, nil
	}

	intent, err := e.createIntentWithRetry(ctx, gateway.IntentRequest{
		TicketID:    ticket.TicketID,
		AmountMinor: ticket.AmountMinor,
		Currency:    ticket.Currency,
		Name:        ticket.PurchaserName,
		Email:       ticket.PurchaserEmail,
		Phone:       ticket.PurchaserPhone,
	})
	if err != nil {
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		AttemptID:   uuid.NewString(),
		TicketID:    ticket.TicketID,
		GatewayRef:  intent.GatewayRef,
		RedirectURL: intent.RedirectURL,
		AmountMinor: ticket.AmountMinor,
		Status:      models.AttemptInitiated,
		CreatedAt:   time.Now(),
	}
	if err := e.Store.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	e.logger.LogPayment("INITIATED", intent.GatewayRef, fmt.Sprintf("Attempt %s for ticket %s", attempt.AttemptID, ticketID))
	return &models.CheckoutResponse{
		TicketID:    ticket.TicketID,
		AttemptID:   attempt.AttemptID,
		RedirectURL: intent.RedirectURL,
	}, nil
}

func (e *Engine) createIntentWithRetry(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	backoff := e.opts.RetryBackoff
	var lastErr error

	for attempt := 0; attempt < e.opts.RetryMax; attempt++ {
		intent, err := e.Gateway.CreateIntent(ctx, req)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, gateway.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
		e.logger.Warn("GATEWAY", fmt.Sprintf("Intent attempt %d/%d for ticket %s failed: %v", attempt+1, e.opts.RetryMax, req.TicketID, err))

		if attempt < e.opts.RetryMax-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	// The ticket was never touched; it stays pending and retryable.
	return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, lastErr)
}

// Retry moves a failed or expired ticket back to pending and starts a fresh
// checkout with a new attempt.
func (e *Engine) Retry(ctx context.Context, ticketID string) (*models.CheckoutResponse, error) {
	ticket, err := e.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case models.TicketFailed, models.TicketExpired:
		if _, err := e.Store.Transition(ctx, ticketID, ticket.Status, models.TicketPending); err != nil {
			if errors.Is(err, ticketstore.ErrStatusConflict) {
				// Another retry raced us; fall through if it landed on pending.
				current, getErr := e.Store.GetTicket(ctx, ticketID)
				if getErr != nil {
					return nil, getErr
				}
				if current.Status != models.TicketPending {
					return nil, fmt.Errorf("%w: ticket %s has status %s", ErrNotRetryable, ticketID, current.Status)
				}
			} else {
				return nil, err
			}
		}
		e.logger.LogTicket("RETRY", ticketID, fmt.Sprintf("Reset from %s to pending", ticket.Status))
	case models.TicketPending:
		// Already retryable; just continue into checkout.
	default:
		return nil, fmt.Errorf("%w: ticket %s has status %s", ErrNotRetryable, ticketID, ticket.Status)
	}

	return e.StartCheckout(ctx, ticketID)
}

// ApplyCallback applies a gateway outcome to its ticket exactly once.
// Duplicate deliveries lose the compare-and-swap and are discarded without
// error; a confirmation landing on a closed ticket goes to manual review.
func (e *Engine) ApplyCallback(ctx context.Context, payload []byte, signature string) error {
	cb, err := e.Gateway.ParseCallback(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			e.logger.LogSecurity("WEBHOOK_SIGNATURE", "Rejected callback with invalid signature")
			return err
		}
		if errors.Is(err, gateway.ErrUnsupportedEvent) {
			e.logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring callback: %v", err))
			return nil
		}
		return err
	}

	attempt, err := e.Store.AttemptByGatewayRef(ctx, cb.GatewayRef)
	if err != nil {
		if errors.Is(err, ticketstore.ErrAttemptNotFound) {
			e.logger.Warn("WEBHOOK", fmt.Sprintf("Callback for unknown gateway ref %s, discarding", cb.GatewayRef))
			return nil
		}
		return err
	}

	switch cb.Outcome {
	case gateway.OutcomeConfirmed:
		return e.applyConfirmed(ctx, attempt)
	case gateway.OutcomeDeclined:
		return e.applyDeclined(ctx, attempt)
	default:
		return fmt.Errorf("unknown callback outcome %q for ref %s", cb.Outcome, cb.GatewayRef)
	}
}

func (e *Engine) applyConfirmed(ctx context.Context, attempt *models.PaymentAttempt) error {
	ticket, err := e.Store.Transition(ctx, attempt.TicketID, models.TicketPending, models.TicketPaid)
	if err == nil {
		if err := e.Store.FinalizeAttempt(ctx, attempt.AttemptID, models.AttemptConfirmed); err != nil && !errors.Is(err, ticketstore.ErrStatusConflict) {
			e.logger.Error("WEBHOOK", fmt.Sprintf("Failed to finalize attempt %s: %v", attempt.AttemptID, err))
		}
		e.logger.LogPayment("CONFIRMED", attempt.GatewayRef, fmt.Sprintf("Ticket %s paid", ticket.TicketID))
		if err := e.Kafka.PublishTicketPaid(*ticket); err != nil {
			e.logger.Error("KAFKA", fmt.Sprintf("Publish ticket.paid for %s: %v", ticket.TicketID, err))
		}
		return nil
	}
	if !errors.Is(err, ticketstore.ErrStatusConflict) {
		return err
	}

	current, getErr := e.Store.GetTicket(ctx, attempt.TicketID)
	if getErr != nil {
		return getErr
	}

	if current.Status == models.TicketPaid {
		// At-least-once delivery: the first copy won the CAS, this one no-ops.
		e.logger.Debug("WEBHOOK", fmt.Sprintf("Duplicate confirmation for ticket %s, discarding", current.TicketID))
		return nil
	}

	// Money moved but the ticket is already failed/expired. Never honored
	// silently, never dropped: an operator reconciles it.
	e.logger.Warn("WEBHOOK", fmt.Sprintf("Confirmation for %s ticket %s routed to manual review", current.Status, current.TicketID))
	reviewCase, enqErr := e.Review.Enqueue(ctx, current.TicketID, attempt.GatewayRef, current.Status,
		fmt.Sprintf("gateway confirmed payment but ticket is %s", current.Status))
	if enqErr != nil {
		return fmt.Errorf("enqueue review case for ticket %s: %w", current.TicketID, enqErr)
	}
	if err := e.Kafka.PublishReviewCase(*reviewCase); err != nil {
		e.logger.Error("KAFKA", fmt.Sprintf("Publish ticket.review for %s: %v", current.TicketID, err))
	}
	return nil
}

func (e *Engine) applyDeclined(ctx context.Context, attempt *models.PaymentAttempt) error {
	ticket, err := e.Store.Transition(ctx, attempt.TicketID, models.TicketPending, models.TicketFailed)
	if err == nil {
		if err := e.Store.FinalizeAttempt(ctx, attempt.AttemptID, models.AttemptDeclined); err != nil && !errors.Is(err, ticketstore.ErrStatusConflict) {
			e.logger.Error("WEBHOOK", fmt.Sprintf("Failed to finalize attempt %s: %v", attempt.AttemptID, err))
		}
		e.logger.LogPayment("DECLINED", attempt.GatewayRef, fmt.Sprintf("Ticket %s failed", ticket.TicketID))
		if err := e.Kafka.PublishTicketFailed(*ticket); err != nil {
			e.logger.Error("KAFKA", fmt.Sprintf("Publish ticket.failed for %s: %v", ticket.TicketID, err))
		}
		return nil
	}
	if !errors.Is(err, ticketstore.ErrStatusConflict) {
		return err
	}

	// Duplicate decline, or the ticket already closed some other way. A
	// decline carries no money, so discarding is always safe.
	e.logger.Debug("WEBHOOK", fmt.Sprintf("Discarding decline for ticket %s after lost transition", attempt.TicketID))
	return nil
}

// ExpireStale sweeps pending tickets whose payment window has lapsed. The
// compare-and-swap guarantees a callback racing the sweep resolves to
// exactly one of paid or expired.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-e.opts.CheckoutTimeout)
	stale, err := e.Store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, ticket := range stale {
		updated, err := e.Store.Transition(ctx, ticket.TicketID, models.TicketPending, models.TicketExpired)
		if err != nil {
			if errors.Is(err, ticketstore.ErrStatusConflict) {
				// A late callback won; nothing to do.
				continue
			}
			return expired, err
		}
		expired++

		if latest, err := e.Store.LatestAttempt(ctx, ticket.TicketID); err == nil && latest.Status == models.AttemptInitiated {
			if err := e.Store.FinalizeAttempt(ctx, latest.AttemptID, models.AttemptTimedOut); err != nil && !errors.Is(err, ticketstore.ErrStatusConflict) {
				e.logger.Error("SWEEP", fmt.Sprintf("Failed to time out attempt %s: %v", latest.AttemptID, err))
			}
		}

		e.logger.LogTicket("EXPIRE", ticket.TicketID, "Pending ticket expired after checkout timeout")
		if err := e.Kafka.PublishTicketExpired(*updated); err != nil {
			e.logger.Error("KAFKA", fmt.Sprintf("Publish ticket.expired for %s: %v", ticket.TicketID, err))
		}
	}
	return expired, nil
}
