package ticketstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrAttemptNotFound = errors.New("payment attempt not found")

	// ErrStatusConflict means the compare-and-swap lost: the row exists but
	// its current status is not the expected one. Callers treat this as
	// "someone else already transitioned the record", not as a failure.
	ErrStatusConflict = errors.New("status conflict")
)

// Store is the durable record of tickets and their payment attempts. Ticket
// status is only ever written through Transition; attempt rows are
// append-only and finalized once through FinalizeAttempt.
type Store struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *Store {
	return &Store{Bun: bunDB}
}

func (s *Store) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := s.Bun.NewInsert().Model(ticket).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create ticket %s: %w", ticket.TicketID, err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return &ticket, nil
}

// Transition applies a compare-and-swap status change: the update only
// matches when the row still holds the expected prior status. A zero row
// count against an existing ticket reports ErrStatusConflict, which is how
// concurrent finalizations lose cleanly.
func (s *Store) Transition(ctx context.Context, id string, from, to models.TicketStatus) (*models.Ticket, error) {
	res, err := s.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("ticket_id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("transition ticket %s %s->%s: %w", id, from, to, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition ticket %s: rows affected: %w", id, err)
	}
	if rows == 0 {
		// Distinguish a lost race from an unknown id.
		if _, err := s.GetTicket(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStatusConflict
	}

	return s.GetTicket(ctx, id)
}

// ---------------- PAYMENT ATTEMPTS ----------------

func (s *Store) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	_, err := s.Bun.NewInsert().Model(attempt).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create attempt %s: %w", attempt.AttemptID, err)
	}
	return nil
}

// LatestAttempt returns the most recent attempt for a ticket, or
// ErrAttemptNotFound when the ticket has none yet.
func (s *Store) LatestAttempt(ctx context.Context, ticketID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.Bun.NewSelect().
		Model(&attempt).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest attempt for ticket %s: %w", ticketID, err)
	}
	return &attempt, nil
}

func (s *Store) AttemptByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.Bun.NewSelect().
		Model(&attempt).
		Where("gateway_ref = ?", gatewayRef).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("attempt by gateway ref %s: %w", gatewayRef, err)
	}
	return &attempt, nil
}

// FinalizeAttempt moves an attempt from "initiated" to a terminal status
// with the same compare-and-swap shape as Transition. Because every attempt
// starts "initiated" and this is the only writer, at most one finalization
// sticks, which keeps confirmed attempts per ticket at <= 1.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, to models.AttemptStatus) error {
	res, err := s.Bun.NewUpdate().
		Model((*models.PaymentAttempt)(nil)).
		Set("status = ?", to).
		Where("attempt_id = ?", attemptID).
		Where("status = ?", models.AttemptInitiated).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalize attempt %s -> %s: %w", attemptID, to, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize attempt %s: rows affected: %w", attemptID, err)
	}
	if rows == 0 {
		exists, err := s.Bun.NewSelect().
			Model((*models.PaymentAttempt)(nil)).
			Where("attempt_id = ?", attemptID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("finalize attempt %s: %w", attemptID, err)
		}
		if !exists {
			return ErrAttemptNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

// CountConfirmedAttempts reports how many attempts for a ticket reached
// "confirmed". The invariant is that this never exceeds one.
func (s *Store) CountConfirmedAttempts(ctx context.Context, ticketID string) (int, error) {
	count, err := s.Bun.NewSelect().
		Model((*models.PaymentAttempt)(nil)).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.AttemptConfirmed).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count confirmed attempts for ticket %s: %w", ticketID, err)
	}
	return count, nil
}

// ListStalePending returns pending tickets with no payment activity since
// the cutoff: either their latest attempt predates it, or they never started
// checkout and were created before it.
func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.Bun.NewSelect().
		Model(&tickets).
		Where("status = ?", models.TicketPending).
		Where("created_at < ?", cutoff).
		Where("ticket_id NOT IN (SELECT ticket_id FROM payment_attempts WHERE created_at >= ?)", cutoff).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stale pending tickets: %w", err)
	}
	return tickets, nil
}
