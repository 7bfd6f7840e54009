package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrCaseNotFound = errors.New("review case not found")

// Queue is the operator-facing backlog of gateway outcomes that could not be
// applied automatically, e.g. a confirmed payment landing on an expired
// ticket. Money moved but local state disagrees, so a human decides.
type Queue struct {
	Bun *bun.DB
}

func NewQueue(bunDB *bun.DB) *Queue {
	return &Queue{Bun: bunDB}
}

func (q *Queue) Enqueue(ctx context.Context, ticketID, gatewayRef string, status models.TicketStatus, reason string) (*models.ReviewCase, error) {
	c := &models.ReviewCase{
		CaseID:       uuid.NewString(),
		TicketID:     ticketID,
		GatewayRef:   gatewayRef,
		TicketStatus: status,
		Reason:       reason,
		CreatedAt:    time.Now(),
	}
	if _, err := q.Bun.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue review case for ticket %s: %w", ticketID, err)
	}
	return c, nil
}

func (q *Queue) ListOpen(ctx context.Context) ([]models.ReviewCase, error) {
	var cases []models.ReviewCase
	err := q.Bun.NewSelect().
		Model(&cases).
		Where("resolved = ?", false).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open review cases: %w", err)
	}
	return cases, nil
}

func (q *Queue) Resolve(ctx context.Context, caseID, note string) error {
	res, err := q.Bun.NewUpdate().
		Model((*models.ReviewCase)(nil)).
		Set("resolved = ?", true).
		Set("note = ?", note).
		Set("resolved_at = ?", time.Now()).
		Where("case_id = ?", caseID).
		Where("resolved = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resolve review case %s: %w", caseID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve review case %s: rows affected: %w", caseID, err)
	}
	if rows == 0 {
		exists, err := q.Bun.NewSelect().
			Model((*models.ReviewCase)(nil)).
			Where("case_id = ?", caseID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("resolve review case %s: %w", caseID, err)
		}
		if !exists {
			return ErrCaseNotFound
		}
		// Already resolved; resolving twice is a no-op.
	}
	return nil
}
