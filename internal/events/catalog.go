package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-registration/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrClassNotFound = errors.New("ticket class not found")
)

// Catalog is the read side of the event listing: registration validates
// event and ticket class against it. Content management writes these rows
// elsewhere; this service only seeds them through migrations.
type Catalog struct {
	Bun *bun.DB
}

func NewCatalog(bunDB *bun.DB) *Catalog {
	return &Catalog{Bun: bunDB}
}

func (c *Catalog) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := c.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &event, nil
}

// ClassByName resolves a ticket class by its display name within an event.
func (c *Catalog) ClassByName(ctx context.Context, eventID, name string) (*models.TicketClass, error) {
	var class models.TicketClass
	err := c.Bun.NewSelect().
		Model(&class).
		Where("event_id = ?", eventID).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("class %q for event %s: %w", name, eventID, err)
	}
	return &class, nil
}

// AddEvent and AddClass exist for seeding and tests; the admin site owns the
// real write path.
func (c *Catalog) AddEvent(ctx context.Context, event *models.Event) error {
	_, err := c.Bun.NewInsert().Model(event).Exec(ctx)
	if err != nil {
		return fmt.Errorf("add event %s: %w", event.ID, err)
	}
	return nil
}

func (c *Catalog) AddClass(ctx context.Context, class *models.TicketClass) error {
	_, err := c.Bun.NewInsert().Model(class).Exec(ctx)
	if err != nil {
		return fmt.Errorf("add ticket class %s: %w", class.ID, err)
	}
	return nil
}
