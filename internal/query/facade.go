package query

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/models"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrReceiptUnavailable is returned for any ticket that has not reached
// paid. The payer sees it as "no receipt yet", never as an internal state.
var ErrReceiptUnavailable = errors.New("receipt unavailable until ticket is paid")

type TicketReader interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
}

type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// Facade is the read-only projection layer: ticket status for polling UIs
// and receipt rendering once payment has settled. It never mutates state.
type Facade struct {
	Tickets TicketReader
	Events  EventReader
}

func NewFacade(tickets TicketReader, events EventReader) *Facade {
	return &Facade{Tickets: tickets, Events: events}
}

func (f *Facade) Status(ctx context.Context, ticketID string) (*models.StatusResponse, error) {
	ticket, err := f.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &models.StatusResponse{
		TicketID:  ticket.TicketID,
		Status:    ticket.Status,
		UpdatedAt: ticket.UpdatedAt,
	}, nil
}

// Receipt builds the paid-ticket view, including an entry QR code encoding
// the ticket id.
func (f *Facade) Receipt(ctx context.Context, ticketID string) (*models.ReceiptView, error) {
	ticket, err := f.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketPaid {
		return nil, fmt.Errorf("%w: ticket %s is %s", ErrReceiptUnavailable, ticketID, ticket.Status)
	}

	event, err := f.Events.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}

	qr, err := qrcode.Encode(ticket.TicketID, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("generate receipt QR for ticket %s: %w", ticketID, err)
	}

	return &models.ReceiptView{
		TicketID:       ticket.TicketID,
		EventName:      event.Name,
		PurchaserName:  ticket.PurchaserName,
		PurchaserEmail: ticket.PurchaserEmail,
		ClassName:      ticket.ClassName,
		Quantity:       ticket.Quantity,
		AmountMinor:    ticket.AmountMinor,
		Currency:       ticket.Currency,
		PaidAt:         ticket.UpdatedAt,
		QRCode:         qr,
	}, nil
}
