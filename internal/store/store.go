package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a ticket id has no stored document.
var ErrNotFound = errors.New("ticket not found")

// Store is the durable ticket persistence consumed by the API layer.
type Store interface {
	Save(ctx context.Context, ticket Ticket) error
	Get(ctx context.Context, id string) (Ticket, error)
	List(ctx context.Context, filter Filter) ([]Ticket, error)
	UpdateStatus(ctx context.Context, id, status string, closedAt *time.Time) (Ticket, error)
	Exists(ctx context.Context, id string) (bool, error)
	AddMessage(ctx context.Context, id string, message Message) error
	Update(ctx context.Context, id string, update Update) (Ticket, error)
	Delete(ctx context.Context, id string) error
	Health(ctx context.Context) error
	Close()
}

// applyStatus mutates a ticket's status fields in one place so the
// postgres and memory implementations stay in agreement: closing stamps
// the close time and resolution duration, reopening clears both.
func applyStatus(ticket *Ticket, status string, closedAt *time.Time) {
	previous := ticket.Status
	ticket.Status = status

	if status == StatusClosed && closedAt != nil {
		ticket.ClosedAt = closedAt
		seconds := int(closedAt.Sub(ticket.CreatedAt).Seconds())
		if seconds < 0 {
			seconds = 0
		}
		ticket.ResolutionSeconds = &seconds
	}

	if status != StatusClosed && previous == StatusClosed {
		ticket.ClosedAt = nil
		ticket.ResolutionSeconds = nil
	}
}
