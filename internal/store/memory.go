package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps tickets in process memory. It backs tests and local runs
// where no DATABASE_URL is configured.
type Memory struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
}

func NewMemory() *Memory {
	return &Memory{tickets: make(map[string]Ticket)}
}

func (m *Memory) Save(ctx context.Context, ticket Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (m *Memory) List(ctx context.Context, filter Filter) ([]Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tickets := make([]Ticket, 0, len(m.tickets))
	for _, ticket := range m.tickets {
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && ticket.Channel != filter.Channel {
			continue
		}
		if !filter.DateFrom.IsZero() && ticket.CreatedAt.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && ticket.CreatedAt.After(filter.DateTo) {
			continue
		}
		tickets = append(tickets, cloneTicket(ticket))
	}

	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})

	if filter.Limit > 0 && len(tickets) > filter.Limit {
		tickets = tickets[:filter.Limit]
	}

	return tickets, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id, status string, closedAt *time.Time) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}

	applyStatus(&ticket, status, closedAt)
	ticket.UpdatedAt = time.Now().UTC()
	m.tickets[id] = ticket

	return cloneTicket(ticket), nil
}

func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.tickets[id]
	return ok, nil
}

func (m *Memory) AddMessage(ctx context.Context, id string, message Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return ErrNotFound
	}

	ticket.Messages = append(ticket.Messages, message)
	ticket.UpdatedAt = time.Now().UTC()
	m.tickets[id] = ticket

	return nil
}

func (m *Memory) Update(ctx context.Context, id string, update Update) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}

	if update.Status != nil {
		var closedAt *time.Time
		if *update.Status == StatusClosed {
			now := time.Now().UTC()
			closedAt = &now
		}
		applyStatus(&ticket, *update.Status, closedAt)
	}
	if update.AssignedTo != nil {
		ticket.AssignedTo = *update.AssignedTo
	}
	if update.Priority != nil {
		ticket.Priority = *update.Priority
	}
	if update.Notes != nil {
		ticket.Notes = *update.Notes
	}
	if update.Analytics != nil {
		ticket.Analytics = update.Analytics
	}
	ticket.UpdatedAt = time.Now().UTC()
	m.tickets[id] = ticket

	return cloneTicket(ticket), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(m.tickets, id)
	return nil
}

func (m *Memory) Health(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() {}

func cloneTicket(ticket Ticket) Ticket {
	clone := ticket
	if ticket.Messages != nil {
		clone.Messages = make([]Message, len(ticket.Messages))
		copy(clone.Messages, ticket.Messages)
	}
	if ticket.Analytics != nil {
		record := *ticket.Analytics
		clone.Analytics = &record
	}
	return clone
}
