package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTicket(status, channel string, createdAt time.Time) Ticket {
	return Ticket{
		ID:        uuid.NewString(),
		Status:    status,
		Channel:   channel,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Public:    true,
	}
}

func TestMemoryGetMissing(t *testing.T) {
	memory := NewMemory()

	_, err := memory.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySaveAndGet(t *testing.T) {
	memory := NewMemory()
	ticket := newTicket(StatusNew, "web", time.Now().UTC())
	ticket.Messages = []Message{{ID: uuid.NewString(), Role: RoleUser, Content: "bonjour"}}

	if err := memory.Save(context.Background(), ticket); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := memory.Get(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusNew || len(got.Messages) != 1 {
		t.Fatalf("unexpected ticket: %+v", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Messages[0].Content = "mutated"
	again, _ := memory.Get(context.Background(), ticket.ID)
	if again.Messages[0].Content != "bonjour" {
		t.Fatalf("stored message mutated: %q", again.Messages[0].Content)
	}
}

func TestMemoryListFilters(t *testing.T) {
	memory := NewMemory()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := newTicket(StatusClosed, "email", base.Add(-48*time.Hour))
	open := newTicket(StatusNew, "web", base)
	recent := newTicket(StatusNew, "web", base.Add(time.Hour))

	for _, ticket := range []Ticket{older, open, recent} {
		if err := memory.Save(context.Background(), ticket); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	byStatus, err := memory.List(context.Background(), Filter{Status: StatusNew})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byStatus) != 2 {
		t.Fatalf("expected 2 new tickets, got %d", len(byStatus))
	}
	if byStatus[0].ID != recent.ID {
		t.Fatalf("expected newest first, got %s", byStatus[0].ID)
	}

	byDate, err := memory.List(context.Background(), Filter{DateFrom: base})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byDate) != 2 {
		t.Fatalf("expected 2 tickets from %v, got %d", base, len(byDate))
	}

	limited, err := memory.List(context.Background(), Filter{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != recent.ID {
		t.Fatalf("expected only newest ticket, got %+v", limited)
	}
}

func TestMemoryUpdateStatusCloseAndReopen(t *testing.T) {
	memory := NewMemory()
	created := time.Now().UTC().Add(-90 * time.Second)
	ticket := newTicket(StatusInProgress, "web", created)

	if err := memory.Save(context.Background(), ticket); err != nil {
		t.Fatalf("save: %v", err)
	}

	closedAt := created.Add(60 * time.Second)
	closed, err := memory.UpdateStatus(context.Background(), ticket.ID, StatusClosed, &closedAt)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ClosedAt == nil || !closed.ClosedAt.Equal(closedAt) {
		t.Fatalf("closedAt not stamped: %+v", closed.ClosedAt)
	}
	if closed.ResolutionSeconds == nil || *closed.ResolutionSeconds != 60 {
		t.Fatalf("expected 60s resolution, got %+v", closed.ResolutionSeconds)
	}

	reopened, err := memory.UpdateStatus(context.Background(), ticket.ID, StatusInProgress, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ClosedAt != nil || reopened.ResolutionSeconds != nil {
		t.Fatalf("reopen should clear close fields: %+v", reopened)
	}
}

func TestMemoryAddMessage(t *testing.T) {
	memory := NewMemory()
	ticket := newTicket(StatusNew, "web", time.Now().UTC())

	if err := memory.Save(context.Background(), ticket); err != nil {
		t.Fatalf("save: %v", err)
	}

	err := memory.AddMessage(context.Background(), ticket.ID, Message{
		ID:      uuid.NewString(),
		Role:    RoleAgent,
		Content: "On s'en occupe.",
	})
	if err != nil {
		t.Fatalf("add message: %v", err)
	}

	got, _ := memory.Get(context.Background(), ticket.ID)
	if len(got.Messages) != 1 || got.Messages[0].Role != RoleAgent {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}

	if err := memory.AddMessage(context.Background(), "missing", Message{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpdateFields(t *testing.T) {
	memory := NewMemory()
	ticket := newTicket(StatusNew, "web", time.Now().UTC())

	if err := memory.Save(context.Background(), ticket); err != nil {
		t.Fatalf("save: %v", err)
	}

	agent := "marie"
	priority := "high"
	updated, err := memory.Update(context.Background(), ticket.ID, Update{
		AssignedTo: &agent,
		Priority:   &priority,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AssignedTo != "marie" || updated.Priority != "high" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.Status != StatusNew {
		t.Fatalf("status should be untouched, got %s", updated.Status)
	}
}

func TestMemoryDelete(t *testing.T) {
	memory := NewMemory()
	ticket := newTicket(StatusNew, "web", time.Now().UTC())

	if err := memory.Save(context.Background(), ticket); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := memory.Delete(context.Background(), ticket.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := memory.Delete(context.Background(), ticket.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
