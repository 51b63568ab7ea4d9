package hub

import "time"

// Event is the tagged payload delivered to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Message *MessagePayload `json:"message,omitempty"`
	Ticket  any             `json:"ticket,omitempty"`
	Status  string          `json:"status,omitempty"`
}

type MessagePayload struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author,omitempty"`
}

func NewMessageEvent(message MessagePayload) Event {
	return Event{Type: "new_message", Message: &message}
}

func TicketCreatedEvent(ticket any) Event {
	return Event{Type: "ticket_created", Ticket: ticket}
}

func TicketUpdateEvent(ticket any) Event {
	return Event{Type: "ticket_update", Ticket: ticket}
}

func StatusUpdatedEvent(status string) Event {
	return Event{Type: "status_updated", Status: status}
}

func TicketSnapshotEvent(ticket any) Event {
	return Event{Type: "ticket_snapshot", Ticket: ticket}
}
