package store

import (
	"time"

	"freedesk/services/support/internal/analytics"
)

// Ticket statuses as exposed on the wire. The French labels are part of
// the client contract.
const (
	StatusNew        = "nouveau"
	StatusInProgress = "en cours"
	StatusClosed     = "ferme"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAgent     = "agent"
)

type Ticket struct {
	ID                string            `json:"ticketId"`
	Status            string            `json:"status"`
	Channel           string            `json:"channel"`
	CustomerName      string            `json:"customerName"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	ClosedAt          *time.Time        `json:"closedAt,omitempty"`
	ResolutionSeconds *int              `json:"resolutionSeconds,omitempty"`
	AssignedTo        string            `json:"assignedTo,omitempty"`
	Priority          string            `json:"priority,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Public            bool              `json:"public"`
	Analytics         *analytics.Record `json:"analytics,omitempty"`
	Messages          []Message         `json:"messages"`
}

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Internal  bool      `json:"internal,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status   string
	Channel  string
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
}

// Update carries the admin-editable fields; nil pointers leave the field
// untouched.
type Update struct {
	Status     *string
	AssignedTo *string
	Priority   *string
	Notes      *string
	Analytics  *analytics.Record
	UpdatedBy  string
}
