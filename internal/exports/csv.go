package exports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"freedesk/services/support/internal/store"
)

var csvHeader = []string{
	"ticket_id",
	"created_at",
	"closed_at",
	"status",
	"channel",
	"sentiment",
	"category",
	"urgency",
	"summary",
	"messages_count",
	"resolution_duration_seconds",
	"resolution_duration_hours",
	"first_response_time_seconds",
	"avg_response_time_seconds",
}

// BuildCSV renders tickets as the dashboard export format. Internal
// agent notes are left out of every metric and count.
func BuildCSV(tickets []store.Ticket) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, ticket := range tickets {
		if err := writer.Write(ticketRow(ticket)); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func ticketRow(ticket store.Ticket) []string {
	messages := visibleMessages(ticket.Messages)

	sentiment, category, urgency, summary := "", "", "", ""
	if ticket.Analytics != nil {
		sentiment = ticket.Analytics.Sentiment
		category = ticket.Analytics.Category
		urgency = ticket.Analytics.Urgency
		summary = ticket.Analytics.Summary
	}

	closedAt := ""
	if ticket.ClosedAt != nil {
		closedAt = ticket.ClosedAt.UTC().Format(time.RFC3339)
	}

	resolutionSeconds, resolutionHours := "", ""
	if ticket.ResolutionSeconds != nil {
		resolutionSeconds = strconv.Itoa(*ticket.ResolutionSeconds)
		resolutionHours = fmt.Sprintf("%.2f", float64(*ticket.ResolutionSeconds)/3600)
	}

	firstResponse := ""
	if seconds, ok := firstResponseSeconds(messages); ok {
		firstResponse = strconv.Itoa(seconds)
	}

	avgResponse := ""
	if seconds, ok := averageResponseSeconds(messages); ok {
		avgResponse = strconv.Itoa(seconds)
	}

	return []string{
		ticket.ID,
		ticket.CreatedAt.UTC().Format(time.RFC3339),
		closedAt,
		ticket.Status,
		ticket.Channel,
		sentiment,
		category,
		urgency,
		summary,
		strconv.Itoa(len(messages)),
		resolutionSeconds,
		resolutionHours,
		firstResponse,
		avgResponse,
	}
}

func visibleMessages(messages []store.Message) []store.Message {
	visible := make([]store.Message, 0, len(messages))
	for _, message := range messages {
		if message.Internal {
			continue
		}
		visible = append(visible, message)
	}
	return visible
}

// firstResponseSeconds measures the gap between the first customer
// message and the first reply that follows it.
func firstResponseSeconds(messages []store.Message) (int, bool) {
	var userAt *time.Time
	for _, message := range messages {
		switch {
		case message.Role == store.RoleUser && userAt == nil:
			createdAt := message.CreatedAt
			userAt = &createdAt
		case isResponse(message.Role) && userAt != nil:
			return int(message.CreatedAt.Sub(*userAt).Seconds()), true
		}
	}
	return 0, false
}

// averageResponseSeconds averages the gap between each customer message
// and the reply that answers it.
func averageResponseSeconds(messages []store.Message) (int, bool) {
	var (
		lastUserAt *time.Time
		total      float64
		count      int
	)
	for _, message := range messages {
		switch {
		case message.Role == store.RoleUser:
			createdAt := message.CreatedAt
			lastUserAt = &createdAt
		case isResponse(message.Role) && lastUserAt != nil:
			total += message.CreatedAt.Sub(*lastUserAt).Seconds()
			count++
			lastUserAt = nil
		}
	}
	if count == 0 {
		return 0, false
	}
	return int(total / float64(count)), true
}

func isResponse(role string) bool {
	return role == store.RoleAssistant || role == store.RoleAgent
}
