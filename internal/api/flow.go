package api

import (
	"context"
	"log"
	"strings"
	"time"

	"freedesk/services/support/internal/ai"
	"freedesk/services/support/internal/analytics"
	"freedesk/services/support/internal/queue"
	"freedesk/services/support/internal/store"
)

const (
	degradedReply  = "Je prends note de votre demande. Un agent va vous repondre sous peu."
	agentSignature = "\n-- Agent Freedesk"
)

type flowResult struct {
	reply     string
	analytics *analytics.Record
}

// runSupportFlow produces the automated side of a customer turn. The
// collaborator order is a contract the frontends depend on: canned
// reply first, then analytics, then the AI client, so a matched canned
// reply never spends an upstream call.
func (h *Handler) runSupportFlow(ctx context.Context, ticketID string, thread []store.Message) flowResult {
	lastContent := ""
	if len(thread) > 0 {
		lastContent = thread[len(thread)-1].Content
	}

	if h.replies != nil {
		if reply, ok := h.replies.Match(lastContent); ok {
			h.metrics.smartRepliesTotal.Add(1)
			return flowResult{reply: reply}
		}
	}

	turns := chatTurns(thread)

	var record *analytics.Record
	if h.analyzer != nil {
		analyzed := h.analyzer.Analyze(ctx, turns)
		record = &analyzed
		if analyzed.RetentionAlert {
			h.metrics.retentionAlertsTotal.Add(1)
			if err := h.alerts.EnqueueRetentionAlert(ctx, queue.RetentionAlert{
				TicketID:   ticketID,
				ChurnRisk:  analyzed.ChurnRisk,
				Summary:    analyzed.Summary,
				DetectedAt: time.Now().UTC(),
			}); err != nil {
				log.Printf("retention alert enqueue failed ticket=%s err=%v", ticketID, err)
			}
		}
	}

	reply := degradedReply
	if h.chat != nil {
		text, err := h.chat.Chat(ctx, turns, ai.ChatOptions{})
		if err != nil {
			h.metrics.aiDegradedTotal.Add(1)
			log.Printf("ai reply failed ticket=%s err=%v", ticketID, err)
		} else {
			reply = normalizeAgentSignature(text)
		}
	}

	return flowResult{reply: reply, analytics: record}
}

func chatTurns(messages []store.Message) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, message := range messages {
		if message.Internal {
			continue
		}
		role := "user"
		if message.Role == store.RoleAssistant || message.Role == store.RoleAgent {
			role = "assistant"
		}
		turns = append(turns, ai.Turn{Role: role, Content: message.Content})
	}
	return turns
}

// normalizeAgentSignature makes sure automated replies end with the
// support signature without ever doubling it.
func normalizeAgentSignature(text string) string {
	if strings.HasSuffix(strings.TrimSpace(text), "-- Agent Freedesk") {
		return text
	}
	return strings.TrimRight(text, " \t\r\n") + agentSignature
}
