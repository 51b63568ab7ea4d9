package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"freedesk/services/support/internal/exports"
	"freedesk/services/support/internal/hub"
	"freedesk/services/support/internal/store"
)

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 100
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	tickets, err := h.store.List(r.Context(), store.Filter{
		Status:  strings.TrimSpace(query.Get("status")),
		Channel: strings.TrimSpace(query.Get("channel")),
		Limit:   limit,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}

	assignedTo := strings.TrimSpace(query.Get("assignedTo"))
	urgency := strings.TrimSpace(query.Get("urgency"))

	now := time.Now().UTC()
	enriched := make([]map[string]any, 0, len(tickets))
	for _, ticket := range tickets {
		if assignedTo != "" && ticket.AssignedTo != assignedTo {
			continue
		}
		if urgency != "" && (ticket.Analytics == nil || ticket.Analytics.Urgency != urgency) {
			continue
		}

		entry := map[string]any{
			"ticket":       ticket,
			"ageHours":     roundHours(now.Sub(ticket.CreatedAt)),
			"messageCount": len(ticket.Messages),
		}
		if len(ticket.Messages) > 0 {
			entry["lastMessage"] = ticket.Messages[len(ticket.Messages)-1]
		}
		enriched = append(enriched, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"tickets": enriched})
}

func (h *Handler) getTicketFull(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket})
}

type updateTicketRequest struct {
	Status     *string `json:"status"`
	AssignedTo *string `json:"assignedTo"`
	Priority   *string `json:"priority"`
	Notes      *string `json:"notes"`
	UpdatedBy  string  `json:"updatedBy"`
}

func (h *Handler) updateTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	payload := updateTicketRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if payload.Status != nil && !validStatus(*payload.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	ticket, err := h.store.Update(r.Context(), ticketID, store.Update{
		Status:     payload.Status,
		AssignedTo: payload.AssignedTo,
		Priority:   payload.Priority,
		Notes:      payload.Notes,
		UpdatedBy:  payload.UpdatedBy,
	})
	if err != nil {
		writeLookupError(w, err)
		return
	}

	h.hub.Broadcast(r.Context(), ticketID, hub.TicketUpdateEvent(ticket))

	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket})
}

type agentMessageRequest struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Internal  bool   `json:"internal"`
	AgentName string `json:"agentName"`
}

func (h *Handler) addAgentMessage(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	payload := agentMessageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	author := strings.TrimSpace(payload.Author)
	if author == "" {
		author = strings.TrimSpace(payload.AgentName)
	}
	if author == "" {
		author = "Agent"
	}

	message := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleAgent,
		Content:   content,
		Author:    author,
		Internal:  payload.Internal,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AddMessage(r.Context(), ticketID, message); err != nil {
		writeLookupError(w, err)
		return
	}
	h.metrics.messagesTotal.Add(1)

	// First agent touch moves a fresh ticket into "en cours".
	statusMoved := false
	if ticket.Status == store.StatusNew {
		inProgress := store.StatusInProgress
		update := store.Update{Status: &inProgress}
		if !payload.Internal {
			update.AssignedTo = &author
		}
		if _, err := h.store.Update(r.Context(), ticketID, update); err != nil {
			writeLookupError(w, err)
			return
		}
		statusMoved = true
	}

	if !payload.Internal {
		h.broadcastMessage(r.Context(), ticketID, message)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":             "Message ajoute avec succes",
		"messageId":           message.ID,
		"ticketStatusUpdated": statusMoved,
	})
}

type assignTicketRequest struct {
	AgentEmail string `json:"agentEmail"`
}

func (h *Handler) assignTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	payload := assignTicketRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	agentEmail := strings.TrimSpace(payload.AgentEmail)
	if agentEmail == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agentEmail is required"})
		return
	}

	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	update := store.Update{AssignedTo: &agentEmail}
	if ticket.Status == store.StatusNew {
		inProgress := store.StatusInProgress
		update.Status = &inProgress
	}

	updated, err := h.store.Update(r.Context(), ticketID, update)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	h.hub.Broadcast(r.Context(), ticketID, hub.TicketUpdateEvent(updated))

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Ticket assigne a " + agentEmail,
		"ticketId":   ticketID,
		"assignedTo": agentEmail,
	})
}

func (h *Handler) deleteTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	if err := h.store.Delete(r.Context(), ticketID); err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Ticket supprime avec succes",
		"ticketId":  ticketID,
		"deletedAt": time.Now().UTC(),
	})
}

func (h *Handler) exportTicketsCSV(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.Filter{
		Status:  strings.TrimSpace(query.Get("status")),
		Channel: strings.TrimSpace(query.Get("channel")),
	}

	for param, target := range map[string]*time.Time{
		"dateFrom": &filter.DateFrom,
		"dateTo":   &filter.DateTo,
	} {
		raw := strings.TrimSpace(query.Get(param))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": param + " must be an RFC3339 timestamp"})
			return
		}
		*target = parsed
	}

	tickets, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	payload, err := exports.BuildCSV(tickets)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	name := "tickets_export_" + time.Now().UTC().Format("20060102T150405Z") + ".csv"
	h.archiveExport(r, name, payload)
	writeCSV(w, name, payload)
}

func (h *Handler) exportSingleTicketCSV(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	payload, err := exports.BuildCSV([]store.Ticket{ticket})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	name := "ticket_" + ticketID + ".csv"
	h.archiveExport(r, name, payload)
	writeCSV(w, name, payload)
}

func (h *Handler) archiveExport(r *http.Request, name string, payload []byte) {
	objectKey := "exports/" + time.Now().UTC().Format("2006/01/02") + "/" + name
	if err := h.archive.StoreCSV(r.Context(), objectKey, payload); err != nil {
		if !errors.Is(err, exports.ErrNotConfigured) {
			log.Printf("export archive failed key=%s err=%v", objectKey, err)
		}
		return
	}
	h.metrics.exportsArchivedTotal.Add(1)
}

func writeCSV(w http.ResponseWriter, name string, payload []byte) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=`+name)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func validStatus(status string) bool {
	switch status {
	case store.StatusNew, store.StatusInProgress, store.StatusClosed:
		return true
	}
	return false
}

func roundHours(d time.Duration) float64 {
	return float64(int(d.Hours()*10)) / 10
}
