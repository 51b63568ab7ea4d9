package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"freedesk/services/support/internal/ai"
	"freedesk/services/support/internal/analytics"
	"freedesk/services/support/internal/exports"
	"freedesk/services/support/internal/hub"
	"freedesk/services/support/internal/queue"
	"freedesk/services/support/internal/store"
)

// ChatClient produces a conversational reply for a ticket thread.
type ChatClient interface {
	Chat(ctx context.Context, turns []ai.Turn, opts ai.ChatOptions) (string, error)
}

// TicketAnalyzer extracts sentiment/urgency analytics from a thread.
type TicketAnalyzer interface {
	Analyze(ctx context.Context, turns []ai.Turn) analytics.Record
}

// ReplyMatcher answers common questions without an upstream call.
type ReplyMatcher interface {
	Match(message string) (string, bool)
}

type Handler struct {
	store              store.Store
	chat               ChatClient
	analyzer           TicketAnalyzer
	replies            ReplyMatcher
	hub                *hub.Hub
	alerts             queue.Producer
	archive            exports.Archive
	corsAllowedOrigins []string
	agentAPIKey        string
	ticketLimiter      *scopedRateLimiter
	messageLimiter     *scopedRateLimiter
	metrics            *apiMetrics
}

func NewHandler(
	ticketStore store.Store,
	chat ChatClient,
	analyzer TicketAnalyzer,
	replies ReplyMatcher,
	eventHub *hub.Hub,
	alerts queue.Producer,
	archive exports.Archive,
	corsAllowedOrigins []string,
	agentAPIKey string,
	ticketsPerHour int,
	messagesPerMinute int,
) *Handler {
	return &Handler{
		store:              ticketStore,
		chat:               chat,
		analyzer:           analyzer,
		replies:            replies,
		hub:                eventHub,
		alerts:             alerts,
		archive:            archive,
		corsAllowedOrigins: corsAllowedOrigins,
		agentAPIKey:        agentAPIKey,
		ticketLimiter:      newScopedRateLimiter(float64(ticketsPerHour)/3600, ticketsPerHour),
		messageLimiter:     newScopedRateLimiter(float64(messagesPerMinute)/60, messagesPerMinute),
		metrics:            newAPIMetrics(),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Get("/metrics", h.metrics.handleMetrics)
	r.Get("/ws/{ticketID}", h.subscribeTicket)

	r.Route("/public/tickets", func(r chi.Router) {
		r.With(h.limit(h.ticketLimiter)).Post("/", h.createTicket)
		r.Get("/{ticketID}", h.getPublicTicket)
		r.With(h.limit(h.messageLimiter)).Post("/{ticketID}/messages", h.addPublicMessage)
		r.Get("/{ticketID}/status", h.getTicketStatus)
		r.Patch("/{ticketID}/status", h.closeTicketPublic)
	})

	r.Route("/private/tickets", func(r chi.Router) {
		r.Use(h.requireAgentAccess)
		r.Get("/", h.listTickets)
		r.Get("/export/csv", h.exportTicketsCSV)
		r.Get("/export/csv/{ticketID}", h.exportSingleTicketCSV)
		r.Get("/{ticketID}", h.getTicketFull)
		r.Patch("/{ticketID}", h.updateTicket)
		r.Post("/{ticketID}/messages", h.addAgentMessage)
		r.Post("/{ticketID}/assign", h.assignTicket)
		r.Delete("/{ticketID}", h.deleteTicket)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTicketRequest struct {
	InitialMessage string `json:"initialMessage"`
	CustomerName   string `json:"customerName"`
	Channel        string `json:"channel"`
}

func (h *Handler) createTicket(w http.ResponseWriter, r *http.Request) {
	payload := createTicketRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	initialMessage := strings.TrimSpace(payload.InitialMessage)
	if initialMessage == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "initialMessage is required"})
		return
	}

	customerName := strings.TrimSpace(payload.CustomerName)
	if customerName == "" {
		customerName = "Anonyme"
	}
	channel := strings.TrimSpace(payload.Channel)
	if channel == "" {
		channel = "chat"
	}

	now := time.Now().UTC()
	userMessage := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleUser,
		Content:   initialMessage,
		Author:    customerName,
		CreatedAt: now,
	}

	ticket := store.Ticket{
		ID:           generateTicketID(),
		Status:       store.StatusNew,
		Channel:      channel,
		CustomerName: customerName,
		CreatedAt:    now,
		UpdatedAt:    now,
		Public:       true,
		Messages:     []store.Message{userMessage},
	}

	var assistantMessage *store.Message
	if channel == "chat" {
		result := h.runSupportFlow(r.Context(), ticket.ID, ticket.Messages)
		if result.analytics != nil {
			ticket.Analytics = result.analytics
		}
		if result.reply != "" {
			assistantMessage = &store.Message{
				ID:        uuid.NewString(),
				Role:      store.RoleAssistant,
				Content:   result.reply,
				Author:    "Assistant Freedesk",
				CreatedAt: time.Now().UTC(),
			}
			ticket.Messages = append(ticket.Messages, *assistantMessage)
		}
	}

	if err := h.store.Save(r.Context(), ticket); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ticket creation failed"})
		return
	}
	h.metrics.ticketsCreatedTotal.Add(1)

	h.hub.Broadcast(r.Context(), ticket.ID, hub.TicketCreatedEvent(map[string]any{
		"ticketId":  ticket.ID,
		"status":    ticket.Status,
		"createdAt": ticket.CreatedAt,
	}))
	h.broadcastMessage(r.Context(), ticket.ID, userMessage)
	if assistantMessage != nil {
		h.broadcastMessage(r.Context(), ticket.ID, *assistantMessage)
	}

	response := map[string]any{
		"ticketId":              ticket.ID,
		"message":               "Ticket cree avec succes",
		"trackingUrl":           "/public/tickets/" + ticket.ID,
		"estimatedResponseTime": "Sous 2 heures",
	}
	if ticket.Analytics != nil {
		response["analytics"] = ticket.Analytics
	}
	if assistantMessage != nil {
		response["assistantMessage"] = assistantMessage
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *Handler) getPublicTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	messages := make([]map[string]any, 0, len(ticket.Messages))
	for _, message := range ticket.Messages {
		if message.Internal {
			continue
		}
		messages = append(messages, map[string]any{
			"messageId": message.ID,
			"content":   message.Content,
			"author":    message.Author,
			"role":      message.Role,
			"timestamp": message.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticketId":     ticket.ID,
		"status":       ticket.Status,
		"statusLabel":  statusLabel(ticket.Status),
		"createdAt":    ticket.CreatedAt,
		"customerName": ticket.CustomerName,
		"messages":     messages,
		"lastUpdate":   ticket.UpdatedAt,
	})
}

type addMessageRequest struct {
	Message    string `json:"message"`
	AuthorName string `json:"authorName"`
}

func (h *Handler) addPublicMessage(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	payload := addMessageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	content := strings.TrimSpace(payload.Message)
	if content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if ticket.Status == store.StatusClosed {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Ce ticket est ferme. Veuillez creer un nouveau ticket si besoin.",
		})
		return
	}

	author := strings.TrimSpace(payload.AuthorName)
	if author == "" {
		author = ticket.CustomerName
	}

	userMessage := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleUser,
		Content:   content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	thread := append(append([]store.Message{}, ticket.Messages...), userMessage)

	result := h.runSupportFlow(r.Context(), ticket.ID, thread)

	if err := h.store.AddMessage(r.Context(), ticket.ID, userMessage); err != nil {
		writeLookupError(w, err)
		return
	}
	h.metrics.messagesTotal.Add(1)

	var assistantMessage *store.Message
	if result.reply != "" {
		assistantMessage = &store.Message{
			ID:        uuid.NewString(),
			Role:      store.RoleAssistant,
			Content:   result.reply,
			Author:    "Assistant Freedesk",
			CreatedAt: time.Now().UTC(),
		}
		if err := h.store.AddMessage(r.Context(), ticket.ID, *assistantMessage); err != nil {
			writeLookupError(w, err)
			return
		}
	}
	if result.analytics != nil {
		if _, err := h.store.Update(r.Context(), ticket.ID, store.Update{Analytics: result.analytics}); err != nil {
			writeLookupError(w, err)
			return
		}
	}

	h.broadcastMessage(r.Context(), ticket.ID, userMessage)
	if assistantMessage != nil {
		h.broadcastMessage(r.Context(), ticket.ID, *assistantMessage)
	}

	response := map[string]any{
		"message":   "Message ajoute avec succes",
		"messageId": userMessage.ID,
		"timestamp": userMessage.CreatedAt,
	}
	if assistantMessage != nil {
		response["assistantMessage"] = assistantMessage
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) getTicketStatus(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticketId":     ticket.ID,
		"status":       ticket.Status,
		"statusInfo":   statusInfo(ticket.Status),
		"lastUpdate":   ticket.UpdatedAt,
		"messageCount": len(ticket.Messages),
	})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// closeTicketPublic lets a customer close their own ticket. No other
// status transition is allowed without agent credentials.
func (h *Handler) closeTicketPublic(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	payload := statusUpdateRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if payload.Status != store.StatusClosed {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Seule la fermeture du ticket est autorisee publiquement",
		})
		return
	}

	ticket, err := h.store.Get(r.Context(), ticketID)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if ticket.Status == store.StatusClosed {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Ticket deja ferme",
			"status":  store.StatusClosed,
		})
		return
	}

	closedAt := time.Now().UTC()
	if _, err := h.store.UpdateStatus(r.Context(), ticketID, store.StatusClosed, &closedAt); err != nil {
		writeLookupError(w, err)
		return
	}

	h.hub.Broadcast(r.Context(), ticketID, hub.StatusUpdatedEvent(store.StatusClosed))

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Ticket ferme avec succes",
		"status":   store.StatusClosed,
		"closedAt": closedAt,
	})
}

func (h *Handler) broadcastMessage(ctx context.Context, ticketID string, message store.Message) {
	h.hub.Broadcast(ctx, ticketID, hub.NewMessageEvent(hub.MessagePayload{
		ID:        message.ID,
		Content:   message.Content,
		Role:      message.Role,
		Timestamp: message.CreatedAt,
		Author:    message.Author,
	}))
}

func (h *Handler) limit(limiter *scopedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.allow(clientAddress(r)) {
				h.metrics.rateLimitedTotal.Add(1)
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Ticket non trouve. Verifiez l'ID du ticket."})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
}

// generateTicketID builds a short customer-facing id like FRE-A1B2C3D4.
func generateTicketID() string {
	return "FRE-" + strings.ToUpper(uuid.NewString()[:8])
}

func statusLabel(status string) string {
	switch status {
	case store.StatusNew:
		return "Nouveau - En attente de prise en charge"
	case store.StatusInProgress:
		return "En cours - Un agent travaille sur votre demande"
	case store.StatusClosed:
		return "Resolu - Votre demande a ete traitee"
	default:
		return status
	}
}

func statusInfo(status string) map[string]string {
	switch status {
	case store.StatusNew:
		return map[string]string{
			"label":       "Nouveau",
			"description": "Votre demande a ete enregistree et sera traitee rapidement.",
			"color":       "blue",
		}
	case store.StatusInProgress:
		return map[string]string{
			"label":       "En cours",
			"description": "Un agent travaille actuellement sur votre demande.",
			"color":       "orange",
		}
	case store.StatusClosed:
		return map[string]string{
			"label":       "Resolu",
			"description": "Votre demande a ete traitee avec succes.",
			"color":       "green",
		}
	default:
		return map[string]string{
			"label":       status,
			"description": "Statut en cours de traitement",
			"color":       "gray",
		}
	}
}
