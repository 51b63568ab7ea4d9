package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"freedesk/services/support/internal/hub"
)

// wsConn adapts a websocket connection to the hub's Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) Close() error {
	return c.conn.CloseNow()
}

// subscribeTicket upgrades the request and streams ticket events until
// the peer goes away. Unknown ticket ids are still accepted so a
// customer can open the tracking page before creation finishes.
func (h *Handler) subscribeTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.corsAllowedOrigins,
	})
	if err != nil {
		log.Printf("websocket accept failed ticket=%s err=%v", ticketID, err)
		return
	}

	subscriber := &wsConn{conn: conn}
	h.hub.Connect(subscriber, ticketID)
	defer func() {
		h.hub.Disconnect(subscriber, ticketID)
		_ = subscriber.Close()
	}()

	// The snapshot goes to this subscriber only; everyone else already
	// has the current state.
	if ticket, err := h.store.Get(r.Context(), ticketID); err == nil {
		if payload, err := json.Marshal(hub.TicketSnapshotEvent(ticket)); err == nil {
			sendCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			_ = subscriber.Send(sendCtx, payload)
			cancel()
		}
	}

	// Clients do not send anything meaningful; reading drains control
	// frames and unblocks when the peer closes.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
