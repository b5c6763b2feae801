// Package live implements the websocket-based live subscription: pushing
// newly captured message metadata to connected clients as it's ingested,
// and accepting a small set of client-initiated commands (open, remove,
// remove all) on the same connection.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mailcrab/mailcrab/internal/broadcast"
	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/observability"
	"github.com/mailcrab/mailcrab/internal/store"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP connections into live subscriptions.
type Handler struct {
	bus     *broadcast.Bus[mail.Message]
	store   *store.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandler creates a Handler that forwards messages published on bus and
// applies client commands to store. metrics may be nil, in which case no
// collector is touched.
func NewHandler(bus *broadcast.Bus[mail.Message], st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{bus: bus, store: st, logger: logger, metrics: metrics}
}

// ServeHTTP upgrades the connection and runs the subscription until the
// client disconnects or the request context is canceled.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live: websocket upgrade failed", "error", err)
		return
	}

	sub := h.bus.Subscribe()
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Inc()
	}
	ctx, cancel := context.WithCancel(r.Context())

	go h.transmit(ctx, conn, sub)
	h.receive(ctx, cancel, conn)

	cancel()
	sub.Close()
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Dec()
	}
}

// receive is the read pump: it processes client commands until the
// connection closes or errors, then cancels ctx so transmit stops too.
func (h *Handler) receive(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var action Action
		if err := json.Unmarshal(payload, &action); err != nil {
			h.logger.Warn("live: malformed client action", "error", err)
			continue
		}

		if err := h.apply(action); err != nil {
			h.logger.Warn("live: failed to apply client action", "error", err)
		}
	}
}

func (h *Handler) apply(a Action) error {
	switch a.Kind {
	case ActionRemoveAll:
		h.store.Clear()
		return nil
	case ActionRemove:
		return h.store.Remove(a.ID)
	case ActionOpen:
		return h.store.Open(a.ID)
	default:
		return nil
	}
}

// transmit is the write pump: it forwards freshly published messages as
// metadata JSON frames, and keeps the connection alive with periodic pings.
func (h *Handler) transmit(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription[mail.Message]) {
	defer conn.Close()

	nextPing := time.Now().Add(pingPeriod)
	for {
		recvCtx, cancelRecv := context.WithDeadline(ctx, nextPing)
		msg, err := sub.Recv(recvCtx)
		cancelRecv()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if lagged, ok := err.(broadcast.ErrLagged); ok {
				h.logger.Warn("live: subscriber lagged, ending subscription", "skipped", lagged.Skipped)
				if h.metrics != nil {
					h.metrics.BroadcastLagTotal.Inc()
				}
				return
			}
			// The heartbeat is due and no message is pending: send a ping.
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			nextPing = time.Now().Add(pingPeriod)
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg.Metadata()); err != nil {
			return
		}
	}
}
