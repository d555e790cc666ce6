// Package transport is the real-time session layer: a websocket hub that
// tracks every client connected to this instance, re-emits broadcast
// payloads to all of them, and feeds inbound client messages to the ingress
// relay.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// ClientMessageHandler receives the text a connected client submitted.
type ClientMessageHandler func(ctx context.Context, text string)

type Hub struct {
	log        *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader

	mu        sync.RWMutex
	conns     map[uuid.UUID]*connection
	onMessage ClientMessageHandler
}

type connection struct {
	id   uuid.UUID
	ws   *websocket.Conn
	send chan []byte
}

func NewHub(log *slog.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Hub{
		log:        log,
		sendBuffer: sendBuffer,
		conns:      make(map[uuid.UUID]*connection),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// OnClientMessage registers the handler invoked for every inbound client
// payload. Must be called before the hub starts accepting connections.
func (h *Hub) OnClientMessage(fn ClientMessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

// BroadcastToLocalClients queues payload on every connection of this
// instance. A connection that cannot keep up loses the message: live
// delivery is best-effort and must never block the broadcaster loop.
func (h *Hub) BroadcastToLocalClients(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		select {
		case conn.send <- payload:
		default:
			h.log.Warn("dropping broadcast for slow client", "conn_id", conn.id)
		}
	}
}

// ConnectionCount reports how many clients are attached to this instance.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWS upgrades an HTTP request and runs the connection until the
// client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		id:   uuid.New(),
		ws:   ws,
		send: make(chan []byte, h.sendBuffer),
	}
	h.register(conn)
	h.log.Debug("client connected", "conn_id", conn.id, "remote", r.RemoteAddr)

	go h.writePump(conn)
	h.readPump(r.Context(), conn)
}

func (h *Hub) register(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.id] = conn
}

func (h *Hub) unregister(conn *connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.id)
	h.mu.Unlock()
	close(conn.send)
	_ = conn.ws.Close()
	h.log.Debug("client disconnected", "conn_id", conn.id)
}

// readPump forwards inbound client payloads to the registered handler.
// Raw client input crosses a trust boundary here, so anything that is not
// text is dropped.
func (h *Hub) readPump(ctx context.Context, conn *connection) {
	defer h.unregister(conn)
	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		h.mu.RLock()
		handler := h.onMessage
		h.mu.RUnlock()
		if handler != nil {
			handler(ctx, string(data))
		}
	}
}

func (h *Hub) writePump(conn *connection) {
	for payload := range conn.send {
		_ = conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(conn)
			return
		}
	}
}

// CloseAll drops every connection, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.unregister(c)
	}
}
