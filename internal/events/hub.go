package events

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub fans events out to live websocket subscribers (the dashboard feed).
// A slow or dead connection is dropped rather than backing up the engine.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// Register adds a subscriber connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

// Unregister removes and closes a subscriber connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
}

// Subscribers reports the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Emit implements Emitter by writing the event as JSON to every subscriber.
func (h *Hub) Emit(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("dropping stalled websocket subscriber")
			delete(h.conns, conn)
			conn.Close()
		}
	}
	return nil
}
