package adapters

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"que-backend/internal/core"
)

var (
	// ErrBackpressure is returned when a connection's send buffer is full.
	ErrBackpressure = errors.New("send buffer full")
	// ErrConnClosed is returned when sending to an already closed connection.
	ErrConnClosed = errors.New("connection closed")
)

// Hub is the notification dispatcher: it tracks every live connection
// so engine broadcasts can reach all room-catalog subscribers.
// Deliveries are fire-and-forget; a slow client drops frames instead
// of blocking admission.
type Hub struct {
	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*wsConn]struct{})}
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Direct delivers one event to one connection.
func (h *Hub) Direct(s core.Session, evt any) {
	frame, ok := encode(evt)
	if !ok {
		return
	}
	if err := s.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "adapters.hub").Msg("direct send dropped")
	}
}

// BroadcastAll fans an event out to every connected client.
func (h *Hub) BroadcastAll(evt any) {
	frame, ok := encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for c := range h.conns {
		if err := c.TrySend(frame); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().Str("module", "adapters.hub").Int("dropped", dropped).Msg("broadcast partially dropped")
	}
}

func encode(evt any) (core.Frame, bool) {
	b, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.hub").Msg("event marshal")
		return nil, false
	}
	return b, true
}
