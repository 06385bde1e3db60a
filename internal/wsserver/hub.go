package wsserver

import (
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/presence"
	"github.com/park285/cheese-relay/internal/protocol"
)

// Hub maps connection ids to live sockets. It is the coordinator's Outbox.
type Hub struct {
	mu    sync.RWMutex
	conns map[presence.ConnID]*conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[presence.ConnID]*conn)}
}

// Send encodes ev and queues it for id. Unknown ids are ignored; a full queue closes
// the connection as a slow consumer.
func (h *Hub) Send(to presence.ConnID, ev protocol.ServerEvent) {
	h.mu.RLock()
	c := h.conns[to]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		obslog.L().Error("relay_encode_error", zap.String("conn_id", string(to)), zap.String("event", ev.EventName()), zap.Error(err))
		return
	}
	if !c.enqueue(frame) && c.ctx.Err() == nil {
		obslog.L().Warn("relay_slow_consumer", zap.String("conn_id", string(to)), zap.String("event", ev.EventName()))
		c.shutdown(websocket.StatusPolicyViolation, "slow consumer")
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id presence.ConnID) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Len is the number of attached sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// closeAll shuts down every attached socket with code.
func (h *Hub) closeAll(code websocket.StatusCode, reason string) {
	h.mu.RLock()
	all := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.shutdown(code, reason)
	}
}
