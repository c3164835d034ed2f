package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/juhoohuj/triviacircle-backend/pkg/metrics"
)

type room struct {
	mu    sync.RWMutex
	conns map[peer]struct{}
	// retired marks a room emptied by its last Leave; its hub entry is being
	// removed, so adds must fail and force the caller to a fresh entry.
	retired bool
}

func newRoom() *room { return &room{conns: map[peer]struct{}{}} }

// add reports false when the room is retired.
func (r *room) add(c peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	r.conns[c] = struct{}{}
	return true
}

func (r *room) remove(c peer) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

// removeAndRetire drops c and, when that empties the room, retires it.
// Reports whether the room was retired by this call.
func (r *room) removeAndRetire(c peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	if len(r.conns) == 0 && !r.retired {
		r.retired = true
		return true
	}
	return false
}

// broadcast delivers msg to every connection present at call time. Delivery
// is per-recipient fire-and-forget: a failed write drops only that conn.
func (r *room) broadcast(msg []byte, exclude peer) {
	// Take a quick snapshot of the current connections
	r.mu.RLock()
	conns := make([]peer, 0, len(r.conns))
	for c := range r.conns {
		if c == exclude {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	// Do the I/O outside the lock
	var failed []peer
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
			continue
		}
		metrics.BroadcastsSent.Inc()
	}
	for _, c := range failed {
		r.remove(c)
		c.closeNow()
	}
}
