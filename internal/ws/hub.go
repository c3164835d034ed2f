package ws

import (
	"sync"
)

// Hub keeps connection sets per roomID and is the only fanout path.
type Hub struct {
	rooms sync.Map // roomID -> *room
}

func NewHub() *Hub { return &Hub{} }

// Broadcast delivers msg to every connection in the room, minus exclude (nil
// to deliver to all).
func (h *Hub) Broadcast(roomID string, msg []byte, exclude peer) {
	if v, ok := h.rooms.Load(roomID); ok {
		v.(*room).broadcast(msg, exclude)
	}
}

func (h *Hub) Join(roomID string, c peer) {
	for {
		v, _ := h.rooms.LoadOrStore(roomID, newRoom())
		if v.(*room).add(c) {
			return
		}
		// Raced a retiring room whose entry has not been deleted yet; clear
		// it ourselves and retry on a fresh one.
		h.rooms.CompareAndDelete(roomID, v)
	}
}

// Leave removes the connection and prunes the room entry once the last one
// is gone, so deleted rooms do not accumulate empty sets.
func (h *Hub) Leave(roomID string, c peer) {
	v, ok := h.rooms.Load(roomID)
	if !ok {
		return
	}
	if v.(*room).removeAndRetire(c) {
		h.rooms.CompareAndDelete(roomID, v)
	}
}
