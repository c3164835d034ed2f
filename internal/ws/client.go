package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// peer is what the hub and the event handlers need from a connection; the
// reader loop keeps the concrete *clientConn.
type peer interface {
	write(mt int, data []byte) error
	writeJSON(v any) error
	closeNow()
}

type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

var _ peer = (*clientConn)(nil)

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data) // Text/Binary/Ping only
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) closeNow() {
	_ = c.rawConn.Close()
}
