package hub

import (
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"fleetdispatch/pkg/models"
)

// client is one observer connection. rooms is guarded by Hub.mu and set to
// nil once the client is unregistered.
type client struct {
	conn     Conn
	identity models.Identity
	rooms    map[string]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn Conn, id models.Identity, buffer int) *client {
	return &client{
		conn:     conn,
		identity: id,
		rooms:    make(map[string]struct{}),
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the queue is full or the
// connection is closed.
func (c *client) enqueue(raw []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// writeLoop is the only writer on the socket.
func (c *client) writeLoop(log *slog.Logger) {
	for {
		select {
		case raw := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				log.Debug("write failed, closing connection", "user_id", c.identity.UserID, "error", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
