package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kirinyoku/slotgo/internal/hub"
)

var (
	errClosed     = errors.New("connection closed")
	errBufferFull = errors.New("send buffer full")
)

// conn adapts one websocket to hub.Conn. Outgoing events go through a
// bounded buffer drained by the write pump.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan hub.Event
	closed chan struct{}
	once   sync.Once
}

func newConn(id string, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		send:   make(chan hub.Event, buffer),
		closed: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send never blocks. A full buffer drops the event for this connection only.
func (c *conn) Send(ev hub.Event) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.closed:
		return errClosed
	default:
		return errBufferFull
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
