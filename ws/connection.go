// Package ws terminates websocket connections and pumps frames between
// peers and room actors.
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/errors"
)

const (
	writeTimeout = 10 * time.Second
	maxFrameSize = 32 * 1024
)

type closeRequest struct {
	code   int
	reason string
}

// Connection wraps one websocket behind a single writer goroutine. Room
// actors call Send from their own goroutine; the write pump is the only
// code writing to the underlying socket, which is what gorilla requires.
type Connection struct {
	conn    *websocket.Conn
	sendCh  chan string
	closeCh chan closeRequest
	closed  chan struct{}
	once    sync.Once
	log     *slog.Logger
}

func NewConnection(conn *websocket.Conn, bufferSize int, log *slog.Logger) *Connection {
	conn.SetReadLimit(maxFrameSize)
	c := &Connection{
		conn:    conn,
		sendCh:  make(chan string, bufferSize),
		closeCh: make(chan closeRequest, 1),
		closed:  make(chan struct{}),
		log:     log,
	}
	go c.writePump()
	return c
}

func (c *Connection) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.sendCh:
			if !c.write(frame) {
				return
			}
		case req := <-c.closeCh:
			c.drainAndClose(req)
			return
		}
	}
}

func (c *Connection) write(frame string) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.log.Debug("Write failed, closing connection", "error", err)
		c.shutdown()
		return false
	}
	return true
}

// drainAndClose flushes every frame queued before the close was requested,
// then sends the close frame. An error notice queued right before Close
// reaches the peer ahead of the close code.
func (c *Connection) drainAndClose(req closeRequest) {
	for {
		select {
		case frame := <-c.sendCh:
			if !c.write(frame) {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(req.code, req.reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			c.shutdown()
			return
		}
	}
}

// Send queues one text frame for delivery. A full queue means the peer
// cannot keep up; the frame is rejected rather than blocking the caller.
func (c *Connection) Send(text string) error {
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- text:
		return nil
	default:
		return errors.ErrSendQueueFull
	}
}

// Close requests a close frame carrying the code and reason. Frames queued
// before the call are delivered first. Safe to call from any goroutine; a
// repeated call keeps the first code.
func (c *Connection) Close(code int, reason string) error {
	select {
	case c.closeCh <- closeRequest{code: code, reason: reason}:
	default:
	}
	return nil
}

// ReadMessage blocks for the next frame from the peer.
func (c *Connection) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

func (c *Connection) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
