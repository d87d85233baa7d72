// Package ws carries frames over WebSocket, one binary message per frame.
package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/lanmeet/internal/wire"
)

var ErrTextMessage = errors.New("text message on a binary frame stream")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 32 << 10,
	// LAN clients connect from arbitrary hosts.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Conn struct {
	conn *websocket.Conn
}

// Upgrade switches an HTTP request to a framed WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request, maxFrameSize int) (*Conn, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(c, maxFrameSize), nil
}

func NewConn(c *websocket.Conn, maxFrameSize int) *Conn {
	if maxFrameSize <= 0 {
		maxFrameSize = wire.DefaultMaxFrameSize
	}
	c.SetReadLimit(int64(maxFrameSize))
	return &Conn{conn: c}
}

func (c *Conn) ReadFrame() (wire.Frame, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return wire.Frame{}, err
	}
	if mt != websocket.BinaryMessage {
		return wire.Frame{}, ErrTextMessage
	}
	return wire.Unmarshal(data)
}

func (c *Conn) WriteFrame(f wire.Frame) error {
	body, err := wire.Marshal(f)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, body)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *Conn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
func (c *Conn) Close() error                       { return c.conn.Close() }
