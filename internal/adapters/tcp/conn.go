// Package tcp carries length prefixed frames over a byte stream.
package tcp

import (
	"net"
	"time"

	"github.com/dkeye/lanmeet/internal/wire"
)

// Conn is a framed stream connection. Reads and writes may run on
// different goroutines; neither side is safe for concurrent use.
type Conn struct {
	conn net.Conn
	r    *wire.Reader
	w    *wire.Writer
}

func NewConn(conn net.Conn, maxFrameSize int) *Conn {
	return &Conn{
		conn: conn,
		r:    wire.NewReader(conn, maxFrameSize),
		w:    wire.NewWriter(conn),
	}
}

func (c *Conn) ReadFrame() (wire.Frame, error)     { return c.r.ReadFrame() }
func (c *Conn) WriteFrame(f wire.Frame) error      { return c.w.WriteFrame(f) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *Conn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
func (c *Conn) Close() error                       { return c.conn.Close() }
