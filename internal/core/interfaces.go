package core

import (
	"time"

	"github.com/dkeye/lanmeet/internal/wire"
)

// FrameConn abstracts a framed client transport (TCP stream, WebSocket).
// Owned by the connection handler; the handler must Close() it.
type FrameConn interface {
	ReadFrame() (wire.Frame, error)
	WriteFrame(wire.Frame) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	RemoteAddr() string
	Close() error
}

// Sink is the enqueue side of a participant's outbound queue.
// TrySend never blocks and is used for best-effort frames; Send may block
// for reliable frames and fails instead of dropping.
type Sink interface {
	TrySend(wire.Frame) error
	Send(wire.Frame) error
}
