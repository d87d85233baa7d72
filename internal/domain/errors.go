package domain

import "errors"

// Handshake errors close the connection without any broadcast.
var (
	ErrHandshake          = errors.New("handshake failed")
	ErrHandshakeTimeout   = errors.New("handshake timeout")
	ErrMalformedJoin      = errors.New("malformed join")
	ErrInvalidCode        = errors.New("invalid meeting code")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrMeetingEnded       = errors.New("meeting ended")
	ErrRateLimited        = errors.New("too many join attempts")
)

// Authorization and lookup errors go back to the actor only.
var (
	ErrNotAuthorized   = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrSelfTarget      = errors.New("admin action cannot target the actor")
	ErrUnknownAction   = errors.New("unknown admin action")
	ErrPresenterActive = errors.New("another participant is presenting")
)

// Capacity errors reject a join or drop a frame.
var (
	ErrRoomFull       = errors.New("meeting is full")
	ErrBackpressure   = errors.New("backpressure")
	ErrSlowConsumer   = errors.New("slow consumer")
	ErrOutboxClosed   = errors.New("outbox closed")
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFileTooLarge   = errors.New("file too large")
	ErrTransferExists = errors.New("transfer already exists")
)

// Transfer integrity errors abort the transfer on both ends.
var (
	ErrOutOfOrderChunk = errors.New("out of order chunk")
	ErrOversizedChunk  = errors.New("chunk exceeds declared size")
	ErrTransferClosed  = errors.New("transfer is not active")
	ErrNotSender       = errors.New("chunk from a participant that is not the sender")
	ErrIdleTimeout     = errors.New("transfer idle timeout")
)

// IsAuthorization reports whether err belongs to the authorization class.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotAuthorized) || errors.Is(err, ErrSelfTarget)
}

// IsTransferIntegrity reports whether err aborts a transfer on integrity grounds.
func IsTransferIntegrity(err error) bool {
	return errors.Is(err, ErrOutOfOrderChunk) || errors.Is(err, ErrOversizedChunk)
}
