// Package session runs one client connection from handshake to leave.
package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/app/orch"
	"github.com/dkeye/lanmeet/internal/core"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultQueueCapacity    = 256
)

type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReliableTimeout  time.Duration
	QueueCapacity    int
}

type Handler struct {
	orch    *orch.Orchestrator
	limiter *JoinRateLimiter
	opts    Options
}

func NewHandler(o *orch.Orchestrator, limiter *JoinRateLimiter, opts Options) *Handler {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ReliableTimeout <= 0 {
		opts.ReliableTimeout = core.DefaultReliableTimeout
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	return &Handler{orch: o, limiter: limiter, opts: opts}
}

// Serve owns conn until it returns. A failed handshake gets a JoinReject
// and creates nothing; after a join every exit path goes through one leave.
func (h *Handler) Serve(ctx context.Context, conn core.FrameConn) {
	logger := log.With().Str("module", "session").Str("remote", conn.RemoteAddr()).Logger()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	join, err := h.handshake(conn)
	if err != nil {
		logger.Info().Err(err).Msg("handshake failed")
		h.reject(conn, err)
		return
	}

	// JoinAck waits in the outbox until the write pump starts.
	outbox := core.NewOutbox(h.opts.QueueCapacity, h.opts.ReliableTimeout)
	p, err := h.orch.Join(app.JoinRequest{
		Code: join.MeetingCode,
		Name: join.DisplayName,
		Sink: outbox,
		Kick: outbox.Close,
	})
	if err != nil {
		logger.Info().Err(err).Msg("join rejected")
		h.reject(conn, err)
		return
	}
	logger = logger.With().Str("pid", string(p.ID())).Str("meeting", string(p.Meeting().Code())).Logger()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, outbox, logger)
	}()

	reason := h.readPump(conn, p, logger)
	h.orch.Leave(p.ID(), domain.StateLeft, reason)
	outbox.Close()
	<-writerDone
	logger.Info().Str("reason", reason).Msg("session closed")
}

func (h *Handler) handshake(conn core.FrameConn) (wire.Join, error) {
	if !h.limiter.Allow(conn.RemoteAddr()) {
		return wire.Join{}, domain.ErrRateLimited
	}
	if err := conn.SetReadDeadline(time.Now().Add(h.opts.HandshakeTimeout)); err != nil {
		return wire.Join{}, err
	}
	f, err := conn.ReadFrame()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return wire.Join{}, domain.ErrHandshakeTimeout
		}
		return wire.Join{}, errors.Join(domain.ErrHandshake, err)
	}
	if f.Type != wire.TypeJoin {
		return wire.Join{}, domain.ErrMalformedJoin
	}
	join, err := wire.Decode[wire.Join](f)
	if err != nil {
		return wire.Join{}, errors.Join(domain.ErrMalformedJoin, err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return wire.Join{}, err
	}
	return join, nil
}

// rejectReason is the stable reason string sent in JoinReject.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.Is(err, domain.ErrMalformedJoin):
		return "malformed_join"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, domain.ErrDisplayNameEmpty), errors.Is(err, domain.ErrDisplayNameTooLong):
		return "invalid_name"
	case errors.Is(err, domain.ErrRoomFull):
		return "room_full"
	case errors.Is(err, domain.ErrMeetingEnded):
		return "meeting_ended"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "handshake_failed"
	}
}

func (h *Handler) reject(conn core.FrameConn, err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	_ = conn.WriteFrame(wire.MustFrame(wire.TypeJoinReject, wire.JoinReject{Reason: rejectReason(err)}))
}

func (h *Handler) readPump(conn core.FrameConn, p *app.Participant, logger zerolog.Logger) string {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			logger.Debug().Err(err).Msg("read pump stopped")
			return "disconnected"
		}
		if err := h.orch.OnFrame(p, f); errors.Is(err, orch.ErrLeaveRequested) {
			return "left"
		}
	}
}

// writePump drains the outbox in order. When the outbox closes, what is
// already queued is flushed before the connection closes.
func (h *Handler) writePump(conn core.FrameConn, outbox *core.Outbox, logger zerolog.Logger) {
	defer conn.Close()
	for {
		select {
		case f := <-outbox.Frames():
			if err := h.write(conn, f); err != nil {
				logger.Debug().Err(err).Msg("write pump stopped")
				return
			}
		case <-outbox.Closing():
			for {
				select {
				case f := <-outbox.Frames():
					if err := h.write(conn, f); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (h *Handler) write(conn core.FrameConn, f wire.Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteFrame(f)
}

// PruneLimiter drops stale rate limiter entries until ctx is done.
func (h *Handler) PruneLimiter(ctx context.Context, every time.Duration) error {
	if h.limiter == nil {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h.limiter.Prune()
		}
	}
}
