package orch

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/app/transfer"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

// ErrLeaveRequested ends the read loop after a client Leave frame.
var ErrLeaveRequested = errors.New("leave requested")

// Journal records meeting events. Implementations must not block for long.
type Journal interface {
	Append(domain.Event) error
}

// Orchestrator wires one participant's frames to the room manager, the
// router, the admin plane and the transfer coordinator.
type Orchestrator struct {
	Rooms     *app.RoomManager
	Router    *app.Router
	Admin     *app.AdminPlane
	Transfers *transfer.Coordinator
	// Journal is optional.
	Journal Journal
}

// OnFrame handles one inbound frame. Only a client Leave returns an error;
// bad frames are answered with an Error frame and the session goes on.
func (o *Orchestrator) OnFrame(p *app.Participant, f wire.Frame) error {
	switch f.Type {
	case wire.TypeChat:
		o.onChat(p, f)
	case wire.TypeVideo, wire.TypeAudio, wire.TypeScreenShare:
		if p.AcceptSequence(f.Type, f.Sequence) {
			o.Router.Route(p, f)
		}
	case wire.TypeControl:
		o.onControl(p, f)
	case wire.TypeFileAnnounce:
		o.onFileAnnounce(p, f)
	case wire.TypeFileChunk:
		if err := o.Transfers.Chunk(p.ID(), f); err != nil && !domain.IsTransferIntegrity(err) {
			o.sendError(p, err)
		}
	case wire.TypeFileStatus:
		o.onFileStatus(p, f)
	case wire.TypeAdminAction:
		o.onAdmin(p, f)
	case wire.TypePing:
		pong := wire.Frame{Type: wire.TypePong, Timestamp: time.Now().UnixNano(), Payload: f.Payload}
		_ = o.Router.SendTo(p.ID(), pong)
	case wire.TypeLeave:
		return ErrLeaveRequested
	default:
		o.sendError(p, fmt.Errorf("%w: %s", errUnexpectedFrame, f.Type))
	}
	return nil
}

var errUnexpectedFrame = errors.New("unexpected frame type")

func (o *Orchestrator) onChat(p *app.Participant, f wire.Frame) {
	if !p.AcceptSequence(f.Type, f.Sequence) {
		return
	}
	msg, err := wire.Decode[wire.Chat](f)
	if err != nil {
		o.sendError(p, err)
		return
	}
	msg.Name = p.Name()
	out := wire.MustFrame(wire.TypeChat, msg)
	out.Sequence = f.Sequence
	out.Timestamp = f.Timestamp
	if msg.To == "" {
		o.Router.Route(p, out)
		return
	}
	if _, err := o.Router.Unicast(p, msg.To, out); err != nil {
		o.sendError(p, err)
	}
}

func (o *Orchestrator) onFileAnnounce(p *app.Participant, f wire.Frame) {
	a, err := wire.Decode[wire.FileAnnounce](f)
	if err != nil {
		o.sendError(p, err)
		return
	}
	snap, err := o.Transfers.Announce(p.ID(), a)
	if err != nil {
		o.sendError(p, err)
		return
	}
	o.record(domain.Event{
		Meeting:     snap.Meeting,
		Kind:        domain.EventTransfer,
		Participant: p.ID(),
		Name:        p.Name(),
		Detail:      snap.Filename,
	})
}

func (o *Orchestrator) onFileStatus(p *app.Participant, f wire.Frame) {
	q, err := wire.Decode[wire.FileStatus](f)
	if err != nil {
		o.sendError(p, err)
		return
	}
	snap, err := o.Transfers.Status(p.ID(), q.TransferID)
	if err != nil {
		o.sendError(p, err)
		return
	}
	_ = o.Router.SendTo(p.ID(), wire.MustFrame(wire.TypeFileStatus, snap.Status()))
}

// errorCode maps the error classes onto the codes carried by Error frames.
func errorCode(err error) string {
	switch {
	case errors.Is(err, wire.ErrBadPayload):
		return "bad_payload"
	case domain.IsAuthorization(err):
		return "not_authorized"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPresenterActive):
		return "presenter_active"
	case errors.Is(err, domain.ErrFileTooLarge), errors.Is(err, domain.ErrTransferExists):
		return "capacity"
	case domain.IsTransferIntegrity(err), errors.Is(err, domain.ErrTransferClosed), errors.Is(err, domain.ErrNotSender):
		return "transfer"
	case errors.Is(err, errUnexpectedFrame):
		return "unexpected_frame"
	default:
		return "error"
	}
}

func (o *Orchestrator) sendError(p *app.Participant, err error) {
	log.Debug().Str("module", "orch").Str("pid", string(p.ID())).Err(err).Msg("frame rejected")
	_ = o.Router.SendTo(p.ID(), wire.MustFrame(wire.TypeError, wire.Error{Code: errorCode(err), Message: err.Error()}))
}

func (o *Orchestrator) record(e domain.Event) {
	if o.Journal == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := o.Journal.Append(e); err != nil {
		log.Warn().Str("module", "orch").Err(err).Str("meeting", string(e.Meeting)).Msg("journal append failed")
	}
}
