package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

var (
	errMicLocked     = fmt.Errorf("%w: microphone locked by host", domain.ErrNotAuthorized)
	errUnknownAction = errors.New("unknown control action")
)

type selfUpdate struct {
	event wire.PresenceEvent
	apply func(*domain.Participant) error
}

var selfUpdates = map[wire.ControlAction]selfUpdate{
	wire.ControlSelfMute: {wire.PresenceMuted, func(p *domain.Participant) error {
		p.Muted = true
		return nil
	}},
	wire.ControlSelfUnmute: {wire.PresenceUnmuted, func(p *domain.Participant) error {
		if p.MicLocked {
			return errMicLocked
		}
		p.Muted = false
		return nil
	}},
	wire.ControlRaiseHand: {wire.PresenceHandRaised, func(p *domain.Participant) error {
		p.HandRaised = true
		return nil
	}},
	wire.ControlLowerHand: {wire.PresenceHandLowered, func(p *domain.Participant) error {
		p.HandRaised = false
		return nil
	}},
	wire.ControlVideoOn: {wire.PresenceVideoOn, func(p *domain.Participant) error {
		p.VideoOn = true
		return nil
	}},
	wire.ControlVideoOff: {wire.PresenceVideoOff, func(p *domain.Participant) error {
		p.VideoOn = false
		return nil
	}},
}

// onControl applies a participant's own state change and tells the others.
func (o *Orchestrator) onControl(p *app.Participant, f wire.Frame) {
	if !p.AcceptSequence(f.Type, f.Sequence) {
		return
	}
	c, err := wire.Decode[wire.Control](f)
	if err != nil {
		o.sendError(p, err)
		return
	}
	m := p.Meeting()
	presence := wire.Presence{ParticipantID: p.ID(), Name: p.Name()}

	if upd, ok := selfUpdates[c.Action]; ok {
		if _, err := m.Update(p.ID(), upd.apply); err != nil {
			o.sendError(p, err)
			return
		}
		presence.Event = upd.event
		o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, presence), p.ID())
		// Turning video off also ends the participant's screen share.
		if c.Action == wire.ControlVideoOff && m.ReleasePresenter(p.ID()) {
			presence.Event = wire.PresenceScreenShareStopped
			o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, presence), "")
		}
		return
	}

	switch c.Action {
	case wire.ControlEmoji:
		presence.Event = wire.PresenceEmoji
		presence.Value = c.Value
		o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, presence), p.ID())
	case wire.ControlScreenShareStart:
		current, err := m.ClaimPresenter(p.ID())
		if errors.Is(err, domain.ErrPresenterActive) {
			presence.Event = wire.PresenceScreenShareDenied
			presence.ParticipantID = current
			presence.Name = ""
			_ = o.Router.SendTo(p.ID(), wire.MustFrame(wire.TypePresence, presence))
			return
		}
		if err != nil {
			o.sendError(p, err)
			return
		}
		presence.Event = wire.PresenceScreenShareStarted
		o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, presence), "")
	case wire.ControlScreenShareStop:
		if m.ReleasePresenter(p.ID()) {
			presence.Event = wire.PresenceScreenShareStopped
			o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, presence), "")
		}
	default:
		o.sendError(p, fmt.Errorf("%w: %q", errUnknownAction, c.Action))
	}
}
