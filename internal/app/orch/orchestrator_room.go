package orch

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

// Join admits a participant. JoinAck is the first frame on its queue and
// nothing is routed to it before.
func (o *Orchestrator) Join(req app.JoinRequest) (*app.Participant, error) {
	p, err := o.Rooms.CreateOrJoinMeeting(req)
	if err != nil {
		return nil, err
	}
	m := p.Meeting()
	snap := p.Snapshot()
	ack := wire.JoinAck{
		ParticipantID: p.ID(),
		Role:          snap.Role.String(),
		MeetingCode:   m.Code(),
		MediaToken:    p.MediaToken(),
		Participants: lo.Map(m.Participants(), func(q domain.Participant, _ int) domain.ParticipantView {
			return q.View()
		}),
	}
	if err := o.Router.SendTo(p.ID(), wire.MustFrame(wire.TypeJoinAck, ack)); err != nil {
		o.Rooms.Leave(p.ID(), domain.StateLeft)
		return nil, err
	}
	o.Rooms.Activate(p)

	o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
		Event:         wire.PresenceJoined,
		ParticipantID: p.ID(),
		Name:          p.Name(),
		Role:          snap.Role.String(),
	}), p.ID())
	o.record(domain.Event{Meeting: m.Code(), Kind: domain.EventJoined, Participant: p.ID(), Name: p.Name(), Detail: snap.Role.String()})
	log.Info().Str("module", "orch").Str("meeting", string(m.Code())).Str("pid", string(p.ID())).Msg("participant active")
	return p, nil
}

// Leave is the single exit path for a participant, whatever the cause.
// Calls after the first are no-ops.
func (o *Orchestrator) Leave(id domain.ParticipantID, state domain.ParticipantState, reason string) app.LeaveResult {
	res := o.Rooms.Leave(id, state)
	if !res.Left {
		return res
	}
	o.Transfers.AbortParticipant(id)

	m := res.Meeting
	code := m.Code()
	if res.MeetingState == domain.MeetingOpen {
		if res.PresenterCleared {
			o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
				Event:         wire.PresenceScreenShareStopped,
				ParticipantID: id,
			}), "")
		}
		if res.NewHost != nil {
			o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
				Event:         wire.PresenceHostChanged,
				ParticipantID: res.NewHost.ID,
				Name:          res.NewHost.Name,
				Role:          domain.RoleHost.String(),
			}), "")
			o.record(domain.Event{Meeting: code, Kind: domain.EventHostChanged, Participant: res.NewHost.ID, Name: res.NewHost.Name})
		}
		event := wire.PresenceLeft
		if state == domain.StateRemoved {
			event = wire.PresenceRemoved
		}
		o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
			Event:         event,
			ParticipantID: id,
			Name:          res.Participant.Name,
			Value:         reason,
		}), id)
	}

	kind := domain.EventLeft
	if state == domain.StateRemoved {
		kind = domain.EventRemoved
	}
	o.record(domain.Event{Meeting: code, Kind: kind, Participant: id, Name: res.Participant.Name, Detail: reason})
	if res.Ended {
		o.record(domain.Event{Meeting: code, Kind: domain.EventMeetingEnded, Detail: "empty"})
	}
	return res
}

// EndMeeting tells every member the meeting is over and leads them out.
func (o *Orchestrator) EndMeeting(code domain.MeetingCode, actor domain.ParticipantID) error {
	m, err := o.Rooms.Meeting(code)
	if err != nil {
		return err
	}
	o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
		Event:         wire.PresenceMeetingEnded,
		ParticipantID: actor,
	}), "")
	members, err := o.Rooms.EndMeeting(code)
	if err != nil {
		return err
	}
	o.record(domain.Event{Meeting: code, Kind: domain.EventMeetingEnded, Actor: actor})
	for _, p := range members {
		o.Leave(p.ID(), domain.StateRemoved, "meeting ended")
		p.Kick()
	}
	return nil
}

func (o *Orchestrator) onAdmin(p *app.Participant, f wire.Frame) {
	req, err := wire.Decode[wire.AdminAction](f)
	if err != nil {
		o.sendError(p, err)
		return
	}
	out, err := o.Admin.Apply(p, req)
	if err != nil {
		return
	}
	m := out.Meeting
	e := domain.Event{Meeting: m.Code(), Kind: domain.EventAdmin, Actor: p.ID(), Detail: string(req.Action)}
	if out.Target != nil {
		e.Participant = out.Target.ID()
		e.Name = out.Target.Name()
	}
	o.record(e)

	switch {
	case out.Remove:
		o.Leave(out.Target.ID(), domain.StateRemoved, "removed by "+out.Actor.Role.String())
		out.Target.Kick()
	case out.End:
		if err := o.EndMeeting(m.Code(), p.ID()); err != nil {
			log.Warn().Str("module", "orch").Err(err).Str("meeting", string(m.Code())).Msg("end meeting")
		}
	case req.Action == domain.ActionPromote, req.Action == domain.ActionDemote:
		target := out.Target.Snapshot()
		o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
			Event:         wire.PresenceRoleChanged,
			ParticipantID: target.ID,
			Name:          target.Name,
			Role:          target.Role.String(),
		}), "")
	case req.Action == domain.ActionTransferHost:
		target := out.Target.Snapshot()
		o.Router.Broadcast(m, wire.MustFrame(wire.TypePresence, wire.Presence{
			Event:         wire.PresenceHostChanged,
			ParticipantID: target.ID,
			Name:          target.Name,
			Role:          target.Role.String(),
		}), "")
		o.record(domain.Event{Meeting: m.Code(), Kind: domain.EventHostChanged, Participant: target.ID, Name: target.Name, Actor: p.ID()})
	}
}
