package app

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

// AdminOutcome tells the caller which follow-ups an applied action needs.
type AdminOutcome struct {
	Action  domain.AdminAction
	Meeting *Meeting
	Actor   domain.Participant
	// Target is nil for meeting-wide or untargeted actions.
	Target *Participant
	Remove bool
	End    bool
}

// AdminPlane authorizes and applies host actions.
type AdminPlane struct {
	rooms  *RoomManager
	router *Router
	logger zerolog.Logger
}

func NewAdminPlane(rooms *RoomManager, router *Router) *AdminPlane {
	return &AdminPlane{
		rooms:  rooms,
		router: router,
		logger: log.With().Str("module", "app.admin").Logger(),
	}
}

var roleActions = map[domain.AdminAction]domain.Role{
	domain.ActionPromote:      domain.RoleCoHost,
	domain.ActionDemote:       domain.RoleAttendee,
	domain.ActionTransferHost: domain.RoleHost,
}

// Apply runs one admin action. On success every member (target included)
// gets an AdminBroadcast and the actor an ok AdminResult; a rejection only
// reaches the actor.
func (a *AdminPlane) Apply(actor *Participant, req wire.AdminAction) (AdminOutcome, error) {
	out, err := a.apply(actor, req)
	result := wire.AdminResult{Action: req.Action, TargetID: req.TargetID, OK: err == nil}
	if err != nil {
		result.Error = err.Error()
		a.logger.Info().Err(err).Str("pid", string(actor.id)).Str("action", string(req.Action)).Str("target", string(req.TargetID)).Msg("admin action rejected")
		_ = a.router.SendTo(actor.id, wire.MustFrame(wire.TypeAdminResult, result))
		return out, err
	}

	bc := wire.AdminBroadcast{Action: req.Action, ActorID: actor.id}
	if out.Target != nil {
		bc.TargetID = out.Target.id
	}
	a.router.Broadcast(out.Meeting, wire.MustFrame(wire.TypeAdminBroadcast, bc), "")
	_ = a.router.SendTo(actor.id, wire.MustFrame(wire.TypeAdminResult, result))
	a.logger.Info().Str("meeting", string(out.Meeting.code)).Str("pid", string(actor.id)).Str("action", string(req.Action)).Str("target", string(bc.TargetID)).Msg("admin action applied")
	return out, nil
}

func (a *AdminPlane) apply(actor *Participant, req wire.AdminAction) (AdminOutcome, error) {
	out := AdminOutcome{Action: req.Action, Meeting: actor.meeting}
	if cur, ok := a.rooms.registry.Lookup(actor.id); !ok || cur != actor {
		return out, domain.ErrNotFound
	}
	if role, ok := roleActions[req.Action]; ok {
		if err := a.rooms.SetRole(actor.id, req.TargetID, role); err != nil {
			return out, err
		}
		out.Target, _ = actor.meeting.member(req.TargetID)
		out.Actor = actor.Snapshot()
		return out, nil
	}

	m := actor.meeting
	m.mu.Lock()
	defer m.mu.Unlock()
	act, target, err := m.authorizeLocked(actor.id, req.TargetID, req.Action)
	if err != nil {
		return out, err
	}
	out.Actor = act.meta
	out.Target = target
	switch req.Action {
	case domain.ActionMute:
		target.meta.Muted = true
	case domain.ActionUnmute:
		target.meta.Muted = false
	case domain.ActionLockMic:
		target.meta.MicLocked = true
		target.meta.Muted = true
	case domain.ActionUnlockMic:
		target.meta.MicLocked = false
	case domain.ActionRemove:
		out.Remove = true
	case domain.ActionEndMeeting:
		out.End = true
	case domain.ActionRequestUnmute, domain.ActionRequestVideo, domain.ActionRequestScreenShare:
		// Requests only notify; clients decide.
	default:
		return out, domain.ErrUnknownAction
	}
	return out, nil
}
