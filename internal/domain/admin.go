package domain

type AdminAction string

const (
	ActionMute               AdminAction = "mute"
	ActionUnmute             AdminAction = "unmute"
	ActionLockMic            AdminAction = "lock_mic"
	ActionUnlockMic          AdminAction = "unlock_mic"
	ActionRemove             AdminAction = "remove"
	ActionEndMeeting         AdminAction = "end_meeting"
	ActionPromote            AdminAction = "promote"
	ActionDemote             AdminAction = "demote"
	ActionTransferHost       AdminAction = "transfer_host"
	ActionRequestUnmute      AdminAction = "request_unmute"
	ActionRequestVideo       AdminAction = "request_video"
	ActionRequestScreenShare AdminAction = "request_screen_share"
)

type actionRule struct {
	roles map[Role]bool
	// meetingWide actions take no target; optionalTarget ones treat an empty target as everyone.
	meetingWide    bool
	optionalTarget bool
}

var (
	hostOnly  = map[Role]bool{RoleHost: true}
	moderator = map[Role]bool{RoleHost: true, RoleCoHost: true}
)

var authorization = map[AdminAction]actionRule{
	ActionMute:               {roles: moderator},
	ActionUnmute:             {roles: moderator},
	ActionLockMic:            {roles: moderator},
	ActionUnlockMic:          {roles: moderator},
	ActionRemove:             {roles: moderator},
	ActionRequestUnmute:      {roles: moderator, optionalTarget: true},
	ActionRequestVideo:       {roles: moderator, optionalTarget: true},
	ActionRequestScreenShare: {roles: moderator, optionalTarget: true},
	ActionEndMeeting:         {roles: hostOnly, meetingWide: true},
	ActionPromote:            {roles: hostOnly},
	ActionDemote:             {roles: moderator},
	ActionTransferHost:       {roles: hostOnly},
}

// NeedsTarget reports whether the action must name a participant.
func (a AdminAction) NeedsTarget() bool {
	rule, ok := authorization[a]
	return ok && !rule.meetingWide && !rule.optionalTarget
}

// MeetingWide reports whether the action ignores any target.
func (a AdminAction) MeetingWide() bool {
	rule, ok := authorization[a]
	return ok && rule.meetingWide
}

// Authorize checks the (actor role, action) table once per action.
// targetRole is ignored when hasTarget is false.
func Authorize(actor Role, action AdminAction, target Role, hasTarget bool) error {
	rule, ok := authorization[action]
	if !ok {
		return ErrUnknownAction
	}
	if !rule.roles[actor] {
		return ErrNotAuthorized
	}
	// A co-host cannot act on the host or on another co-host.
	if hasTarget && actor != RoleHost && target >= actor {
		return ErrNotAuthorized
	}
	return nil
}
