package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/lanmeet/internal/core"
	"github.com/dkeye/lanmeet/internal/domain"
)

const (
	DefaultMaxParticipants = 50
	DefaultMeetingGrace    = 30 * time.Second
)

type RoomOptions struct {
	MaxParticipants int
	// Grace keeps an ended meeting visible as Ended before it is dropped.
	Grace time.Duration
}

// JoinRequest carries what the connection handler knows after the handshake.
type JoinRequest struct {
	Code string
	Name string
	Sink core.Sink
	// Kick closes the connection after flushing its queue.
	Kick func()
}

// LeaveResult describes what a leave changed. Left is false when the
// participant was already gone.
type LeaveResult struct {
	Left             bool
	Participant      domain.Participant
	Handle           *Participant
	Meeting          *Meeting
	NewHost          *domain.Participant
	PresenterCleared bool
	// Ended is true when this leave emptied the meeting.
	Ended bool
	// MeetingState is the meeting's state after the leave.
	MeetingState domain.MeetingState
}

// RoomManager is the authoritative registry of meetings. The code index
// has its own lock; every meeting has its own, so unrelated meetings do
// not contend.
type RoomManager struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingCode]*Meeting

	registry *Registry
	opts     RoomOptions
	now      func() time.Time
}

func NewRoomManager(opts RoomOptions, registry *Registry) *RoomManager {
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = DefaultMaxParticipants
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultMeetingGrace
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &RoomManager{
		meetings: make(map[domain.MeetingCode]*Meeting),
		registry: registry,
		opts:     opts,
		now:      time.Now,
	}
}

func (rm *RoomManager) Registry() *Registry { return rm.registry }

// getOrCreate mirrors the read-then-write locking of a lazily created room.
func (rm *RoomManager) getOrCreate(code domain.MeetingCode) *Meeting {
	rm.mu.RLock()
	m, ok := rm.meetings[code]
	rm.mu.RUnlock()
	if ok {
		return m
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if m, ok = rm.meetings[code]; ok {
		return m
	}
	m = newMeeting(code, rm.opts.MaxParticipants, rm.now())
	rm.meetings[code] = m
	log.Info().Str("module", "app.rooms").Str("meeting", string(code)).Msg("meeting created")
	return m
}

// createFresh generates an unused code and registers a new meeting.
func (rm *RoomManager) createFresh() *Meeting {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for {
		code := domain.GenerateCode()
		if _, taken := rm.meetings[code]; taken {
			continue
		}
		m := newMeeting(code, rm.opts.MaxParticipants, rm.now())
		rm.meetings[code] = m
		log.Info().Str("module", "app.rooms").Str("meeting", string(code)).Msg("meeting created with generated code")
		return m
	}
}

func (rm *RoomManager) newToken() uint32 {
	for {
		if token := uuid.New().ID(); rm.registry.tokenFree(token) {
			return token
		}
	}
}

// CreateOrJoinMeeting admits a participant. An empty code creates a meeting
// with a generated code; the first member of a meeting becomes its Host.
// The participant starts Joining and receives no routed frames until
// Activate.
func (rm *RoomManager) CreateOrJoinMeeting(req JoinRequest) (*Participant, error) {
	name, err := domain.NormalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	var m *Meeting
	if req.Code == "" {
		m = rm.createFresh()
	} else {
		code, err := domain.NormalizeCode(req.Code)
		if err != nil {
			return nil, err
		}
		m = rm.getOrCreate(code)
	}

	p := &Participant{
		id:      domain.NewParticipantID(),
		name:    name,
		token:   rm.newToken(),
		meeting: m,
		sink:    req.Sink,
		kick:    req.Kick,
	}

	m.mu.Lock()
	if m.state == domain.MeetingEnded {
		m.mu.Unlock()
		return nil, domain.ErrMeetingEnded
	}
	if len(m.members) >= m.capacity {
		m.mu.Unlock()
		return nil, domain.ErrRoomFull
	}
	m.tenure++
	role := domain.RoleAttendee
	if len(m.members) == 0 {
		role = domain.RoleHost
		m.hostID = p.id
	}
	p.meta = domain.Participant{
		ID:         p.id,
		Name:       name,
		Role:       role,
		State:      domain.StateJoining,
		JoinedAt:   rm.now(),
		Tenure:     m.tenure,
		MediaToken: p.token,
	}
	m.members[p.id] = p
	m.mu.Unlock()

	rm.registry.bind(p)
	log.Info().Str("module", "app.rooms").Str("meeting", string(m.code)).Str("pid", string(p.id)).Str("name", name).Str("role", role.String()).Msg("participant joined")
	return p, nil
}

// Activate moves a Joining participant to Active.
func (rm *RoomManager) Activate(p *Participant) bool {
	m := p.meeting
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.meta.State != domain.StateJoining {
		return false
	}
	if _, ok := m.members[p.id]; !ok {
		return false
	}
	p.meta.State = domain.StateActive
	return true
}

// Leave removes a participant. It is idempotent: only the first call for
// an id has any effect. The host role passes on by tenure; an emptied
// meeting is Ended and dropped after the grace period.
func (rm *RoomManager) Leave(id domain.ParticipantID, final domain.ParticipantState) LeaveResult {
	p, ok := rm.registry.unbind(id)
	if !ok {
		return LeaveResult{}
	}
	if final != domain.StateRemoved {
		final = domain.StateLeft
	}
	m := p.meeting
	res := LeaveResult{Left: true, Handle: p, Meeting: m}

	m.mu.Lock()
	delete(m.members, id)
	p.meta.State = final
	res.Participant = p.meta
	if m.presenter == id {
		m.presenter = ""
		res.PresenterCleared = true
	}
	if m.state == domain.MeetingOpen && m.hostID == id {
		m.hostID = ""
		if next := m.pickHostLocked(); next != nil {
			next.meta.Role = domain.RoleHost
			m.hostID = next.id
			snap := next.meta
			res.NewHost = &snap
		}
	}
	if len(m.members) == 0 {
		if m.state == domain.MeetingOpen {
			m.state = domain.MeetingEnded
			m.endedAt = rm.now()
			res.Ended = true
		}
	}
	scheduleRemoval := len(m.members) == 0 && !m.removal
	if scheduleRemoval {
		m.removal = true
	}
	res.MeetingState = m.state
	m.mu.Unlock()

	if scheduleRemoval {
		rm.scheduleRemoval(m)
	}
	log.Info().Str("module", "app.rooms").Str("meeting", string(m.code)).Str("pid", string(id)).Str("state", final.String()).Bool("ended", res.Ended).Msg("participant left")
	return res
}

func (rm *RoomManager) scheduleRemoval(m *Meeting) {
	time.AfterFunc(rm.opts.Grace, func() {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		if cur, ok := rm.meetings[m.code]; ok && cur == m {
			delete(rm.meetings, m.code)
			log.Info().Str("module", "app.rooms").Str("meeting", string(m.code)).Msg("meeting removed")
		}
	})
}

// EndMeeting marks the meeting Ended and returns the members that still
// need to be led out.
func (rm *RoomManager) EndMeeting(code domain.MeetingCode) ([]*Participant, error) {
	m, err := rm.Meeting(code)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.MeetingEnded {
		return nil, domain.ErrMeetingEnded
	}
	m.state = domain.MeetingEnded
	m.endedAt = rm.now()
	log.Info().Str("module", "app.rooms").Str("meeting", string(code)).Int("members", len(m.members)).Msg("meeting ended")
	return m.sortedLocked(), nil
}

// SetRole changes target's role on behalf of actor. Host and co-hosts may
// demote attendees; only the Host appoints co-hosts or hands over Host.
func (rm *RoomManager) SetRole(actorID, targetID domain.ParticipantID, role domain.Role) error {
	actorP, ok := rm.registry.Lookup(actorID)
	if !ok {
		return domain.ErrNotFound
	}
	m := actorP.meeting
	action := domain.ActionDemote
	switch role {
	case domain.RoleHost:
		action = domain.ActionTransferHost
	case domain.RoleCoHost:
		action = domain.ActionPromote
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	actor, target, err := m.authorizeLocked(actorID, targetID, action)
	if err != nil {
		if err == domain.ErrSelfTarget {
			return domain.ErrNotAuthorized
		}
		return err
	}
	m.setRoleLocked(actor, target, role)
	log.Info().Str("module", "app.rooms").Str("meeting", string(m.code)).Str("actor", string(actorID)).Str("target", string(targetID)).Str("role", role.String()).Msg("role changed")
	return nil
}

// Meeting looks a meeting up by code. Ended meetings are returned during
// the grace period.
func (rm *RoomManager) Meeting(code domain.MeetingCode) (*Meeting, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	m, ok := rm.meetings[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

// ListParticipants returns the members ordered by join time.
func (rm *RoomManager) ListParticipants(code domain.MeetingCode) ([]domain.Participant, error) {
	m, err := rm.Meeting(code)
	if err != nil {
		return nil, err
	}
	if m.State() == domain.MeetingEnded {
		return nil, domain.ErrMeetingEnded
	}
	return m.Participants(), nil
}

// Peers returns the meeting and the active participants other than id.
func (rm *RoomManager) Peers(id domain.ParticipantID) (domain.MeetingCode, []domain.ParticipantID, error) {
	p, ok := rm.registry.Lookup(id)
	if !ok {
		return "", nil, domain.ErrNotFound
	}
	ids := lo.Map(p.meeting.targets(id), func(t *Participant, _ int) domain.ParticipantID { return t.id })
	return p.meeting.code, ids, nil
}

func (rm *RoomManager) List() []domain.MeetingInfo {
	rm.mu.RLock()
	meetings := lo.Values(rm.meetings)
	rm.mu.RUnlock()
	return lo.Map(meetings, func(m *Meeting, _ int) domain.MeetingInfo { return m.Info() })
}

func (rm *RoomManager) Count() (meetings, participants int) {
	rm.mu.RLock()
	meetings = len(rm.meetings)
	rm.mu.RUnlock()
	return meetings, rm.registry.Count()
}
