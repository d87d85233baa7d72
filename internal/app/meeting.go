package app

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/dkeye/lanmeet/internal/core"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

// Participant pairs the participant meta with its outbound queue.
// id, name, token and sink never change; meta is guarded by the meeting.
type Participant struct {
	id      domain.ParticipantID
	name    string
	token   uint32
	meeting *Meeting
	sink    core.Sink
	kick    func()

	meta domain.Participant
	seq  sequencer
}

func (p *Participant) ID() domain.ParticipantID { return p.id }
func (p *Participant) Name() string             { return p.name }
func (p *Participant) MediaToken() uint32       { return p.token }
func (p *Participant) Meeting() *Meeting        { return p.meeting }
func (p *Participant) Sink() core.Sink          { return p.sink }

// Kick closes the participant's outbound queue; its connection flushes
// and closes. Safe to call after the participant left.
func (p *Participant) Kick() {
	if p.kick != nil {
		p.kick()
	}
}

// Snapshot returns a copy of the current meta.
func (p *Participant) Snapshot() domain.Participant {
	p.meeting.mu.Lock()
	defer p.meeting.mu.Unlock()
	return p.meta
}

// Dropped is the number of best-effort frames dropped for this participant.
func (p *Participant) Dropped() uint64 {
	if d, ok := p.sink.(interface{ Dropped() uint64 }); ok {
		return d.Dropped()
	}
	return 0
}

// AcceptSequence filters duplicates and regressions per frame type.
func (p *Participant) AcceptSequence(t wire.Type, seq uint64) bool {
	return p.seq.accept(t, seq)
}

// Meeting is a threadsafe in-memory room. mu guards membership and
// participant meta; dispatch serializes fan-out so every recipient sees
// the meeting's frames in one order.
type Meeting struct {
	code      domain.MeetingCode
	createdAt time.Time
	capacity  int

	mu        sync.Mutex
	state     domain.MeetingState
	endedAt   time.Time
	hostID    domain.ParticipantID
	presenter domain.ParticipantID
	members   map[domain.ParticipantID]*Participant
	tenure    uint64
	removal   bool

	dispatch sync.Mutex
	seq      atomic.Uint64
}

func newMeeting(code domain.MeetingCode, capacity int, now time.Time) *Meeting {
	return &Meeting{
		code:      code,
		createdAt: now,
		capacity:  capacity,
		members:   make(map[domain.ParticipantID]*Participant),
	}
}

func (m *Meeting) Code() domain.MeetingCode { return m.code }

func (m *Meeting) State() domain.MeetingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Meeting) Info() domain.MeetingInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.MeetingInfo{
		Code:             m.code,
		State:            m.state.String(),
		Host:             m.hostID,
		CreatedAt:        m.createdAt,
		ParticipantCount: len(m.members),
		Presenter:        m.presenter,
	}
}

func (m *Meeting) nextSeq() uint64 { return m.seq.Add(1) }

// sortedLocked returns members by tenure. Caller holds mu.
func (m *Meeting) sortedLocked() []*Participant {
	out := lo.Values(m.members)
	sort.Slice(out, func(i, j int) bool { return out[i].meta.Tenure < out[j].meta.Tenure })
	return out
}

// Participants returns member snapshots ordered by join time.
func (m *Meeting) Participants() []domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Map(m.sortedLocked(), func(p *Participant, _ int) domain.Participant { return p.meta })
}

// targets returns the active members other than exclude, in tenure order.
func (m *Meeting) targets(exclude domain.ParticipantID) []*Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.sortedLocked(), func(p *Participant, _ int) bool {
		return p.id != exclude && p.meta.State == domain.StateActive
	})
}

func (m *Meeting) member(id domain.ParticipantID) (*Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.members[id]
	return p, ok
}

// Update mutates a member's meta under the meeting lock.
func (m *Meeting) Update(id domain.ParticipantID, fn func(*domain.Participant) error) (domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.members[id]
	if !ok {
		return domain.Participant{}, domain.ErrNotFound
	}
	if err := fn(&p.meta); err != nil {
		return p.meta, err
	}
	return p.meta, nil
}

// ClaimPresenter makes id the single screen-share presenter.
func (m *Meeting) ClaimPresenter(id domain.ParticipantID) (domain.ParticipantID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return "", domain.ErrNotFound
	}
	if m.presenter != "" && m.presenter != id {
		return m.presenter, domain.ErrPresenterActive
	}
	m.presenter = id
	return id, nil
}

// ReleasePresenter clears the presenter if it is id.
func (m *Meeting) ReleasePresenter(id domain.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.presenter != id {
		return false
	}
	m.presenter = ""
	return true
}

func (m *Meeting) Presenter() domain.ParticipantID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presenter
}

// pickHostLocked applies the longest-tenured co-host, else longest-tenured
// attendee rule. Members still joining are considered only when no active
// member is left. Caller holds mu.
func (m *Meeting) pickHostLocked() *Participant {
	sorted := m.sortedLocked()
	active := lo.Filter(sorted, func(p *Participant, _ int) bool { return p.meta.State == domain.StateActive })
	if len(active) > 0 {
		sorted = active
	}
	if p, ok := lo.Find(sorted, func(p *Participant) bool { return p.meta.Role == domain.RoleCoHost }); ok {
		return p
	}
	if len(sorted) == 0 {
		return nil
	}
	return sorted[0]
}

// authorizeLocked resolves actor and target and checks the authorization
// table. target is nil for meeting-wide or untargeted actions.
func (m *Meeting) authorizeLocked(actorID, targetID domain.ParticipantID, action domain.AdminAction) (*Participant, *Participant, error) {
	if m.state == domain.MeetingEnded {
		return nil, nil, domain.ErrMeetingEnded
	}
	actor, ok := m.members[actorID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	var target *Participant
	hasTarget := targetID != "" && !action.MeetingWide()
	if hasTarget {
		if targetID == actorID {
			return nil, nil, domain.ErrSelfTarget
		}
		if target, ok = m.members[targetID]; !ok {
			return nil, nil, domain.ErrNotFound
		}
	} else if action.NeedsTarget() {
		return nil, nil, domain.ErrNotFound
	}
	var targetRole domain.Role
	if target != nil {
		targetRole = target.meta.Role
	}
	if err := domain.Authorize(actor.meta.Role, action, targetRole, hasTarget); err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

// setRoleLocked applies a role change already authorized. Handing over
// the host role demotes the old host to co-host.
func (m *Meeting) setRoleLocked(actor, target *Participant, role domain.Role) {
	if role == domain.RoleHost {
		actor.meta.Role = domain.RoleCoHost
		m.hostID = target.id
	}
	target.meta.Role = role
}

type sequencer struct {
	mu   sync.Mutex
	last map[wire.Type]uint64
}

// accept reports whether seq may be delivered. Zero means unsequenced.
// Reliable types need strictly increasing numbers; media tolerates repeats
// but drops regressions.
func (s *sequencer) accept(t wire.Type, seq uint64) bool {
	if seq == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = make(map[wire.Type]uint64)
	}
	last, seen := s.last[t]
	if seen {
		if t.Kind().BestEffort() {
			if seq < last {
				return false
			}
		} else if seq <= last {
			return false
		}
	}
	s.last[t] = seq
	return true
}
