package app

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

// PublishResult reports one fan-out: how many targets got the frame, which
// dropped it and which refused a reliable frame.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ParticipantID
	Failed  []domain.ParticipantID
}

type RouterStats struct {
	Routed    uint64 `json:"routed"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Router fans frames out to the members of the sender's meeting.
// Every routed (frame, target) pair ends up delivered or dropped.
type Router struct {
	rooms  *RoomManager
	policy Policy
	logger zerolog.Logger

	routed    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewRouter(rooms *RoomManager, policy Policy) *Router {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Router{
		rooms:  rooms,
		policy: policy,
		logger: log.With().Str("module", "app.router").Logger(),
	}
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		Routed:    r.routed.Load(),
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// admissible checks that the sender is still bound and allowed to emit
// this kind of frame right now.
func (r *Router) admissible(sender *Participant, f wire.Frame) bool {
	if cur, ok := r.rooms.registry.Lookup(sender.id); !ok || cur != sender {
		return false
	}
	m := sender.meeting
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.MeetingOpen || sender.meta.State != domain.StateActive {
		return false
	}
	switch f.Type {
	case wire.TypeAudio:
		return !sender.meta.Muted && !sender.meta.MicLocked
	case wire.TypeScreenShare:
		return m.presenter == sender.id
	}
	return true
}

func stamp(sender *Participant, f wire.Frame) wire.Frame {
	f.Sender = string(sender.id)
	f.Meeting = string(sender.meeting.code)
	return f
}

// Route relays a participant's frame to every other active member.
func (r *Router) Route(sender *Participant, f wire.Frame) PublishResult {
	if !r.admissible(sender, f) {
		r.logger.Debug().Str("pid", string(sender.id)).Str("type", f.Type.String()).Msg("frame discarded")
		return PublishResult{}
	}
	f = stamp(sender, f)
	m := sender.meeting
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	return r.deliver(m, m.targets(sender.id), f)
}

// Unicast relays a participant's frame to one member of the same meeting.
func (r *Router) Unicast(sender *Participant, to domain.ParticipantID, f wire.Frame) (PublishResult, error) {
	if !r.admissible(sender, f) {
		return PublishResult{}, nil
	}
	m := sender.meeting
	target, ok := m.member(to)
	if !ok || to == sender.id {
		return PublishResult{}, domain.ErrNotFound
	}
	f = stamp(sender, f)
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	return r.deliver(m, []*Participant{target}, f), nil
}

// Broadcast sends a server frame to the active members except exclude.
func (r *Router) Broadcast(m *Meeting, f wire.Frame, exclude domain.ParticipantID) PublishResult {
	f.Meeting = string(m.code)
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	f.Sequence = m.nextSeq()
	return r.deliver(m, m.targets(exclude), f)
}

// SendTo delivers a server frame to one participant, whatever its state.
func (r *Router) SendTo(id domain.ParticipantID, f wire.Frame) error {
	p, ok := r.rooms.registry.Lookup(id)
	if !ok {
		return domain.ErrNotFound
	}
	m := p.meeting
	f.Meeting = string(m.code)
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	f.Sequence = m.nextSeq()
	res := r.deliver(m, []*Participant{p}, f)
	if res.SendTo == 0 {
		if f.Kind().BestEffort() {
			return domain.ErrBackpressure
		}
		return domain.ErrSlowConsumer
	}
	return nil
}

// Forward relays a frame that already carries its sender and sequence to
// one participant. Used for file chunks, whose sequence numbers the
// receiver relies on.
func (r *Router) Forward(id domain.ParticipantID, f wire.Frame) error {
	p, ok := r.rooms.registry.Lookup(id)
	if !ok {
		return domain.ErrNotFound
	}
	m := p.meeting
	f.Meeting = string(m.code)
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	if r.deliver(m, []*Participant{p}, f).SendTo == 0 {
		return domain.ErrSlowConsumer
	}
	return nil
}

// deliver runs under m.dispatch.
func (r *Router) deliver(m *Meeting, targets []*Participant, f wire.Frame) PublishResult {
	var res PublishResult
	kind := f.Kind()
	for _, t := range targets {
		r.routed.Add(1)
		var err error
		if kind.BestEffort() {
			err = t.sink.TrySend(f)
		} else {
			err = t.sink.Send(f)
		}
		if err == nil {
			r.delivered.Add(1)
			res.SendTo++
			continue
		}
		r.dropped.Add(1)
		switch r.policy.OnBackPressure(m, t, f.Type, err) {
		case DropFrame:
			res.Dropped = append(res.Dropped, t.id)
		case KickMember:
			res.Failed = append(res.Failed, t.id)
			r.logger.Warn().Err(err).Str("meeting", string(m.code)).Str("pid", string(t.id)).Str("type", f.Type.String()).Msg("kicking slow consumer")
			t.Kick()
		case MarkSlow, NoAction:
			res.Failed = append(res.Failed, t.id)
		}
	}
	return res
}
