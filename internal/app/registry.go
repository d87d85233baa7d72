package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/domain"
)

// Registry indexes joined participants by id and by media token.
// Unbind is the single point that makes a leave take effect once.
type Registry struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]*Participant
	tokens       map[uint32]domain.ParticipantID
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[domain.ParticipantID]*Participant),
		tokens:       make(map[uint32]domain.ParticipantID),
	}
}

func (r *Registry) bind(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.id] = p
	r.tokens[p.token] = p.id
	log.Info().Str("module", "app.registry").Str("pid", string(p.id)).Str("meeting", string(p.meeting.code)).Msg("bound participant")
}

// tokenFree reports whether a media token is unused.
func (r *Registry) tokenFree(token uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, used := r.tokens[token]
	return token != 0 && !used
}

func (r *Registry) Lookup(id domain.ParticipantID) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

func (r *Registry) ByToken(token uint32) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tokens[token]
	if !ok {
		return nil, false
	}
	p, ok := r.participants[id]
	return p, ok
}

// unbind removes the participant and reports whether it was still bound.
func (r *Registry) unbind(id domain.ParticipantID) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, false
	}
	delete(r.participants, id)
	delete(r.tokens, p.token)
	log.Info().Str("module", "app.registry").Str("pid", string(id)).Msg("unbind participant")
	return p, true
}

// Cancel kicks the participant's connection; the write pump flushes what
// is queued and closes the transport.
func (r *Registry) Cancel(id domain.ParticipantID) bool {
	r.mu.RLock()
	p, ok := r.participants[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	p.Kick()
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
