package orch

import (
	"github.com/dkeye/lanmeet/internal/wire"
)

// OnMedia routes a media frame that arrived outside the participant's
// connection, keyed by the media token handed out in JoinAck.
func (o *Orchestrator) OnMedia(token uint32, f wire.Frame) bool {
	if !f.Kind().BestEffort() {
		return false
	}
	p, ok := o.Rooms.Registry().ByToken(token)
	if !ok {
		return false
	}
	if !p.AcceptSequence(f.Type, f.Sequence) {
		return false
	}
	o.Router.Route(p, f)
	return true
}
