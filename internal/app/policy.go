package app

import (
	"errors"

	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a target whose queue refused a frame.
type Policy interface {
	OnBackPressure(m *Meeting, target *Participant, t wire.Type, err error) BackpressureAction
}

// DefaultPolicy drops media for a full queue and kicks a participant that
// cannot take a reliable frame in time. A refused file frame only costs the
// target that transfer; the coordinator aborts its delivery.
type DefaultPolicy struct{}

func isFileFrame(t wire.Type) bool {
	return t == wire.TypeFileAnnounce || t == wire.TypeFileChunk || t == wire.TypeFileStatus
}

func (DefaultPolicy) OnBackPressure(_ *Meeting, _ *Participant, t wire.Type, err error) BackpressureAction {
	switch {
	case errors.Is(err, domain.ErrOutboxClosed):
		return NoAction
	case t.Kind().BestEffort(), isFileFrame(t):
		return DropFrame
	default:
		return KickMember
	}
}
