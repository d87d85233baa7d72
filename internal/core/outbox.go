package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

const DefaultReliableTimeout = 5 * time.Second

// Outbox is a bounded FIFO of frames waiting for one connection's write pump.
// Best-effort frames are dropped when it is full; reliable frames wait up
// to the reliable timeout. The channel is never closed: Close only stops
// new frames and tells the write pump to flush what is queued.
type Outbox struct {
	queue           chan wire.Frame
	closing         chan struct{}
	once            sync.Once
	reliableTimeout time.Duration

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type OutboxStats struct {
	Queued  int    `json:"queued"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

func NewOutbox(capacity int, reliableTimeout time.Duration) *Outbox {
	if capacity <= 0 {
		capacity = 1
	}
	if reliableTimeout <= 0 {
		reliableTimeout = DefaultReliableTimeout
	}
	return &Outbox{
		queue:           make(chan wire.Frame, capacity),
		closing:         make(chan struct{}),
		reliableTimeout: reliableTimeout,
	}
}

func (o *Outbox) closed() bool {
	select {
	case <-o.closing:
		return true
	default:
		return false
	}
}

// TrySend enqueues a best-effort frame or drops it.
func (o *Outbox) TrySend(f wire.Frame) error {
	if o.closed() {
		return domain.ErrOutboxClosed
	}
	select {
	case o.queue <- f:
		o.sent.Add(1)
		return nil
	default:
		o.dropped.Add(1)
		return domain.ErrBackpressure
	}
}

// Send enqueues a reliable frame, waiting for room if the queue is full.
func (o *Outbox) Send(f wire.Frame) error {
	if o.closed() {
		return domain.ErrOutboxClosed
	}
	select {
	case o.queue <- f:
		o.sent.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(o.reliableTimeout)
	defer timer.Stop()
	select {
	case o.queue <- f:
		o.sent.Add(1)
		return nil
	case <-o.closing:
		return domain.ErrOutboxClosed
	case <-timer.C:
		return domain.ErrSlowConsumer
	}
}

// Close is idempotent.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.closing) })
}

func (o *Outbox) Frames() <-chan wire.Frame { return o.queue }

func (o *Outbox) Closing() <-chan struct{} { return o.closing }

func (o *Outbox) Dropped() uint64 { return o.dropped.Load() }

func (o *Outbox) Stats() OutboxStats {
	return OutboxStats{
		Queued:  len(o.queue),
		Sent:    o.sent.Load(),
		Dropped: o.dropped.Load(),
	}
}
