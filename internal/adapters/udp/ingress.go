// Package udp accepts media as RTP packets on a datagram socket. The SSRC
// carries the participant's media token from JoinAck.
package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/wire"
)

const (
	PayloadTypeVideo       = 96
	PayloadTypeScreenShare = 97
	PayloadTypeAudio       = 111

	maxDatagram = 64 << 10
	streamIdle  = time.Minute
)

// MediaSink routes a media frame on behalf of the token's owner.
type MediaSink interface {
	OnMedia(token uint32, f wire.Frame) bool
}

type streamKey struct {
	token uint32
	typ   wire.Type
}

// stream extends 16 bit RTP sequence numbers to the 64 bit frame sequence.
type stream struct {
	last     uint64
	lastSeen time.Time
}

func (s *stream) extend(seq uint16, now time.Time) uint64 {
	s.lastSeen = now
	if s.last == 0 {
		// Start one cycle up so early regressions stay above zero.
		s.last = 1<<16 + uint64(seq)
		return s.last
	}
	ext := uint64(int64(s.last) + int64(int16(seq-uint16(s.last))))
	if ext > s.last {
		s.last = ext
	}
	return ext
}

type Stats struct {
	Packets  uint64 `json:"packets"`
	Rejected uint64 `json:"rejected"`
}

type Ingress struct {
	Addr string
	Sink MediaSink

	mu      sync.Mutex
	streams map[streamKey]*stream

	packets  atomic.Uint64
	rejected atomic.Uint64
	logger   zerolog.Logger
}

func NewIngress(addr string, sink MediaSink) *Ingress {
	return &Ingress{
		Addr:    addr,
		Sink:    sink,
		streams: make(map[streamKey]*stream),
		logger:  log.With().Str("module", "udp").Logger(),
	}
}

func frameType(pt uint8) (wire.Type, bool) {
	switch pt {
	case PayloadTypeVideo:
		return wire.TypeVideo, true
	case PayloadTypeScreenShare:
		return wire.TypeScreenShare, true
	case PayloadTypeAudio:
		return wire.TypeAudio, true
	}
	return 0, false
}

// ListenAndServe reads datagrams until ctx is done.
func (in *Ingress) ListenAndServe(ctx context.Context) error {
	pc, err := net.ListenPacket("udp", in.Addr)
	if err != nil {
		return err
	}
	return in.Serve(ctx, pc)
}

func (in *Ingress) Serve(ctx context.Context, pc net.PacketConn) error {
	in.logger.Info().Str("addr", pc.LocalAddr().String()).Msg("listening")
	stop := context.AfterFunc(ctx, func() { _ = pc.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	lastPrune := time.Now()
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			in.rejected.Add(1)
			continue
		}
		in.Handle(&pkt)
		if now := time.Now(); now.Sub(lastPrune) > streamIdle {
			in.prune(now)
			lastPrune = now
		}
	}
}

// Handle converts one RTP packet to a media frame and routes it.
func (in *Ingress) Handle(pkt *rtp.Packet) bool {
	in.packets.Add(1)
	typ, ok := frameType(pkt.PayloadType)
	if !ok {
		in.rejected.Add(1)
		return false
	}
	now := time.Now()
	key := streamKey{token: pkt.SSRC, typ: typ}

	in.mu.Lock()
	s, ok := in.streams[key]
	if !ok {
		s = &stream{}
		in.streams[key] = s
	}
	seq := s.extend(pkt.SequenceNumber, now)
	in.mu.Unlock()

	f := wire.Frame{
		Type:      typ,
		Sequence:  seq,
		Timestamp: now.UnixNano(),
		Payload:   append([]byte(nil), pkt.Payload...),
	}
	if !in.Sink.OnMedia(pkt.SSRC, f) {
		in.rejected.Add(1)
		return false
	}
	return true
}

func (in *Ingress) prune(now time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for k, s := range in.streams {
		if now.Sub(s.lastSeen) > streamIdle {
			delete(in.streams, k)
		}
	}
}

func (in *Ingress) Stats() Stats {
	return Stats{Packets: in.packets.Load(), Rejected: in.rejected.Load()}
}
