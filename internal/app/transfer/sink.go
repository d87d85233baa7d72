//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks
package transfer

import (
	"time"

	"github.com/dkeye/lanmeet/internal/domain"
)

// FileMeta describes a transfer for a FileSink.
type FileMeta struct {
	TransferID string
	Filename   string
	Size       int64
	Sender     domain.ParticipantID
	Meeting    domain.MeetingCode
	StartedAt  time.Time
}

// FileSink consumes the chunks of every transfer, for example to archive them.
type FileSink interface {
	Open(meta FileMeta) (ChunkWriter, error)
}

// ChunkWriter receives one transfer's chunks in order. Exactly one of
// Close or Abort is called.
type ChunkWriter interface {
	WriteChunk(seq uint64, data []byte) error
	Close() error
	Abort(reason string) error
}
