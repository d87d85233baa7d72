package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dkeye/lanmeet/internal/domain"
)

const (
	lengthPrefix = 4
	// type + two id lengths + sequence + timestamp
	fixedHeader = 1 + 1 + 1 + 8 + 8
	maxIDLen    = 255

	DefaultMaxFrameSize = 10 << 20
)

var (
	ErrShortFrame  = errors.New("short frame")
	ErrUnknownType = errors.New("unknown frame type")
	ErrIDTooLong   = errors.New("identifier too long")
)

// Marshal encodes the frame body without the length prefix.
func Marshal(f Frame) ([]byte, error) {
	if len(f.Sender) > maxIDLen || len(f.Meeting) > maxIDLen {
		return nil, ErrIDTooLong
	}
	buf := make([]byte, 0, fixedHeader+len(f.Sender)+len(f.Meeting)+len(f.Payload))
	buf = append(buf, byte(f.Type))
	buf = append(buf, byte(len(f.Sender)))
	buf = append(buf, f.Sender...)
	buf = append(buf, byte(len(f.Meeting)))
	buf = append(buf, f.Meeting...)
	buf = binary.BigEndian.AppendUint64(buf, f.Sequence)
	buf = binary.BigEndian.AppendUint64(buf, uint64(f.Timestamp))
	buf = append(buf, f.Payload...)
	return buf, nil
}

// Unmarshal decodes a frame body. The payload aliases body.
func Unmarshal(body []byte) (Frame, error) {
	var f Frame
	if len(body) < fixedHeader {
		return f, ErrShortFrame
	}
	f.Type = Type(body[0])
	if !f.Type.Valid() {
		return f, fmt.Errorf("%w: %d", ErrUnknownType, body[0])
	}
	pos := 1
	senderLen := int(body[pos])
	pos++
	if len(body) < pos+senderLen+1 {
		return f, ErrShortFrame
	}
	f.Sender = string(body[pos : pos+senderLen])
	pos += senderLen
	meetingLen := int(body[pos])
	pos++
	if len(body) < pos+meetingLen+16 {
		return f, ErrShortFrame
	}
	f.Meeting = string(body[pos : pos+meetingLen])
	pos += meetingLen
	f.Sequence = binary.BigEndian.Uint64(body[pos:])
	pos += 8
	f.Timestamp = int64(binary.BigEndian.Uint64(body[pos:]))
	pos += 8
	f.Payload = body[pos:]
	return f, nil
}

// Encode returns the length prefixed stream form of f.
func Encode(f Frame) ([]byte, error) {
	body, err := Marshal(f)
	if err != nil {
		return nil, err
	}
	out := make([]byte, lengthPrefix, lengthPrefix+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// Reader decodes length prefixed frames from a byte stream.
type Reader struct {
	r       *bufio.Reader
	maxSize int
}

func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// ReadFrame blocks until a whole frame is available.
func (r *Reader) ReadFrame() (Frame, error) {
	var prefix [lengthPrefix]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if int64(n) > int64(r.maxSize) {
		return Frame{}, fmt.Errorf("%w: %d bytes", domain.ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Unmarshal(body)
}

// Writer encodes frames onto a byte stream. Not safe for concurrent use;
// each connection has exactly one write pump.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) WriteFrame(f Frame) error {
	body, err := Marshal(f)
	if err != nil {
		return err
	}
	var prefix [lengthPrefix]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(body); err != nil {
		return err
	}
	return w.w.Flush()
}
