// Package wire is the frame codec shared by every transport.
//
// A frame on a byte stream is
//
//	u32 length | u8 type | u8 len | sender | u8 len | meeting | u64 seq | i64 ts | payload
//
// in network byte order, where length counts everything after itself.
// Message based transports (WebSocket) carry one frame body per message
// without the length prefix.
package wire

import "time"

type Type uint8

const (
	TypeJoin Type = iota + 1
	TypeJoinAck
	TypeJoinReject
	TypeLeave
	TypeChat
	TypeVideo
	TypeAudio
	TypeScreenShare
	TypeControl
	TypePresence
	TypeFileAnnounce
	TypeFileChunk
	TypeFileStatus
	TypeAdminAction
	TypeAdminBroadcast
	TypeAdminResult
	TypeError
	TypePing
	TypePong
)

var typeNames = map[Type]string{
	TypeJoin:           "join",
	TypeJoinAck:        "join_ack",
	TypeJoinReject:     "join_reject",
	TypeLeave:          "leave",
	TypeChat:           "chat",
	TypeVideo:          "video",
	TypeAudio:          "audio",
	TypeScreenShare:    "screen_share",
	TypeControl:        "control",
	TypePresence:       "presence",
	TypeFileAnnounce:   "file_announce",
	TypeFileChunk:      "file_chunk",
	TypeFileStatus:     "file_status",
	TypeAdminAction:    "admin_action",
	TypeAdminBroadcast: "admin_broadcast",
	TypeAdminResult:    "admin_result",
	TypeError:          "error",
	TypePing:           "ping",
	TypePong:           "pong",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Kind is the stream class a frame type travels in.
type Kind int

const (
	KindControl Kind = iota
	KindChat
	KindVideo
	KindAudio
	KindScreenShare
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindScreenShare:
		return "screen_share"
	default:
		return "control"
	}
}

// BestEffort kinds may be dropped under backpressure.
func (k Kind) BestEffort() bool {
	return k == KindVideo || k == KindAudio || k == KindScreenShare
}

func (t Type) Kind() Kind {
	switch t {
	case TypeVideo:
		return KindVideo
	case TypeAudio:
		return KindAudio
	case TypeScreenShare:
		return KindScreenShare
	case TypeChat:
		return KindChat
	default:
		return KindControl
	}
}

// Frame is one decoded message. Sender and Meeting are authoritative only
// on frames produced by the server; inbound values are overwritten.
type Frame struct {
	Type      Type
	Sender    string
	Meeting   string
	Sequence  uint64
	Timestamp int64
	Payload   []byte
}

func (f Frame) Kind() Kind { return f.Type.Kind() }

func (f Frame) Time() time.Time { return time.Unix(0, f.Timestamp) }
