package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/lanmeet/internal/domain"
)

var ErrBadPayload = errors.New("bad payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// BroadcastRecipient addresses a file transfer to every participant.
const BroadcastRecipient = "*"

type Join struct {
	// Empty asks the server to create a meeting with a generated code.
	MeetingCode string `json:"meeting_code" validate:"omitempty,alphanum,min=4,max=16"`
	DisplayName string `json:"display_name" validate:"required,max=36"`
}

type JoinAck struct {
	ParticipantID domain.ParticipantID     `json:"participant_id"`
	Role          string                   `json:"role"`
	MeetingCode   domain.MeetingCode       `json:"meeting_code"`
	MediaToken    uint32                   `json:"media_token"`
	Participants  []domain.ParticipantView `json:"participants"`
}

type JoinReject struct {
	Reason string `json:"reason"`
}

type Chat struct {
	Text string `json:"text" validate:"required,max=8192"`
	// To makes the message private to one participant.
	To domain.ParticipantID `json:"to,omitempty"`
	// Name is filled in by the server on relay.
	Name string `json:"name,omitempty"`
}

type ControlAction string

const (
	ControlSelfMute         ControlAction = "self_mute"
	ControlSelfUnmute       ControlAction = "self_unmute"
	ControlRaiseHand        ControlAction = "raise_hand"
	ControlLowerHand        ControlAction = "lower_hand"
	ControlVideoOn          ControlAction = "video_on"
	ControlVideoOff         ControlAction = "video_off"
	ControlEmoji            ControlAction = "emoji"
	ControlScreenShareStart ControlAction = "screen_share_start"
	ControlScreenShareStop  ControlAction = "screen_share_stop"
)

type Control struct {
	Action ControlAction `json:"action" validate:"required"`
	Value  string        `json:"value,omitempty" validate:"max=64"`
}

type PresenceEvent string

const (
	PresenceJoined             PresenceEvent = "joined"
	PresenceLeft               PresenceEvent = "left"
	PresenceRemoved            PresenceEvent = "removed"
	PresenceHostChanged        PresenceEvent = "host_changed"
	PresenceRoleChanged        PresenceEvent = "role_changed"
	PresenceMuted              PresenceEvent = "muted"
	PresenceUnmuted            PresenceEvent = "unmuted"
	PresenceHandRaised         PresenceEvent = "hand_raised"
	PresenceHandLowered        PresenceEvent = "hand_lowered"
	PresenceVideoOn            PresenceEvent = "video_on"
	PresenceVideoOff           PresenceEvent = "video_off"
	PresenceEmoji              PresenceEvent = "emoji"
	PresenceScreenShareStarted PresenceEvent = "screen_share_started"
	PresenceScreenShareStopped PresenceEvent = "screen_share_stopped"
	PresenceScreenShareDenied  PresenceEvent = "screen_share_denied"
	PresenceMeetingEnded       PresenceEvent = "meeting_ended"
)

type Presence struct {
	Event         PresenceEvent        `json:"event"`
	ParticipantID domain.ParticipantID `json:"participant_id,omitempty"`
	Name          string               `json:"name,omitempty"`
	Role          string               `json:"role,omitempty"`
	Value         string               `json:"value,omitempty"`
}

type FileAnnounce struct {
	TransferID string               `json:"transfer_id,omitempty" validate:"omitempty,max=64"`
	Filename   string               `json:"filename" validate:"required,max=255"`
	Size       int64                `json:"size" validate:"gt=0"`
	Recipient  string               `json:"recipient" validate:"max=64"`
	SenderID   domain.ParticipantID `json:"sender_id,omitempty"`
}

// Broadcast reports whether the announce addresses every participant.
func (a FileAnnounce) Broadcast() bool {
	return a.Recipient == "" || a.Recipient == BroadcastRecipient
}

type TransferState string

const (
	TransferAnnounced  TransferState = "announced"
	TransferInProgress TransferState = "in_progress"
	TransferCompleted  TransferState = "completed"
	TransferAborted    TransferState = "aborted"
)

func (s TransferState) Terminal() bool {
	return s == TransferCompleted || s == TransferAborted
}

type FileStatus struct {
	TransferID    string        `json:"transfer_id" validate:"required"`
	ReceivedBytes int64         `json:"received_bytes"`
	TotalBytes    int64         `json:"total_bytes"`
	State         TransferState `json:"state,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	MIME          string        `json:"mime,omitempty"`
}

type AdminAction struct {
	Action   domain.AdminAction   `json:"action" validate:"required"`
	TargetID domain.ParticipantID `json:"target_id,omitempty"`
	// Role is only read by promote/demote style actions.
	Role string `json:"role,omitempty"`
}

type AdminBroadcast struct {
	Action   domain.AdminAction   `json:"action"`
	TargetID domain.ParticipantID `json:"target_id,omitempty"`
	ActorID  domain.ParticipantID `json:"actor_id"`
}

type AdminResult struct {
	Action   domain.AdminAction   `json:"action"`
	TargetID domain.ParticipantID `json:"target_id,omitempty"`
	OK       bool                 `json:"ok"`
	Error    string               `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewFrame builds a server frame with a JSON payload.
func NewFrame(t Type, v any) (Frame, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s: %w", t, err)
	}
	return Frame{Type: t, Timestamp: time.Now().UnixNano(), Payload: payload}, nil
}

// MustFrame is NewFrame for payload types that always marshal.
func MustFrame(t Type, v any) Frame {
	f, err := NewFrame(t, v)
	if err != nil {
		panic(err)
	}
	return f
}

// Decode unmarshals and validates a JSON payload.
func Decode[T any](f Frame) (T, error) {
	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrBadPayload, f.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrBadPayload, f.Type, err)
	}
	return v, nil
}

// EncodeChunk lays out a FileChunk payload as u8 len | transfer id | data.
func EncodeChunk(transferID string, data []byte) ([]byte, error) {
	if len(transferID) > maxIDLen {
		return nil, ErrIDTooLong
	}
	out := make([]byte, 0, 1+len(transferID)+len(data))
	out = append(out, byte(len(transferID)))
	out = append(out, transferID...)
	return append(out, data...), nil
}

func DecodeChunk(payload []byte) (string, []byte, error) {
	if len(payload) < 1 {
		return "", nil, ErrShortFrame
	}
	n := int(payload[0])
	if n == 0 || len(payload) < 1+n {
		return "", nil, fmt.Errorf("%w: chunk transfer id", ErrBadPayload)
	}
	return string(payload[1 : 1+n]), payload[1+n:], nil
}
