// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxDisplayNameLen = 36
)

type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

type Role int

const (
	RoleAttendee Role = iota
	RoleCoHost
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleCoHost:
		return "cohost"
	default:
		return "attendee"
	}
}

func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "host":
		return RoleHost, true
	case "cohost":
		return RoleCoHost, true
	case "attendee":
		return RoleAttendee, true
	}
	return RoleAttendee, false
}

type ParticipantState int

const (
	StateJoining ParticipantState = iota
	StateActive
	StateLeft
	StateRemoved
)

func (s ParticipantState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateRemoved:
		return "removed"
	default:
		return "left"
	}
}

// Participant represents user's participation meta for a meeting.
// No transport or lifecycle logic here; the owning meeting guards it.
type Participant struct {
	ID         ParticipantID
	Name       string
	Role       Role
	State      ParticipantState
	Muted      bool
	MicLocked  bool
	HandRaised bool
	VideoOn    bool
	JoinedAt   time.Time
	// Tenure breaks JoinedAt ties; lower joined earlier.
	Tenure     uint64
	MediaToken uint32
}

// NormalizeName trims the display name and checks its bounds.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}

// ParticipantView is a read-only view for APIs and wire payloads.
type ParticipantView struct {
	ID         ParticipantID `json:"id"`
	Name       string        `json:"name"`
	Role       string        `json:"role"`
	Muted      bool          `json:"muted"`
	MicLocked  bool          `json:"mic_locked"`
	HandRaised bool          `json:"hand_raised"`
	VideoOn    bool          `json:"video_on"`
	JoinedAt   time.Time     `json:"joined_at"`
}

func (p *Participant) View() ParticipantView {
	return ParticipantView{
		ID:         p.ID,
		Name:       p.Name,
		Role:       p.Role.String(),
		Muted:      p.Muted,
		MicLocked:  p.MicLocked,
		HandRaised: p.HandRaised,
		VideoOn:    p.VideoOn,
		JoinedAt:   p.JoinedAt,
	}
}
