package domain

import "time"

type EventKind string

const (
	EventJoined       EventKind = "joined"
	EventLeft         EventKind = "left"
	EventRemoved      EventKind = "removed"
	EventHostChanged  EventKind = "host_changed"
	EventAdmin        EventKind = "admin"
	EventTransfer     EventKind = "transfer"
	EventMeetingEnded EventKind = "meeting_ended"
)

// Event is one entry of a meeting's journal.
type Event struct {
	Meeting     MeetingCode   `json:"meeting"`
	Kind        EventKind     `json:"kind"`
	Participant ParticipantID `json:"participant,omitempty"`
	Name        string        `json:"name,omitempty"`
	Actor       ParticipantID `json:"actor,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	At          time.Time     `json:"at"`
}
