package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/lanmeet/internal/core"
	"github.com/dkeye/lanmeet/internal/domain"
)

func newTestRooms(max int) *RoomManager {
	return NewRoomManager(RoomOptions{MaxParticipants: max, Grace: time.Minute}, NewRegistry())
}

func join(t *testing.T, rm *RoomManager, code, name string) (*Participant, *core.Outbox) {
	t.Helper()
	out := core.NewOutbox(64, 50*time.Millisecond)
	p, err := rm.CreateOrJoinMeeting(JoinRequest{Code: code, Name: name, Sink: out, Kick: out.Close})
	require.NoError(t, err)
	rm.Activate(p)
	return p, out
}

func TestRoomManager_FirstMemberIsHost(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)

	alice, _ := join(t, rm, "abcd", "Alice")
	bob, _ := join(t, rm, "ABCD", "Bob")

	req.Equal(domain.MeetingCode("ABCD"), alice.Meeting().Code())
	req.Same(alice.Meeting(), bob.Meeting())
	req.Equal(domain.RoleHost, alice.Snapshot().Role)
	req.Equal(domain.RoleAttendee, bob.Snapshot().Role)
	req.Equal(alice.ID(), alice.Meeting().Info().Host)
	req.NotEqual(alice.MediaToken(), bob.MediaToken())

	got, ok := rm.Registry().ByToken(bob.MediaToken())
	req.True(ok)
	req.Same(bob, got)
}

func TestRoomManager_GeneratedCode(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)

	p, _ := join(t, rm, "", "Alice")

	code := p.Meeting().Code()
	req.Len(string(code), domain.GeneratedCodeLen)
	_, err := domain.NormalizeCode(string(code))
	req.NoError(err)
	req.Equal(domain.RoleHost, p.Snapshot().Role)
}

func TestRoomManager_JoinRejections(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(2)
	join(t, rm, "ROOM1", "a")
	join(t, rm, "ROOM1", "b")

	_, err := rm.CreateOrJoinMeeting(JoinRequest{Code: "ROOM1", Name: "c"})
	req.ErrorIs(err, domain.ErrRoomFull)

	_, err = rm.CreateOrJoinMeeting(JoinRequest{Code: "no!", Name: "c"})
	req.ErrorIs(err, domain.ErrInvalidCode)

	_, err = rm.CreateOrJoinMeeting(JoinRequest{Code: "ROOM2", Name: "   "})
	req.ErrorIs(err, domain.ErrDisplayNameEmpty)

	// Rejected joins leave nothing behind
	req.Equal(2, rm.Registry().Count())
}

func TestRoomManager_HostReassignment(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)

	// Given host, an older attendee and a younger co-host
	host, _ := join(t, rm, "MEET", "host")
	older, _ := join(t, rm, "MEET", "older")
	cohost, _ := join(t, rm, "MEET", "cohost")
	req.NoError(rm.SetRole(host.ID(), cohost.ID(), domain.RoleCoHost))

	// When the host leaves
	res := rm.Leave(host.ID(), domain.StateLeft)

	// Then the co-host wins over the longer-tenured attendee
	req.True(res.Left)
	req.NotNil(res.NewHost)
	req.Equal(cohost.ID(), res.NewHost.ID)
	req.Equal(domain.RoleHost, cohost.Snapshot().Role)
	req.Equal(domain.RoleAttendee, older.Snapshot().Role)

	// When the new host leaves too, the attendee takes over
	res = rm.Leave(cohost.ID(), domain.StateLeft)
	req.Equal(older.ID(), res.NewHost.ID)
	req.Equal(older.ID(), older.Meeting().Info().Host)
}

func TestRoomManager_HostSkipsJoiningMember(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)

	// Given a host, an attendee still joining and a younger active attendee
	host, _ := join(t, rm, "MEET", "host")
	pending, err := rm.CreateOrJoinMeeting(JoinRequest{Code: "MEET", Name: "pending", Sink: core.NewOutbox(4, time.Millisecond)})
	req.NoError(err)
	active, _ := join(t, rm, "MEET", "active")

	// When the host leaves, the active member is preferred
	res := rm.Leave(host.ID(), domain.StateLeft)
	req.Equal(active.ID(), res.NewHost.ID)

	// When no active member is left, the joining one still takes over
	res = rm.Leave(active.ID(), domain.StateLeft)
	req.Equal(pending.ID(), res.NewHost.ID)
}

func TestRoomManager_LeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)
	a, _ := join(t, rm, "MEET", "a")
	b, _ := join(t, rm, "MEET", "b")

	first := rm.Leave(b.ID(), domain.StateRemoved)
	second := rm.Leave(b.ID(), domain.StateLeft)

	req.True(first.Left)
	req.Equal(domain.StateRemoved, first.Participant.State)
	req.False(second.Left)

	parts, err := rm.ListParticipants("MEET")
	req.NoError(err)
	req.Len(parts, 1)
	req.Equal(a.ID(), parts[0].ID)
	_, ok := rm.Registry().Lookup(b.ID())
	req.False(ok)
}

func TestRoomManager_LastLeaveEndsMeeting(t *testing.T) {
	req := require.New(t)
	rm := NewRoomManager(RoomOptions{MaxParticipants: 10, Grace: 30 * time.Millisecond}, nil)
	a, _ := join(t, rm, "MEET", "a")

	res := rm.Leave(a.ID(), domain.StateLeft)
	req.True(res.Ended)
	req.Equal(domain.MeetingEnded, res.MeetingState)

	// During grace the meeting is visible as Ended and refuses joins
	_, err := rm.ListParticipants("MEET")
	req.ErrorIs(err, domain.ErrMeetingEnded)
	_, err = rm.CreateOrJoinMeeting(JoinRequest{Code: "MEET", Name: "late"})
	req.ErrorIs(err, domain.ErrMeetingEnded)

	// After grace the code is free again
	req.Eventually(func() bool {
		_, err := rm.Meeting("MEET")
		return err != nil
	}, time.Second, 10*time.Millisecond)
	p, _ := join(t, rm, "MEET", "new")
	req.Equal(domain.RoleHost, p.Snapshot().Role)
}

func TestRoomManager_ListParticipantsOrder(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)
	names := []string{"one", "two", "three", "four"}
	for _, n := range names {
		join(t, rm, "ORDER", n)
	}

	parts, err := rm.ListParticipants("ORDER")
	req.NoError(err)
	req.Len(parts, len(names))
	for i, p := range parts {
		req.Equal(names[i], p.Name)
	}

	_, err = rm.ListParticipants("NOPE")
	req.ErrorIs(err, domain.ErrNotFound)
}

func TestRoomManager_SetRole(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)
	host, _ := join(t, rm, "ROLES", "host")
	co, _ := join(t, rm, "ROLES", "co")
	att, _ := join(t, rm, "ROLES", "att")
	req.NoError(rm.SetRole(host.ID(), co.ID(), domain.RoleCoHost))

	// A co-host may not appoint co-hosts or touch the host
	req.ErrorIs(rm.SetRole(co.ID(), att.ID(), domain.RoleCoHost), domain.ErrNotAuthorized)
	req.ErrorIs(rm.SetRole(co.ID(), host.ID(), domain.RoleAttendee), domain.ErrNotAuthorized)
	// An attendee may do nothing
	req.ErrorIs(rm.SetRole(att.ID(), co.ID(), domain.RoleAttendee), domain.ErrNotAuthorized)
	// Self target is refused
	req.ErrorIs(rm.SetRole(host.ID(), host.ID(), domain.RoleCoHost), domain.ErrNotAuthorized)
	req.ErrorIs(rm.SetRole(host.ID(), "ghost", domain.RoleCoHost), domain.ErrNotFound)

	// Handing over the host role demotes the old host to co-host
	req.NoError(rm.SetRole(host.ID(), att.ID(), domain.RoleHost))
	req.Equal(domain.RoleHost, att.Snapshot().Role)
	req.Equal(domain.RoleCoHost, host.Snapshot().Role)
	req.Equal(att.ID(), att.Meeting().Info().Host)
}

func TestRoomManager_PeersSkipJoining(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)
	a, _ := join(t, rm, "PEERS", "a")
	b, _ := join(t, rm, "PEERS", "b")
	pending, err := rm.CreateOrJoinMeeting(JoinRequest{Code: "PEERS", Name: "c"})
	req.NoError(err)

	code, peers, err := rm.Peers(a.ID())
	req.NoError(err)
	req.Equal(domain.MeetingCode("PEERS"), code)
	req.Equal([]domain.ParticipantID{b.ID()}, peers)

	// Joining members are listed but not routed to
	parts, err := rm.ListParticipants("PEERS")
	req.NoError(err)
	req.Len(parts, 3)
	req.Equal(domain.StateJoining, pending.Snapshot().State)
}

func TestRoomManager_EndMeeting(t *testing.T) {
	req := require.New(t)
	rm := newTestRooms(10)
	a, _ := join(t, rm, "END", "a")
	join(t, rm, "END", "b")

	members, err := rm.EndMeeting("END")
	req.NoError(err)
	req.Len(members, 2)
	req.Equal(a.ID(), members[0].ID())

	_, err = rm.EndMeeting("END")
	req.ErrorIs(err, domain.ErrMeetingEnded)

	// Leaves after an end do not hand the host role on
	res := rm.Leave(a.ID(), domain.StateRemoved)
	req.Nil(res.NewHost)
	req.False(res.Ended)
	req.Equal(domain.MeetingEnded, res.MeetingState)
}
