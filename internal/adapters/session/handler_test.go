package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/lanmeet/internal/adapters/tcp"
	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/app/orch"
	"github.com/dkeye/lanmeet/internal/app/transfer"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

func newTestHandler(maxParticipants int, limiter *JoinRateLimiter, opts Options) *Handler {
	rooms := app.NewRoomManager(app.RoomOptions{MaxParticipants: maxParticipants, Grace: time.Minute}, nil)
	router := app.NewRouter(rooms, nil)
	o := &orch.Orchestrator{
		Rooms:     rooms,
		Router:    router,
		Admin:     app.NewAdminPlane(rooms, router),
		Transfers: transfer.NewCoordinator(router, rooms, transfer.Options{}),
	}
	return NewHandler(o, limiter, opts)
}

type testClient struct {
	conn   *tcp.Conn
	frames chan wire.Frame
	done   chan struct{}
}

func dial(t *testing.T, ctx context.Context, h *Handler) *testClient {
	t.Helper()
	server, client := net.Pipe()
	c := &testClient{
		conn:   tcp.NewConn(client, 0),
		frames: make(chan wire.Frame, 128),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		h.Serve(ctx, tcp.NewConn(server, 0))
	}()
	go func() {
		defer close(c.frames)
		for {
			f, err := c.conn.ReadFrame()
			if err != nil {
				return
			}
			c.frames <- f
		}
	}()
	t.Cleanup(func() { _ = c.conn.Close() })
	return c
}

func (c *testClient) send(t *testing.T, typ wire.Type, v any) {
	t.Helper()
	require.NoError(t, c.conn.WriteFrame(wire.MustFrame(typ, v)))
}

func (c *testClient) next(t *testing.T) wire.Frame {
	t.Helper()
	select {
	case f, ok := <-c.frames:
		require.True(t, ok, "connection closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
	}
	return wire.Frame{}
}

// until skips frames of other types.
func (c *testClient) until(t *testing.T, typ wire.Type) wire.Frame {
	t.Helper()
	for {
		if f := c.next(t); f.Type == typ {
			return f
		}
	}
}

func (c *testClient) waitClosed(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("connection not closed")
		}
	}
}

func joinAs(t *testing.T, c *testClient, code, name string) wire.JoinAck {
	t.Helper()
	c.send(t, wire.TypeJoin, wire.Join{MeetingCode: code, DisplayName: name})
	f := c.next(t)
	require.Equal(t, wire.TypeJoinAck, f.Type)
	ack, err := wire.Decode[wire.JoinAck](f)
	require.NoError(t, err)
	return ack
}

func TestHandler_JoinChatLeave(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestHandler(10, nil, Options{})

	// Given two joined clients
	alice := dial(t, ctx, h)
	aliceAck := joinAs(t, alice, "LOBBY", "alice")
	req.Equal("host", aliceAck.Role)
	bob := dial(t, ctx, h)
	bobAck := joinAs(t, bob, "lobby", "bob")
	req.Len(bobAck.Participants, 2)

	joined, err := wire.Decode[wire.Presence](alice.until(t, wire.TypePresence))
	req.NoError(err)
	req.Equal(wire.PresenceJoined, joined.Event)
	req.Equal(bobAck.ParticipantID, joined.ParticipantID)

	// When bob chats
	bob.send(t, wire.TypeChat, wire.Chat{Text: "hello"})
	chat := alice.until(t, wire.TypeChat)
	req.Equal(string(bobAck.ParticipantID), chat.Sender)
	req.Equal("LOBBY", chat.Meeting)

	// When bob leaves
	bob.send(t, wire.TypeLeave, struct{}{})
	bob.waitClosed(t)

	// Then alice hears it and the server released bob's session
	left, err := wire.Decode[wire.Presence](alice.until(t, wire.TypePresence))
	req.NoError(err)
	req.Equal(wire.PresenceLeft, left.Event)
	req.Equal("left", left.Value)
	<-bob.done
	parts, err := h.orch.Rooms.ListParticipants("LOBBY")
	req.NoError(err)
	req.Len(parts, 1)
}

func TestHandler_HandshakeTimeout(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(10, nil, Options{HandshakeTimeout: 30 * time.Millisecond})

	c := dial(t, context.Background(), h)

	f := c.next(t)
	req.Equal(wire.TypeJoinReject, f.Type)
	rej, err := wire.Decode[wire.JoinReject](f)
	req.NoError(err)
	req.Equal("handshake_timeout", rej.Reason)
	c.waitClosed(t)
	req.Zero(h.orch.Rooms.Registry().Count())
}

func TestHandler_HandshakeRejections(t *testing.T) {
	cases := []struct {
		name   string
		frame  wire.Frame
		reason string
	}{
		{"not a join", wire.MustFrame(wire.TypeChat, wire.Chat{Text: "hi"}), "malformed_join"},
		{"bad code", wire.MustFrame(wire.TypeJoin, wire.Join{MeetingCode: "ab", DisplayName: "x"}), "malformed_join"},
		{"blank name", wire.MustFrame(wire.TypeJoin, wire.Join{MeetingCode: "ROOM", DisplayName: "  "}), "invalid_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			h := newTestHandler(10, nil, Options{})
			c := dial(t, context.Background(), h)

			req.NoError(c.conn.WriteFrame(tc.frame))

			rej, err := wire.Decode[wire.JoinReject](c.next(t))
			req.NoError(err)
			req.Equal(tc.reason, rej.Reason)
			c.waitClosed(t)
			req.Zero(h.orch.Rooms.Registry().Count())
		})
	}
}

func TestHandler_RoomFull(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestHandler(1, nil, Options{})

	first := dial(t, ctx, h)
	joinAs(t, first, "SMALL", "one")

	second := dial(t, ctx, h)
	second.send(t, wire.TypeJoin, wire.Join{MeetingCode: "SMALL", DisplayName: "two"})
	rej, err := wire.Decode[wire.JoinReject](second.next(t))
	req.NoError(err)
	req.Equal("room_full", rej.Reason)
	second.waitClosed(t)
}

func TestHandler_RateLimited(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestHandler(10, NewJoinRateLimiter(1, time.Minute), Options{})

	first := dial(t, ctx, h)
	joinAs(t, first, "LIMIT", "one")

	second := dial(t, ctx, h)
	rej, err := wire.Decode[wire.JoinReject](second.next(t))
	req.NoError(err)
	req.Equal("rate_limited", rej.Reason)
}

func TestHandler_RemovedClientGetsFlushBeforeClose(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestHandler(10, nil, Options{})

	host := dial(t, ctx, h)
	joinAs(t, host, "KICK", "host")
	att := dial(t, ctx, h)
	attAck := joinAs(t, att, "KICK", "att")

	host.send(t, wire.TypeAdminAction, wire.AdminAction{Action: domain.ActionRemove, TargetID: attAck.ParticipantID})

	bc, err := wire.Decode[wire.AdminBroadcast](att.until(t, wire.TypeAdminBroadcast))
	req.NoError(err)
	req.Equal(domain.ActionRemove, bc.Action)
	att.waitClosed(t)

	res, err := wire.Decode[wire.AdminResult](host.until(t, wire.TypeAdminResult))
	req.NoError(err)
	req.True(res.OK)
}

func TestHandler_ShutdownClosesSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newTestHandler(10, nil, Options{})

	c := dial(t, ctx, h)
	joinAs(t, c, "DOWN", "a")

	cancel()
	c.waitClosed(t)
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	require.Zero(t, h.orch.Rooms.Registry().Count())
}

func TestJoinRateLimiter_Window(t *testing.T) {
	req := require.New(t)
	rl := NewJoinRateLimiter(2, 30*time.Millisecond)

	req.True(rl.Allow("10.0.0.1:1000"))
	req.True(rl.Allow("10.0.0.1:1001"))
	req.False(rl.Allow("10.0.0.1:1002"))
	req.True(rl.Allow("10.0.0.2:1000"))

	time.Sleep(40 * time.Millisecond)
	req.True(rl.Allow("10.0.0.1:1003"))
	rl.Prune()
	req.NotContains(rl.history, "10.0.0.2")
}
