package transfer_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/lanmeet/internal/app/transfer"
	"github.com/dkeye/lanmeet/internal/app/transfer/mocks"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

type fakeDelivery struct {
	mu     sync.Mutex
	frames map[domain.ParticipantID][]wire.Frame
	broken map[domain.ParticipantID]bool
}

func newFakeDelivery() *fakeDelivery {
	return &fakeDelivery{
		frames: make(map[domain.ParticipantID][]wire.Frame),
		broken: make(map[domain.ParticipantID]bool),
	}
}

func (d *fakeDelivery) SendTo(id domain.ParticipantID, f wire.Frame) error {
	return d.Forward(id, f)
}

func (d *fakeDelivery) Forward(id domain.ParticipantID, f wire.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.broken[id] {
		return domain.ErrSlowConsumer
	}
	d.frames[id] = append(d.frames[id], f)
	return nil
}

func (d *fakeDelivery) of(id domain.ParticipantID, t wire.Type) []wire.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []wire.Frame
	for _, f := range d.frames[id] {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (d *fakeDelivery) statuses(t *testing.T, id domain.ParticipantID) []wire.FileStatus {
	t.Helper()
	var out []wire.FileStatus
	for _, f := range d.of(id, wire.TypeFileStatus) {
		st, err := wire.Decode[wire.FileStatus](f)
		require.NoError(t, err)
		out = append(out, st)
	}
	return out
}

type fakeRoster map[domain.ParticipantID][]domain.ParticipantID

func (r fakeRoster) Peers(id domain.ParticipantID) (domain.MeetingCode, []domain.ParticipantID, error) {
	peers, ok := r[id]
	if !ok {
		return "", nil, domain.ErrNotFound
	}
	return "ROOM", peers, nil
}

func chunk(t *testing.T, id string, seq uint64, data []byte) wire.Frame {
	t.Helper()
	payload, err := wire.EncodeChunk(id, data)
	require.NoError(t, err)
	return wire.Frame{Type: wire.TypeFileChunk, Sequence: seq, Payload: payload}
}

const (
	alice domain.ParticipantID = "alice"
	bob   domain.ParticipantID = "bob"
	carol domain.ParticipantID = "carol"
)

func newRoster() fakeRoster {
	return fakeRoster{
		alice: {bob, carol},
		bob:   {alice, carol},
		carol: {alice, bob},
	}
}

func TestCoordinator_ThreeHundredBytes(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{})

	// Given alice announces 300 bytes to bob
	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "notes.txt", Size: 300, Recipient: string(bob)})
	req.NoError(err)
	req.NotEmpty(snap.ID)
	req.Equal(wire.TransferAnnounced, snap.State)

	announces := d.of(bob, wire.TypeFileAnnounce)
	req.Len(announces, 1)
	ann, err := wire.Decode[wire.FileAnnounce](announces[0])
	req.NoError(err)
	req.Equal(snap.ID, ann.TransferID)
	req.Equal(alice, ann.SenderID)
	req.Empty(d.of(carol, wire.TypeFileAnnounce))

	// When three 100 byte chunks arrive in order
	body := bytes.Repeat([]byte("hello world\n"), 25)
	for i := 0; i < 3; i++ {
		req.NoError(c.Chunk(alice, chunk(t, snap.ID, uint64(i), body[i*100:(i+1)*100])))
	}

	// Then bob got every chunk in order and both ends saw progress then completion
	chunks := d.of(bob, wire.TypeFileChunk)
	req.Len(chunks, 3)
	var got []byte
	for i, f := range chunks {
		req.Equal(uint64(i), f.Sequence)
		req.Equal(string(alice), f.Sender)
		_, data, err := wire.DecodeChunk(f.Payload)
		req.NoError(err)
		got = append(got, data...)
	}
	req.Equal(body, got)

	bobStatus := d.statuses(t, bob)
	req.Len(bobStatus, 3)
	req.Equal(int64(100), bobStatus[0].ReceivedBytes)
	req.Equal(int64(200), bobStatus[1].ReceivedBytes)
	req.Equal(wire.TransferCompleted, bobStatus[2].State)
	req.Equal(int64(300), bobStatus[2].ReceivedBytes)
	req.Contains(bobStatus[2].MIME, "text/plain")

	aliceStatus := d.statuses(t, alice)
	req.Len(aliceStatus, 4)
	req.Equal(wire.TransferAnnounced, aliceStatus[0].State)
	req.Equal(wire.TransferCompleted, aliceStatus[3].State)

	// And a chunk after completion is refused
	req.ErrorIs(c.Chunk(alice, chunk(t, snap.ID, 3, []byte("x"))), domain.ErrTransferClosed)
	req.Zero(c.Active())
}

func TestCoordinator_OutOfOrderAborts(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{})
	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "a.bin", Size: 300, Recipient: string(bob)})
	req.NoError(err)

	req.NoError(c.Chunk(alice, chunk(t, snap.ID, 0, make([]byte, 100))))
	err = c.Chunk(alice, chunk(t, snap.ID, 2, make([]byte, 100)))

	req.ErrorIs(err, domain.ErrOutOfOrderChunk)
	req.True(domain.IsTransferIntegrity(err))
	for _, id := range []domain.ParticipantID{alice, bob} {
		sts := d.statuses(t, id)
		req.Equal(wire.TransferAborted, sts[len(sts)-1].State)
	}
	req.Len(d.of(bob, wire.TypeFileChunk), 1)
	got, ok := c.Snapshot(snap.ID)
	req.True(ok)
	req.Equal(int64(100), got.Received)
}

func TestCoordinator_OversizedAndForeignChunks(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{MaxFileSize: 1000})

	_, err := c.Announce(alice, wire.FileAnnounce{Filename: "big", Size: 1001})
	req.ErrorIs(err, domain.ErrFileTooLarge)
	_, err = c.Announce(alice, wire.FileAnnounce{Filename: "x", Size: 1, Recipient: "nobody"})
	req.ErrorIs(err, domain.ErrNotFound)

	snap, err := c.Announce(alice, wire.FileAnnounce{TransferID: "fixed", Filename: "small", Size: 10})
	req.NoError(err)
	req.Equal("fixed", snap.ID)
	_, err = c.Announce(alice, wire.FileAnnounce{TransferID: "fixed", Filename: "again", Size: 10})
	req.ErrorIs(err, domain.ErrTransferExists)

	// A chunk from someone else does not disturb the transfer
	req.ErrorIs(c.Chunk(bob, chunk(t, "fixed", 0, []byte("1"))), domain.ErrNotSender)

	err = c.Chunk(alice, chunk(t, "fixed", 0, make([]byte, 11)))
	req.ErrorIs(err, domain.ErrOversizedChunk)
	got, _ := c.Snapshot("fixed")
	req.Equal(wire.TransferAborted, got.State)
	req.Zero(got.Received)
}

func TestCoordinator_ParticipantLeaves(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{})

	broadcast, err := c.Announce(alice, wire.FileAnnounce{Filename: "all", Size: 10, Recipient: wire.BroadcastRecipient})
	req.NoError(err)
	req.ElementsMatch([]domain.ParticipantID{bob, carol}, broadcast.Recipients)
	unicast, err := c.Announce(bob, wire.FileAnnounce{Filename: "one", Size: 10, Recipient: string(carol)})
	req.NoError(err)

	// When carol leaves
	c.AbortParticipant(carol)

	// Then the broadcast continues for bob and the unicast to carol aborts
	got, _ := c.Snapshot(broadcast.ID)
	req.Equal(wire.TransferAnnounced, got.State)
	req.Equal([]domain.ParticipantID{bob}, got.Recipients)
	got, _ = c.Snapshot(unicast.ID)
	req.Equal(wire.TransferAborted, got.State)

	// When the sender leaves its transfer aborts too
	c.AbortParticipant(alice)
	got, _ = c.Snapshot(broadcast.ID)
	req.Equal(wire.TransferAborted, got.State)
	req.Equal("sender left", got.Reason)
}

func TestCoordinator_FailingRecipientOnlyLosesItsOwn(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{})
	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "all", Size: 4})
	req.NoError(err)

	d.mu.Lock()
	d.broken[carol] = true
	d.mu.Unlock()

	req.NoError(c.Chunk(alice, chunk(t, snap.ID, 0, []byte("abcd"))))
	got, _ := c.Snapshot(snap.ID)
	req.Equal(wire.TransferCompleted, got.State)
	req.Len(d.of(bob, wire.TypeFileChunk), 1)
	req.Empty(d.of(carol, wire.TypeFileChunk))
}

func TestCoordinator_IdleTimeout(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{IdleTimeout: 30 * time.Millisecond})
	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "slow", Size: 10, Recipient: string(bob)})
	req.NoError(err)

	req.Eventually(func() bool {
		got, _ := c.Snapshot(snap.ID)
		return got.State == wire.TransferAborted
	}, time.Second, 5*time.Millisecond)
	got, _ := c.Snapshot(snap.ID)
	req.Equal(domain.ErrIdleTimeout.Error(), got.Reason)
}

func TestCoordinator_StatusAuthorization(t *testing.T) {
	req := require.New(t)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{})
	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "s", Size: 10, Recipient: string(bob)})
	req.NoError(err)

	_, err = c.Status(alice, snap.ID)
	req.NoError(err)
	_, err = c.Status(bob, snap.ID)
	req.NoError(err)
	_, err = c.Status(carol, snap.ID)
	req.ErrorIs(err, domain.ErrNotAuthorized)
	_, err = c.Status(alice, "missing")
	req.ErrorIs(err, domain.ErrNotFound)
}

func TestCoordinator_SinkReceivesChunks(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockFileSink(ctrl)
	writer := mocks.NewMockChunkWriter(ctrl)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{Sink: sink})

	sink.EXPECT().Open(gomock.Any()).DoAndReturn(func(meta transfer.FileMeta) (transfer.ChunkWriter, error) {
		req.Equal("photo.png", meta.Filename)
		req.Equal(alice, meta.Sender)
		return writer, nil
	}).Times(1)
	gomock.InOrder(
		writer.EXPECT().WriteChunk(uint64(0), []byte("ab")).Return(nil),
		writer.EXPECT().WriteChunk(uint64(1), []byte("cd")).Return(nil),
		writer.EXPECT().Close().Return(nil),
	)

	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "photo.png", Size: 4, Recipient: string(bob)})
	req.NoError(err)
	req.NoError(c.Chunk(alice, chunk(t, snap.ID, 0, []byte("ab"))))
	req.NoError(c.Chunk(alice, chunk(t, snap.ID, 1, []byte("cd"))))
}

func TestCoordinator_SinkAbortedWithTransfer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockFileSink(ctrl)
	writer := mocks.NewMockChunkWriter(ctrl)
	c := transfer.NewCoordinator(newFakeDelivery(), newRoster(), transfer.Options{Sink: sink})

	sink.EXPECT().Open(gomock.Any()).Return(writer, nil)
	writer.EXPECT().Abort("sender left").Return(nil).Times(1)

	_, err := c.Announce(alice, wire.FileAnnounce{Filename: "x", Size: 4, Recipient: string(bob)})
	req.NoError(err)
	c.AbortParticipant(alice)
}

func TestCoordinator_SinkOpenFailureKeepsRelaying(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockFileSink(ctrl)
	d := newFakeDelivery()
	c := transfer.NewCoordinator(d, newRoster(), transfer.Options{Sink: sink})

	sink.EXPECT().Open(gomock.Any()).Return(nil, errors.New("disk full"))

	snap, err := c.Announce(alice, wire.FileAnnounce{Filename: "x", Size: 1, Recipient: string(bob)})
	req.NoError(err)
	req.NoError(c.Chunk(alice, chunk(t, snap.ID, 0, []byte("z"))))
	req.Len(d.of(bob, wire.TypeFileChunk), 1)
}
