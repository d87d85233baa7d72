// Package transfer coordinates chunked file transfers between participants.
package transfer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/wire"
)

const (
	DefaultMaxFileSize = 2 << 30
	DefaultIdleTimeout = 30 * time.Second
	DefaultRetention   = time.Minute
)

// Delivery pushes frames to a participant's outbound queue.
// SendTo numbers the frame as a server frame; Forward keeps its sequence.
type Delivery interface {
	SendTo(id domain.ParticipantID, f wire.Frame) error
	Forward(id domain.ParticipantID, f wire.Frame) error
}

// Roster resolves the active peers of a participant.
type Roster interface {
	Peers(id domain.ParticipantID) (domain.MeetingCode, []domain.ParticipantID, error)
}

type Options struct {
	MaxFileSize int64
	IdleTimeout time.Duration
	Retention   time.Duration
	// Sink is optional.
	Sink FileSink
}

type Snapshot struct {
	ID         string                 `json:"id"`
	Filename   string                 `json:"filename"`
	Sender     domain.ParticipantID   `json:"sender"`
	Meeting    domain.MeetingCode     `json:"meeting"`
	Broadcast  bool                   `json:"broadcast"`
	Recipients []domain.ParticipantID `json:"recipients"`
	Size       int64                  `json:"size"`
	Received   int64                  `json:"received"`
	State      wire.TransferState     `json:"state"`
	Reason     string                 `json:"reason,omitempty"`
	MIME       string                 `json:"mime,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (s Snapshot) Status() wire.FileStatus {
	return wire.FileStatus{
		TransferID:    s.ID,
		ReceivedBytes: s.Received,
		TotalBytes:    s.Size,
		State:         s.State,
		Reason:        s.Reason,
		MIME:          s.MIME,
	}
}

type transfer struct {
	mu sync.Mutex

	id        string
	filename  string
	sender    domain.ParticipantID
	meeting   domain.MeetingCode
	broadcast bool
	size      int64
	started   time.Time

	// original is everyone the announce went to; recipients shrinks as
	// broadcast recipients leave or fail.
	original   map[domain.ParticipantID]bool
	recipients []domain.ParticipantID

	received int64
	nextSeq  uint64
	state    wire.TransferState
	reason   string
	mime     string
	updated  time.Time

	idle   *time.Timer
	writer ChunkWriter
}

func (t *transfer) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         t.id,
		Filename:   t.filename,
		Sender:     t.sender,
		Meeting:    t.meeting,
		Broadcast:  t.broadcast,
		Recipients: append([]domain.ParticipantID(nil), t.recipients...),
		Size:       t.size,
		Received:   t.received,
		State:      t.state,
		Reason:     t.reason,
		MIME:       t.mime,
		StartedAt:  t.started,
		UpdatedAt:  t.updated,
	}
}

// Coordinator tracks every transfer. Chunks are relayed as they arrive;
// nothing is buffered beyond the optional sink.
type Coordinator struct {
	mu        sync.Mutex
	transfers map[string]*transfer

	delivery Delivery
	roster   Roster
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewCoordinator(delivery Delivery, roster Roster, opts Options) *Coordinator {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Coordinator{
		transfers: make(map[string]*transfer),
		delivery:  delivery,
		roster:    roster,
		opts:      opts,
		logger:    log.With().Str("module", "app.transfer").Logger(),
		now:       time.Now,
	}
}

func (c *Coordinator) transferID(sender domain.ParticipantID, filename string, at time.Time) string {
	name := fmt.Sprintf("%s/%s/%d", sender, filename, at.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Announce registers a transfer and forwards the announce to its
// recipients. The sender learns the transfer id from an Announced status.
func (c *Coordinator) Announce(sender domain.ParticipantID, a wire.FileAnnounce) (Snapshot, error) {
	if a.Size > c.opts.MaxFileSize {
		return Snapshot{}, domain.ErrFileTooLarge
	}
	code, peers, err := c.roster.Peers(sender)
	if err != nil {
		return Snapshot{}, err
	}
	recipients := peers
	if !a.Broadcast() {
		to := domain.ParticipantID(a.Recipient)
		if !lo.Contains(peers, to) {
			return Snapshot{}, fmt.Errorf("recipient %s: %w", to, domain.ErrNotFound)
		}
		recipients = []domain.ParticipantID{to}
	}
	if len(recipients) == 0 {
		return Snapshot{}, fmt.Errorf("no recipients: %w", domain.ErrNotFound)
	}

	now := c.now()
	t := &transfer{
		filename:   a.Filename,
		sender:     sender,
		meeting:    code,
		broadcast:  a.Broadcast(),
		size:       a.Size,
		started:    now,
		updated:    now,
		original:   lo.SliceToMap(recipients, func(id domain.ParticipantID) (domain.ParticipantID, bool) { return id, true }),
		recipients: recipients,
		state:      wire.TransferAnnounced,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c.mu.Lock()
	t.id = a.TransferID
	if t.id == "" {
		t.id = c.transferID(sender, a.Filename, now)
	}
	if _, exists := c.transfers[t.id]; exists {
		c.mu.Unlock()
		return Snapshot{}, domain.ErrTransferExists
	}
	c.transfers[t.id] = t
	c.mu.Unlock()

	if c.opts.Sink != nil {
		w, err := c.opts.Sink.Open(FileMeta{
			TransferID: t.id,
			Filename:   t.filename,
			Size:       t.size,
			Sender:     sender,
			Meeting:    code,
			StartedAt:  now,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("transfer", t.id).Msg("file sink unavailable, transfer not archived")
		} else {
			t.writer = w
		}
	}

	a.TransferID = t.id
	a.SenderID = sender
	for _, to := range append([]domain.ParticipantID(nil), t.recipients...) {
		f := wire.MustFrame(wire.TypeFileAnnounce, a)
		f.Sender = string(sender)
		if err := c.delivery.SendTo(to, f); err != nil {
			c.dropRecipientLocked(t, to, err)
		}
	}
	if len(t.recipients) == 0 {
		c.abortLocked(t, errors.New("no recipient accepted the announce"))
		return t.snapshotLocked(), nil
	}
	c.sendStatusLocked(t, false)
	t.idle = time.AfterFunc(c.opts.IdleTimeout, func() { c.onIdle(t) })
	c.logger.Info().Str("transfer", t.id).Str("sender", string(sender)).Str("file", t.filename).Int64("size", t.size).Int("recipients", len(t.recipients)).Msg("transfer announced")
	return t.snapshotLocked(), nil
}

// Chunk validates and relays one chunk. The frame's sequence is the chunk
// number, starting at 0.
func (c *Coordinator) Chunk(sender domain.ParticipantID, f wire.Frame) error {
	id, data, err := wire.DecodeChunk(f.Payload)
	if err != nil {
		return err
	}
	t, ok := c.lookup(id)
	if !ok {
		return fmt.Errorf("transfer %s: %w", id, domain.ErrNotFound)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sender != sender {
		return domain.ErrNotSender
	}
	if t.state.Terminal() {
		return domain.ErrTransferClosed
	}
	if f.Sequence != t.nextSeq {
		err := fmt.Errorf("%w: got %d want %d", domain.ErrOutOfOrderChunk, f.Sequence, t.nextSeq)
		c.abortLocked(t, err)
		return err
	}
	if t.received+int64(len(data)) > t.size {
		err := fmt.Errorf("%w: %d bytes past %d", domain.ErrOversizedChunk, t.received+int64(len(data)), t.size)
		c.abortLocked(t, err)
		return err
	}

	if t.nextSeq == 0 {
		t.mime = mimetype.Detect(data).String()
	}
	t.state = wire.TransferInProgress
	t.received += int64(len(data))
	t.nextSeq++
	t.updated = c.now()

	if t.writer != nil {
		if err := t.writer.WriteChunk(f.Sequence, data); err != nil {
			c.logger.Warn().Err(err).Str("transfer", t.id).Msg("file sink write failed, archiving stopped")
			_ = t.writer.Abort(err.Error())
			t.writer = nil
		}
	}

	f.Sender = string(sender)
	for _, to := range append([]domain.ParticipantID(nil), t.recipients...) {
		if err := c.delivery.Forward(to, f); err != nil {
			c.dropRecipientLocked(t, to, err)
		}
	}
	if len(t.recipients) == 0 {
		c.abortLocked(t, errors.New("no recipient left"))
		return nil
	}

	if t.received == t.size {
		c.completeLocked(t)
		return nil
	}
	c.sendStatusLocked(t, false)
	t.idle.Reset(c.opts.IdleTimeout)
	return nil
}

// Status returns the transfer state to its sender or one of its original
// recipients.
func (c *Coordinator) Status(requester domain.ParticipantID, id string) (Snapshot, error) {
	t, ok := c.lookup(id)
	if !ok {
		return Snapshot{}, domain.ErrNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if requester != t.sender && !t.original[requester] {
		return Snapshot{}, domain.ErrNotAuthorized
	}
	return t.snapshotLocked(), nil
}

// Snapshot returns a transfer regardless of requester.
func (c *Coordinator) Snapshot(id string) (Snapshot, bool) {
	t, ok := c.lookup(id)
	if !ok {
		return Snapshot{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(), true
}

// Active counts transfers that are not terminal.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	all := lo.Values(c.transfers)
	c.mu.Unlock()
	return lo.CountBy(all, func(t *transfer) bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		return !t.state.Terminal()
	})
}

// AbortParticipant settles the transfers of a participant that left.
// Outgoing transfers abort; a unicast recipient leaving aborts too, a
// broadcast recipient leaving only drops that recipient.
func (c *Coordinator) AbortParticipant(id domain.ParticipantID) {
	c.mu.Lock()
	all := lo.Values(c.transfers)
	c.mu.Unlock()
	for _, t := range all {
		t.mu.Lock()
		switch {
		case t.state.Terminal():
		case t.sender == id:
			c.abortLocked(t, errors.New("sender left"))
		case lo.Contains(t.recipients, id):
			t.recipients = lo.Without(t.recipients, id)
			if !t.broadcast || len(t.recipients) == 0 {
				c.abortLocked(t, errors.New("recipient left"))
			}
		}
		t.mu.Unlock()
	}
}

func (c *Coordinator) lookup(id string) (*transfer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transfers[id]
	return t, ok
}

func (c *Coordinator) onIdle(t *transfer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	c.abortLocked(t, domain.ErrIdleTimeout)
}

// dropRecipientLocked stops delivery to a recipient whose queue refused a
// frame. The others keep receiving.
func (c *Coordinator) dropRecipientLocked(t *transfer, to domain.ParticipantID, err error) {
	t.recipients = lo.Without(t.recipients, to)
	c.logger.Warn().Err(err).Str("transfer", t.id).Str("pid", string(to)).Msg("transfer recipient unreachable")
}

func (c *Coordinator) completeLocked(t *transfer) {
	t.state = wire.TransferCompleted
	t.idle.Stop()
	if t.writer != nil {
		if err := t.writer.Close(); err != nil {
			c.logger.Warn().Err(err).Str("transfer", t.id).Msg("file sink close failed")
		}
		t.writer = nil
	}
	c.sendStatusLocked(t, true)
	c.retain(t.id)
	c.logger.Info().Str("transfer", t.id).Int64("bytes", t.received).Str("mime", t.mime).Msg("transfer completed")
}

func (c *Coordinator) abortLocked(t *transfer, reason error) {
	t.state = wire.TransferAborted
	t.reason = reason.Error()
	t.updated = c.now()
	if t.idle != nil {
		t.idle.Stop()
	}
	if t.writer != nil {
		_ = t.writer.Abort(t.reason)
		t.writer = nil
	}
	c.sendStatusLocked(t, true)
	c.retain(t.id)
	c.logger.Info().Str("transfer", t.id).Str("reason", t.reason).Int64("received", t.received).Msg("transfer aborted")
}

// sendStatusLocked reports progress to the sender and the recipients.
// Announced status only goes to the sender.
func (c *Coordinator) sendStatusLocked(t *transfer, final bool) {
	status := t.snapshotLocked().Status()
	to := []domain.ParticipantID{t.sender}
	if t.state != wire.TransferAnnounced {
		to = append(to, t.recipients...)
	}
	if final && t.state == wire.TransferAborted {
		// Recipients already dropped still learn about the abort.
		to = lo.Uniq(append(to, lo.Keys(t.original)...))
	}
	for _, id := range to {
		if err := c.delivery.SendTo(id, wire.MustFrame(wire.TypeFileStatus, status)); err != nil && !errors.Is(err, domain.ErrNotFound) {
			c.logger.Debug().Err(err).Str("transfer", t.id).Str("pid", string(id)).Msg("status not delivered")
		}
	}
}

func (c *Coordinator) retain(id string) {
	time.AfterFunc(c.opts.Retention, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.transfers, id)
	})
}
