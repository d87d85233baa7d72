// Package journal keeps an append-only log of meeting events in badger.
package journal

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/domain"
)

type Journal struct {
	db  *badger.DB
	seq atomic.Uint64
}

// Open opens the journal at path. An empty path keeps it in memory.
func Open(path string) (*Journal, error) {
	logger := log.With().Str("module", "journal").Logger()
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// key is "m:{code}:{unix nano, 19 digits}:{counter}" so a prefix scan
// returns a meeting's events in time order.
func (j *Journal) key(e domain.Event) []byte {
	return fmt.Appendf(nil, "m:%s:%019d:%08d", e.Meeting, e.At.UnixNano(), j.seq.Add(1))
}

func (j *Journal) Append(e domain.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(j.key(e), value)
	})
}

// Meeting returns every event recorded for code, oldest first.
func (j *Journal) Meeting(code domain.MeetingCode) ([]domain.Event, error) {
	prefix := []byte(fmt.Sprintf("m:%s:", code))
	var events []domain.Event
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e domain.Event
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// badgerLogger routes badger's own messages through zerolog. Badger is
// chatty at info level, so that goes to debug.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(f string, args ...any)   { b.l.Error().Msgf(f, args...) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warn().Msgf(f, args...) }
func (b badgerLogger) Infof(f string, args ...any)    { b.l.Debug().Msgf(f, args...) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.l.Debug().Msgf(f, args...) }
