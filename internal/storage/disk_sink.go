// Package storage archives relayed files on the local disk.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/lanmeet/internal/app/transfer"
)

var ErrChunkOrder = errors.New("chunk out of order")

// DiskSink writes each transfer to <dir>/<meeting>/<id>-<filename>. The file
// carries a .part suffix until the transfer completes.
type DiskSink struct {
	Dir string
}

func NewDiskSink(dir string) *DiskSink {
	return &DiskSink{Dir: dir}
}

func (s *DiskSink) Open(meta transfer.FileMeta) (transfer.ChunkWriter, error) {
	dir := filepath.Join(s.Dir, safeName(string(meta.Meeting)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	final := filepath.Join(dir, fmt.Sprintf("%s-%s", meta.TransferID, safeName(meta.Filename)))
	f, err := os.OpenFile(final+".part", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "storage").Str("transfer", meta.TransferID).Str("path", final).Msg("archiving")
	return &diskWriter{f: f, w: bufio.NewWriter(f), final: final}, nil
}

// safeName keeps only the last path element so a filename cannot escape dir.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return "file"
	}
	return name
}

type diskWriter struct {
	f     *os.File
	w     *bufio.Writer
	final string
	next  uint64
}

func (d *diskWriter) WriteChunk(seq uint64, data []byte) error {
	if seq != d.next {
		return fmt.Errorf("%w: got %d, want %d", ErrChunkOrder, seq, d.next)
	}
	d.next++
	_, err := d.w.Write(data)
	return err
}

func (d *diskWriter) Close() error {
	if err := d.w.Flush(); err != nil {
		_ = d.discard()
		return err
	}
	if err := d.f.Close(); err != nil {
		_ = os.Remove(d.f.Name())
		return err
	}
	return os.Rename(d.f.Name(), d.final)
}

func (d *diskWriter) Abort(reason string) error {
	log.Debug().Str("module", "storage").Str("path", d.final).Str("reason", reason).Msg("archive discarded")
	return d.discard()
}

func (d *diskWriter) discard() error {
	return errors.Join(d.f.Close(), os.Remove(d.f.Name()))
}
