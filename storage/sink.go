// Package storage writes verified pieces to a single flat file at
// their global byte offset.
package storage

import (
	"os"

	"github.com/pkg/errors"
)

// Sink is a random-access writer for one torrent's payload. It always
// writes the flat, global-index layout; splitting a multi-file
// torrent's single part file back into its constituent paths is left
// to an external tool driven by metainfo.Info.Files.
type Sink struct {
	file       *os.File
	pieceLen   int
	totalBytes int64
}

// Open creates (or truncates) the backing file at path, sized to hold
// totalLength bytes, with pieces of pieceLen bytes (the last one may be
// shorter).
func Open(path string, totalLength int64, pieceLen int) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sink file %q", path)
	}
	if err := f.Truncate(totalLength); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "truncating sink file %q to %d bytes", path, totalLength)
	}
	return &Sink{file: f, pieceLen: pieceLen, totalBytes: totalLength}, nil
}

// WriteAt writes a fully-verified piece's bytes at its global offset.
// The coordinator serializes calls to WriteAt; Sink itself does no
// locking.
func (s *Sink) WriteAt(index int, buf []byte) error {
	offset := int64(index) * int64(s.pieceLen)
	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return errors.Wrapf(err, "writing piece %d at offset %d", index, offset)
	}
	return nil
}

// Flush fsyncs the backing file, making previously written pieces
// durable.
func (s *Sink) Flush() error {
	return errors.Wrap(s.file.Sync(), "flushing sink file")
}

// Close flushes and closes the backing file.
func (s *Sink) Close() error {
	if err := s.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
