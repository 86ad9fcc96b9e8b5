// Package walog implements the write-ahead log: length-prefixed frames
// appended before any data-page mutation, truncated on successful sync, and
// replayed on startup if non-empty (spec §4.6).
package walog

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

// entrySize is the fixed encoded size of one WalEntry payload:
// timestamp_ms(8) + index(8) + hash(32).
const entrySize = 8 + 8 + 32

// Entry is one write-ahead log record: the leaf index and hash of a
// pending mutation, plus the wall-clock time it was queued.
type Entry struct {
	TimestampMillis uint64
	Index           uint64
	Hash            hashing.Hash
}

func encodeEntry(e Entry) []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(buf[0:8], e.TimestampMillis)
	binary.LittleEndian.PutUint64(buf[8:16], e.Index)
	copy(buf[16:48], e.Hash[:])
	return buf
}

func decodeEntry(buf []byte) (Entry, error) {
	if len(buf) != entrySize {
		return Entry{}, ctserr.New(ctserr.InvalidData, "malformed WAL entry payload size")
	}
	var e Entry
	e.TimestampMillis = binary.LittleEndian.Uint64(buf[0:8])
	e.Index = binary.LittleEndian.Uint64(buf[8:16])
	copy(e.Hash[:], buf[16:48])
	return e, nil
}

// Log is the append-only write-ahead log backing wal.log.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the WAL file at path.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ctserr.Wrap(ctserr.Io, "open wal.log", err)
	}
	return &Log{file: f}, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if err := l.file.Close(); err != nil {
		return ctserr.Wrap(ctserr.Io, "close wal.log", err)
	}
	return nil
}

// WriteEntry appends one length-prefixed frame and fsyncs it before
// returning, so the record is durable before the corresponding page
// mutation is attempted (the WAL-before-page half of the commit order).
func (l *Log) WriteEntry(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	payload := encodeEntry(e)
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(payload)))

	if _, err := l.file.Write(lenPrefix[:]); err != nil {
		return ctserr.Wrap(ctserr.Io, "write wal frame length", err)
	}
	if _, err := l.file.Write(payload); err != nil {
		return ctserr.Wrap(ctserr.Io, "write wal frame payload", err)
	}
	if err := l.file.Sync(); err != nil {
		return ctserr.Wrap(ctserr.Io, "fsync wal.log", err)
	}
	return nil
}

// Truncate zeroes the log, called after a successful data + metadata flush.
func (l *Log) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return ctserr.Wrap(ctserr.Io, "seek wal.log", err)
	}
	if err := l.file.Truncate(0); err != nil {
		return ctserr.Wrap(ctserr.Io, "truncate wal.log", err)
	}
	return l.file.Sync()
}

// Replay reads every complete frame from the start of the log, in order,
// invoking apply for each. A truncated final frame (a crash mid-write) is
// silently dropped rather than treated as an error, since its corresponding
// data-page write never happened either.
func (l *Log) Replay(ctx context.Context, apply func(Entry) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return ctserr.Wrap(ctserr.Io, "seek wal.log", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var lenPrefix [4]byte
		if _, err := io.ReadFull(l.file, lenPrefix[:]); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				break
			}
			return ctserr.Wrap(ctserr.Io, "read wal frame length", err)
		}
		n := binary.LittleEndian.Uint32(lenPrefix[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(l.file, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return ctserr.Wrap(ctserr.Io, "read wal frame payload", err)
		}
		entry, err := decodeEntry(payload)
		if err != nil {
			return err
		}
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}
