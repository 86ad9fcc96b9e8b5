// Package metastore implements the single checksummed metadata record
// (`metadata.dat`): format version, tree depth, leaf count, root, and last
// sync epoch, with a CRC32 covering every other field (spec §4.7).
package metastore

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

// recordSize is the fixed encoded size: version(4) + depth(8) +
// leaf_count(8) + root(32) + last_sync_epoch_secs(8) + crc32(4).
const recordSize = 4 + 8 + 8 + 32 + 8 + 4

// HashKind distinguishes which hasher produced the tree this metadata
// describes, encoded in the record so a mismatched engine refuses to load
// it rather than silently computing incomparable roots (spec §9, "Two hash
// functions").
type HashKind uint32

const (
	HashSHA256 HashKind = iota
	HashPoseidonBN254
)

// Record is the canonical on-disk metadata snapshot.
type Record struct {
	Version           uint32
	Depth             uint64
	LeafCount         uint64
	Root              hashing.Hash
	LastSyncEpochSecs uint64
}

func (r Record) encodeForChecksum() []byte {
	buf := make([]byte, recordSize-4)
	binary.LittleEndian.PutUint32(buf[0:4], r.Version)
	binary.LittleEndian.PutUint64(buf[4:12], r.Depth)
	binary.LittleEndian.PutUint64(buf[12:20], r.LeafCount)
	copy(buf[20:52], r.Root[:])
	binary.LittleEndian.PutUint64(buf[52:60], r.LastSyncEpochSecs)
	return buf
}

func (r Record) checksum() uint32 {
	return crc32.ChecksumIEEE(r.encodeForChecksum())
}

func (r Record) encode() []byte {
	buf := make([]byte, recordSize)
	copy(buf, r.encodeForChecksum())
	binary.LittleEndian.PutUint32(buf[recordSize-4:recordSize], r.checksum())
	return buf
}

func decodeRecord(buf []byte) (Record, error) {
	if len(buf) != recordSize {
		return Record{}, ctserr.New(ctserr.InvalidData, "malformed metadata record size")
	}
	var r Record
	r.Version = binary.LittleEndian.Uint32(buf[0:4])
	r.Depth = binary.LittleEndian.Uint64(buf[4:12])
	r.LeafCount = binary.LittleEndian.Uint64(buf[12:20])
	copy(r.Root[:], buf[20:52])
	r.LastSyncEpochSecs = binary.LittleEndian.Uint64(buf[52:60])
	wantCRC := binary.LittleEndian.Uint32(buf[recordSize-4 : recordSize])

	if got := r.checksum(); got != wantCRC {
		return Record{}, ctserr.New(ctserr.ChecksumError, "metadata checksum mismatch")
	}
	return r, nil
}

// Store wraps metadata.dat, serializing access with a single lock (spec
// §5: "the metadata record is protected by a separate lock").
type Store struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) metadata.dat at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ctserr.Wrap(ctserr.Io, "open metadata.dat", err)
	}
	return &Store{file: f}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	if err := s.file.Close(); err != nil {
		return ctserr.Wrap(ctserr.Io, "close metadata.dat", err)
	}
	return nil
}

// Load reads the current record. If the file is empty (a fresh store),
// Load returns (Record{}, false, nil) so the caller can initialize one.
func (s *Store) Load(ctx context.Context) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return Record{}, false, ctserr.Wrap(ctserr.Io, "seek metadata.dat", err)
	}
	buf, err := io.ReadAll(s.file)
	if err != nil {
		return Record{}, false, ctserr.Wrap(ctserr.Io, "read metadata.dat", err)
	}
	if len(buf) == 0 {
		return Record{}, false, nil
	}
	r, err := decodeRecord(buf)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Save truncates and rewrites metadata.dat with r (with a freshly computed
// checksum), then fsyncs.
func (s *Store) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return ctserr.Wrap(ctserr.Io, "seek metadata.dat", err)
	}
	if err := s.file.Truncate(0); err != nil {
		return ctserr.Wrap(ctserr.Io, "truncate metadata.dat", err)
	}
	if _, err := s.file.Write(r.encode()); err != nil {
		return ctserr.Wrap(ctserr.Io, "write metadata.dat", err)
	}
	return s.file.Sync()
}
