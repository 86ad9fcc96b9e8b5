// Package commitment implements the fixed binary layout for commitment
// records handed to this store by an external event-ingestion pipeline
// (out of scope for this module — see spec.md §1). The codec is
// intentionally simple: a fixed little-endian layout with no schema
// negotiation, matching the corpus's own hand-rolled binary encodings
// rather than pulling in a protobuf/msgpack dependency for a five-field
// scalar record.
package commitment

import (
	"encoding/binary"
	"fmt"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

// EncodedSize is the canonical on-wire size of a Commitment record:
// version(4) + commitment_index(8) + hash(32) + random_secret(32) + nullifier(32).
const EncodedSize = 4 + 8 + 32 + 32 + 32

// Commitment identifies a versioned entry that will occupy one leaf of the
// append-only commitment log.
type Commitment struct {
	Version         uint32
	CommitmentIndex uint64
	Hash            hashing.Hash
	RandomSecret    hashing.Hash
	Nullifier       hashing.Hash
}

// Encode writes c in canonical little-endian layout.
func Encode(c Commitment) []byte {
	buf := make([]byte, EncodedSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.Version)
	binary.LittleEndian.PutUint64(buf[4:12], c.CommitmentIndex)
	copy(buf[12:44], c.Hash[:])
	copy(buf[44:76], c.RandomSecret[:])
	copy(buf[76:108], c.Nullifier[:])
	return buf
}

// Decode parses a Commitment from data. Trailing bytes beyond EncodedSize
// are ignored (the reference implementation's lenient policy); fewer than
// EncodedSize bytes is an InvalidData error.
func Decode(data []byte) (Commitment, error) {
	if len(data) < EncodedSize {
		return Commitment{}, ctserr.New(ctserr.InvalidData, fmt.Sprintf(
			"insufficient data for commitment: expected %d bytes, got %d", EncodedSize, len(data)))
	}
	var c Commitment
	c.Version = binary.LittleEndian.Uint32(data[0:4])
	c.CommitmentIndex = binary.LittleEndian.Uint64(data[4:12])
	copy(c.Hash[:], data[12:44])
	copy(c.RandomSecret[:], data[44:76])
	copy(c.Nullifier[:], data[76:108])
	return c, nil
}
