// Package hashing implements the two hash functions used by this store: a
// plain SHA-256 hasher for the incremental Merkle tree (IMT) path, and a
// Poseidon-style hasher over the BN254 scalar field for the sparse Merkle
// tree (SMT) path. The two are not interchangeable — a root computed with
// one is meaningless compared against the other — so the choice is encoded
// explicitly in the on-disk metadata version (see storage/metastore) and
// callers must not mix them.
package hashing

import "encoding/hex"

// Hash is the 32-byte opaque value produced by both hash functions.
// Equality, ordering, and hex-encoding are byte-wise.
type Hash [32]byte

// Zero is the all-zeros sentinel used as the SMT empty-node hash.
var Zero Hash

// IsZero reports whether h is the all-zeros sentinel.
func (h Hash) IsZero() bool { return h == Zero }

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// Less gives Hash a total byte-wise order, useful for deterministic test
// output and for any caller that wants to sort a batch of digests.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Hasher is the contract shared by the IMT and SMT hash functions: a
// deterministic digest of an arbitrary byte slice, and a deterministic
// digest of a pair of existing digests.
type Hasher interface {
	// HashBytes hashes an arbitrary-length input.
	HashBytes(b []byte) Hash
	// HashPair hashes exactly two 32-byte values together.
	HashPair(a, b Hash) Hash
}
