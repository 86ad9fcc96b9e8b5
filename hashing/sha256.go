package hashing

import "crypto/sha256"

// SHA256Hasher is the IMT-path hasher. Domain separation between HashBytes
// and HashPair is by concatenation length alone: HashPair always hashes
// exactly 64 bytes (two concatenated 32-byte values), while HashBytes
// hashes whatever the caller passes in.
type SHA256Hasher struct{}

var _ Hasher = SHA256Hasher{}

// HashBytes returns SHA-256(b).
func (SHA256Hasher) HashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// HashPair returns SHA-256(a ‖ b).
func (SHA256Hasher) HashPair(a, b Hash) Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(sha256.Sum256(buf[:]))
}
