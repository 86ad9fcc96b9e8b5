package smt

import "github.com/commitlog/ctstore/hashing"

// Proof is a sparse Merkle tree lookup proof: the sibling hashes collected
// while descending to a key's leaf (or to the empty slot where it would
// live), ordered leaf-to-root per the resolved proof-ordering question in
// DESIGN.md — the reverse of traversal order.
type Proof struct {
	Siblings []hashing.Hash
}

// defaultValueForMissing is hashed in place of a key's value when checking
// a non-inclusion proof, matching the reference implementation's sentinel
// for "no value at this key".
var defaultValueForMissing = []byte{}

// CheckProof verifies that key maps to value (or, if present is false, that
// key is absent) under root, using hasher and proof. It recomputes the
// root by walking the sibling list from leaf to root, choosing left/right
// combination order from the corresponding bit of key's digest: since
// siblings are stored leaf-to-root, sibling idx sits at descent height
// len(siblings)-idx-1.
func CheckProof(hasher Hasher, key []byte, value []byte, present bool, proof Proof, root hashing.Hash) bool {
	v := value
	if !present {
		v = defaultValueForMissing
	}
	cur := hasher.HashKV(key, v)
	digest := hasher.HashBytes(key)

	n := len(proof.Siblings)
	for idx, sib := range proof.Siblings {
		bitIndex := n - idx - 1
		if bitAt(digest, bitIndex) {
			cur = hasher.HashBranch(sib, cur)
		} else {
			cur = hasher.HashBranch(cur, sib)
		}
	}
	return cur == root
}
