package hashing

import "github.com/consensys/gnark-crypto/ecc/bn254/fr"

// PoseidonHasher is the SMT-path hasher: a Poseidon-style permutation over
// the BN254 scalar field. Arbitrary byte input is truncated to 31 bytes
// (to stay within the field) with a one-byte domain separator applied,
// then absorbed in a single-element permutation. HashPair, HashKV, and
// HashBranch first hash each of their two inputs that way, then absorb the
// two resulting digests together in a two-element permutation.
type PoseidonHasher struct {
	params PoseidonParams
}

var _ Hasher = PoseidonHasher{}

// NewPoseidonHasher builds a PoseidonHasher from an explicit parameter set,
// primarily for tests that want to exercise a smaller permutation.
func NewPoseidonHasher(params PoseidonParams) PoseidonHasher {
	return PoseidonHasher{params: params}
}

// DefaultPoseidonHasher returns the hasher this store uses for the SMT path.
func DefaultPoseidonHasher() PoseidonHasher {
	return PoseidonHasher{params: DefaultPoseidonParams()}
}

// permute runs the full/partial/full Poseidon round schedule over state,
// mutating nothing and returning the new state.
func (p PoseidonHasher) permute(state []fr.Element) []fr.Element {
	params := p.params
	half := params.FullRounds / 2

	cur := make([]fr.Element, len(state))
	copy(cur, state)

	round := 0
	addConstants := func() {
		for i := range cur {
			cur[i].Add(&cur[i], &params.RoundConstants[round*params.T+i])
		}
	}

	for r := 0; r < half; r++ {
		addConstants()
		for i := range cur {
			cur[i] = SBox(cur[i])
		}
		cur = MDSMul(cur, params.MDS)
		round++
	}
	for r := 0; r < params.PartialRounds; r++ {
		addConstants()
		cur[0] = SBox(cur[0])
		cur = MDSMul(cur, params.MDS)
		round++
	}
	for r := 0; r < half; r++ {
		addConstants()
		for i := range cur {
			cur[i] = SBox(cur[i])
		}
		cur = MDSMul(cur, params.MDS)
		round++
	}
	return cur
}

// elementToHash serializes a field element to its canonical (non-Montgomery)
// big-endian byte representation.
func elementToHash(v fr.Element) Hash {
	return Hash(v.Bytes())
}

// fieldElementFromRaw reduces an already hash-sized byte slice into the
// field without any truncation or domain separation: used for the second
// absorption stage where the inputs are themselves prior hash outputs.
// fr.Element.SetBytes reduces modulo the bn254 scalar field.
func fieldElementFromRaw(b []byte) fr.Element {
	var e fr.Element
	e.SetBytes(b)
	return e
}

// fieldElementFromInput truncates an arbitrary-length input to 31 bytes
// (to guarantee it fits under the field modulus) and nudges the first
// byte to separate "hashing a value" from "hashing a 32-byte digest that
// happens to look the same".
func fieldElementFromInput(input []byte) fr.Element {
	var buf [31]byte
	n := len(input)
	if n > 31 {
		n = 31
	}
	copy(buf[:n], input[:n])
	buf[0] = buf[0] + 1
	var e fr.Element
	e.SetBytes(buf[:])
	return e
}

// absorb1 runs a single-element permutation (capacity 0, rate slot 1 used,
// rate slot 2 left at zero) and squeezes the first state element.
func (p PoseidonHasher) absorb1(x fr.Element) Hash {
	state := []fr.Element{{}, x, {}}
	out := p.permute(state)
	return elementToHash(out[0])
}

// absorb2 runs a two-element permutation and squeezes the first state
// element.
func (p PoseidonHasher) absorb2(a, b fr.Element) Hash {
	state := []fr.Element{{}, a, b}
	out := p.permute(state)
	return elementToHash(out[0])
}

// HashBytes hashes an arbitrary-length input via a single absorption.
func (p PoseidonHasher) HashBytes(b []byte) Hash {
	x := fieldElementFromInput(b)
	return p.absorb1(x)
}

// combine is the shared two-stage pipeline behind HashPair, HashKV, and
// HashBranch: each raw input is first reduced to a digest via HashBytes,
// then the two digests are absorbed together in a second permutation.
func (p PoseidonHasher) combine(x, y []byte) Hash {
	hx := p.HashBytes(x)
	hy := p.HashBytes(y)
	fx := fieldElementFromRaw(hx[:])
	fy := fieldElementFromRaw(hy[:])
	return p.absorb2(fx, fy)
}

// HashPair hashes two existing digests together.
func (p PoseidonHasher) HashPair(a, b Hash) Hash {
	return p.combine(a[:], b[:])
}

// HashKV hashes an SMT leaf's (key, value) pair.
func (p PoseidonHasher) HashKV(key, value []byte) Hash {
	return p.combine(key, value)
}

// HashBranch hashes an SMT internal node's (left, right) child hashes.
// Structurally identical to HashPair; kept as a distinct method name to
// mirror the spec's I-SMT-1 invariant wording.
func (p PoseidonHasher) HashBranch(left, right Hash) Hash {
	return p.combine(left[:], right[:])
}
