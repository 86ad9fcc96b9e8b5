// Package smt implements the path-compressed sparse Merkle tree (SMT):
// lazy branch creation along a key's digest bit-path, with a flat
// arena-and-index node representation in place of the reference
// implementation's Rc<RefCell<>> graph (there is no equivalent of shared,
// ref-counted subtrees once the tree only ever needs to expose its current
// state rather than retain prior snapshots — see DESIGN.md).
package smt

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

// MaxDepth is the largest key-bit depth this engine accepts. 256 covers the
// full output width of both supported hashers.
const MaxDepth = 256

// emptyIdx marks the absence of a child: no arena slot is allocated for an
// empty subtree, it is represented purely by this sentinel and the zero hash.
const emptyIdx int32 = -1

type nodeKind uint8

const (
	nodeLeaf nodeKind = iota
	nodeBranch
)

type node struct {
	kind nodeKind
	hash hashing.Hash

	// leaf fields
	key   []byte
	value []byte

	// branch fields
	left  int32
	right int32
}

// Hasher is the hash contract the SMT needs: hashing.Hasher plus the leaf
// (key, value) and branch hashes. hashing.PoseidonHasher satisfies it.
type Hasher interface {
	hashing.Hasher
	HashKV(key, value []byte) hashing.Hash
	HashBranch(left, right hashing.Hash) hashing.Hash
}

// Tree is a sparse Merkle tree over byte-string keys and values, addressed
// by the bit-path of each key's hash digest (least-significant-bit first,
// per original_source's bitvec::Lsb0 ordering).
type Tree struct {
	mu sync.RWMutex

	hasher Hasher
	depth  int

	arena []node
	root  int32
}

// New creates an empty tree with depth key bits and the default
// Poseidon-over-BN254 hasher, the SMT's hash choice per spec §4.1.
func New(depth int) (*Tree, error) {
	return NewWithHasher(depth, hashing.DefaultPoseidonHasher())
}

// NewWithHasher creates an empty tree with an explicit hasher, for tests.
func NewWithHasher(depth int, hasher Hasher) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, ctserr.New(ctserr.InvalidData, "depth must be in [1, 256]")
	}
	return &Tree{hasher: hasher, depth: depth, root: emptyIdx}, nil
}

// Depth returns the tree's configured key-bit depth.
func (t *Tree) Depth() int {
	return t.depth
}

// Root returns the current root hash; the empty tree's root is the
// all-zero hash (I-SMT-2).
func (t *Tree) Root() hashing.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hashOf(t.root)
}

func (t *Tree) hashOf(idx int32) hashing.Hash {
	if idx == emptyIdx {
		return hashing.Zero
	}
	return t.arena[idx].hash
}

func (t *Tree) allocLeaf(key, value []byte) int32 {
	n := node{
		kind:  nodeLeaf,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
		left:  emptyIdx,
		right: emptyIdx,
	}
	n.hash = t.hasher.HashKV(n.key, n.value)
	t.arena = append(t.arena, n)
	return int32(len(t.arena) - 1)
}

func (t *Tree) allocBranch(left, right int32) int32 {
	n := node{
		kind:  nodeBranch,
		left:  left,
		right: right,
		hash:  t.hasher.HashBranch(t.hashOf(left), t.hashOf(right)),
	}
	t.arena = append(t.arena, n)
	return int32(len(t.arena) - 1)
}

// bitAt returns bit i of h, least-significant-bit first within each byte.
func bitAt(h hashing.Hash, i int) bool {
	byteIdx := i / 8
	bitIdx := uint(i % 8)
	return (h[byteIdx]>>bitIdx)&1 == 1
}

// Insert adds or replaces the value stored at key. Returns a KeyCollision
// error if key's digest shares a full-depth bit-prefix with a distinct
// existing key (I-SMT-4): at that point no further branching is possible
// and the two keys cannot be distinguished by this tree's depth.
func (t *Tree) Insert(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	digest := t.hasher.HashBytes(key)

	var path []int32
	cur := t.root
	height := 0
	for cur != emptyIdx && t.arena[cur].kind == nodeBranch {
		path = append(path, cur)
		n := &t.arena[cur]
		if bitAt(digest, height) {
			cur = n.right
		} else {
			cur = n.left
		}
		height++
	}

	var attach int32
	switch {
	case cur == emptyIdx:
		attach = t.allocLeaf(key, value)

	case bytesEqual(t.arena[cur].key, key):
		// same key: replace in place, no structural change.
		t.arena[cur].value = append([]byte(nil), value...)
		t.arena[cur].hash = t.hasher.HashKV(t.arena[cur].key, t.arena[cur].value)
		attach = cur

	default:
		existingKey := t.arena[cur].key
		existingValue := t.arena[cur].value
		existingDigest := t.hasher.HashBytes(existingKey)

		h := height
		for bitAt(digest, h) == bitAt(existingDigest, h) {
			if h+1 >= t.depth {
				return ctserr.New(ctserr.KeyCollision, fmt.Sprintf(
					"keys collide under %d-bit digest truncation", t.depth))
			}
			h++
		}

		newLeaf := t.allocLeaf(key, value)
		existingLeaf := t.allocLeaf(existingKey, existingValue)

		var chain int32
		if bitAt(digest, h) {
			chain = t.allocBranch(existingLeaf, newLeaf)
		} else {
			chain = t.allocBranch(newLeaf, existingLeaf)
		}
		for level := h - 1; level >= height; level-- {
			if bitAt(digest, level) {
				chain = t.allocBranch(emptyIdx, chain)
			} else {
				chain = t.allocBranch(chain, emptyIdx)
			}
		}
		attach = chain
	}

	if len(path) == 0 {
		t.root = attach
	} else {
		parent := path[len(path)-1]
		if bitAt(digest, len(path)-1) {
			t.arena[parent].right = attach
		} else {
			t.arena[parent].left = attach
		}
	}

	for i := len(path) - 1; i >= 0; i-- {
		idx := path[i]
		n := &t.arena[idx]
		n.hash = t.hasher.HashBranch(t.hashOf(n.left), t.hashOf(n.right))
	}

	glog.V(2).Infof("smt: inserted key of %d bytes at height %d", len(key), height)
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Get looks up key, returning its value (if present) and an inclusion or
// non-inclusion proof against the current root.
func (t *Tree) Get(key []byte) ([]byte, bool, Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	digest := t.hasher.HashBytes(key)

	cur := t.root
	height := 0
	var siblings []hashing.Hash
	for cur != emptyIdx && t.arena[cur].kind == nodeBranch {
		n := t.arena[cur]
		var sib hashing.Hash
		if bitAt(digest, height) {
			sib = t.hashOf(n.left)
			cur = n.right
		} else {
			sib = t.hashOf(n.right)
			cur = n.left
		}
		siblings = append(siblings, sib)
		height++
	}
	reverseHashes(siblings)

	proof := Proof{Siblings: siblings}
	if cur == emptyIdx {
		return nil, false, proof, nil
	}
	leaf := t.arena[cur]
	if !bytesEqual(leaf.key, key) {
		return nil, false, proof, nil
	}
	return append([]byte(nil), leaf.value...), true, proof, nil
}

func reverseHashes(h []hashing.Hash) {
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
}

// Stats reports the current size of the tree's node arena, for diagnostics.
type Stats struct {
	ArenaSize int
	Depth     int
}

func (t *Tree) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{ArenaSize: len(t.arena), Depth: t.depth}
}
