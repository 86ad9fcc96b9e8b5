package storage

import (
	"fmt"

	"github.com/commitlog/ctstore/commitment"
	"github.com/commitlog/ctstore/hashing"
	"github.com/commitlog/ctstore/merkle/smt"
)

// MapFacade wires the generic SMT engine (C4) into the commitment-index
// side-map feature restored from original_source's
// insert_commitment/get_commitment (see SPEC_FULL.md §C.3). It is a thin
// layer over smt.Tree keyed by a derived "commitment_<index>" string, not a
// replacement for TreeStorage's append-only log.
type MapFacade struct {
	tree *smt.Tree
}

// NewMapFacade creates an empty SMT-backed side-map with the given
// key-bit depth.
func NewMapFacade(depth int) (*MapFacade, error) {
	tree, err := smt.New(depth)
	if err != nil {
		return nil, err
	}
	return &MapFacade{tree: tree}, nil
}

func commitmentKey(index uint64) []byte {
	return []byte(fmt.Sprintf("commitment_%d", index))
}

// InsertCommitmentAt stores c under the derived key for index, alongside
// (not instead of) the append-only IMT log maintained by TreeStorage.
func (m *MapFacade) InsertCommitmentAt(index uint64, c commitment.Commitment) error {
	return m.tree.Insert(commitmentKey(index), commitment.Encode(c))
}

// GetCommitmentAt looks up the commitment stored at index, returning
// found=false if nothing was ever inserted there.
func (m *MapFacade) GetCommitmentAt(index uint64) (commitment.Commitment, bool, error) {
	raw, found, _, err := m.tree.Get(commitmentKey(index))
	if err != nil {
		return commitment.Commitment{}, false, err
	}
	if !found {
		return commitment.Commitment{}, false, nil
	}
	c, err := commitment.Decode(raw)
	if err != nil {
		return commitment.Commitment{}, false, err
	}
	return c, true, nil
}

// Root returns the side-map's current SMT root.
func (m *MapFacade) Root() hashing.Hash {
	return m.tree.Root()
}

// Stats reports the underlying SMT's diagnostics.
func (m *MapFacade) Stats() smt.Stats {
	return m.tree.Stats()
}
