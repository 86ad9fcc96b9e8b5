package merkle

import (
	"fmt"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

func deltaMismatchError(expected, actual uint64) error {
	return ctserr.New(ctserr.InvalidData, fmt.Sprintf(
		"delta expects next new-leaf index %d but found %d", expected, actual))
}

// IndexedLeaf pairs a leaf index with its hash, the unit both halves of a
// Delta are expressed in.
type IndexedLeaf struct {
	Index uint64
	Hash  hashing.Hash
}

// Delta captures the difference between two IMT snapshots of the same
// tree: leaves appended beyond the base snapshot's length ("new leaves"),
// and leaves within the base snapshot's range whose hash changed via
// Update ("updated leaves"). Restored from original_source's
// incremental.rs TreeDelta/create_delta/apply_delta, so a caller (e.g. a
// remote replica) can catch up without replaying the entire leaf history.
type Delta struct {
	BaseLen       uint64
	NewLeaves     []IndexedLeaf
	UpdatedLeaves []IndexedLeaf
}

// IsEmpty reports whether the delta carries no changes.
func (d Delta) IsEmpty() bool {
	return len(d.NewLeaves) == 0 && len(d.UpdatedLeaves) == 0
}

// ChangeCount returns the total number of leaf changes in the delta.
func (d Delta) ChangeCount() int {
	return len(d.NewLeaves) + len(d.UpdatedLeaves)
}

// CreateDelta compares base (an earlier snapshot) against other (the same
// tree, or a tree descended from the same history, after further appends
// and/or updates) and returns what base needs to catch up: leaves other
// has beyond base's length, plus any leaf within base's range whose hash
// differs in other.
func CreateDelta(base, other *Tree) Delta {
	base.mu.RLock()
	defer base.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	baseLen := uint64(len(base.leaves))
	otherLen := uint64(len(other.leaves))

	var newLeaves []IndexedLeaf
	for i := baseLen; i < otherLen; i++ {
		newLeaves = append(newLeaves, IndexedLeaf{Index: i, Hash: other.leaves[i]})
	}

	overlap := baseLen
	if otherLen < overlap {
		overlap = otherLen
	}
	var updated []IndexedLeaf
	for i := uint64(0); i < overlap; i++ {
		if base.leaves[i] != other.leaves[i] {
			updated = append(updated, IndexedLeaf{Index: i, Hash: other.leaves[i]})
		}
	}

	return Delta{BaseLen: baseLen, NewLeaves: newLeaves, UpdatedLeaves: updated}
}

// ApplyDelta applies d's updated leaves first, then its new leaves, to t —
// the same order as original_source's apply_delta, so that an index
// appearing in both halves (a leaf updated and then further appended past,
// in separate deltas) never races against itself. New leaves must extend
// t contiguously from its current length; a gap or a stale/already-applied
// delta is rejected rather than silently skipped.
func ApplyDelta(t *Tree, d Delta) error {
	for _, u := range d.UpdatedLeaves {
		if err := t.UpdateHash(u.Index, u.Hash); err != nil {
			return err
		}
	}
	for _, n := range d.NewLeaves {
		cur := t.Len()
		if n.Index != cur {
			return deltaMismatchError(n.Index, cur)
		}
		if _, err := t.AppendHash(n.Hash); err != nil {
			return err
		}
	}
	return nil
}
