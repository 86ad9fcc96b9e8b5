package merkle

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

func mustTree(t *testing.T, depth int) *Tree {
	t.Helper()
	tr, err := New(depth)
	if err != nil {
		t.Fatalf("New(%d): %v", depth, err)
	}
	return tr
}

func TestNewRejectsBadDepth(t *testing.T) {
	if _, err := New(0); ctserr.KindOf(err) != ctserr.InvalidData {
		t.Fatalf("depth 0: got %v, want InvalidData", err)
	}
	if _, err := New(64); ctserr.KindOf(err) != ctserr.InvalidData {
		t.Fatalf("depth 64: got %v, want InvalidData", err)
	}
}

func TestEmptyTreeRootIsZeroHashAtDepth(t *testing.T) {
	tr := mustTree(t, 4)
	want := tr.ZeroHash(4)
	if got := tr.Root(); got != want {
		t.Fatalf("empty root = %x, want %x", got, want)
	}
}

func TestAppendAndProveRoundTrip(t *testing.T) {
	tr := mustTree(t, 8)
	leaves := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma"), []byte("delta")}
	for i, l := range leaves {
		idx, err := tr.Append(l)
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		if idx != uint64(i) {
			t.Fatalf("Append index = %d, want %d", idx, i)
		}
	}

	root := tr.Root()
	for i := range leaves {
		proof, err := tr.Prove(uint64(i))
		if err != nil {
			t.Fatalf("Prove(%d): %v", i, err)
		}
		if len(proof.Siblings) != tr.Depth() {
			t.Fatalf("Prove(%d) returned %d siblings, want %d", i, len(proof.Siblings), tr.Depth())
		}
		if !Verify(hashing.SHA256Hasher{}, proof, root) {
			t.Fatalf("Verify(%d) failed against current root", i)
		}
	}
}

func TestProveUnappendedLeafFails(t *testing.T) {
	tr := mustTree(t, 4)
	if _, err := tr.Append([]byte("only leaf")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := tr.Prove(5); ctserr.KindOf(err) != ctserr.LeafNotAppended {
		t.Fatalf("Prove(5): got %v, want LeafNotAppended", err)
	}
}

func TestUpdateInvalidatesOldProof(t *testing.T) {
	tr := mustTree(t, 6)
	if _, err := tr.Append([]byte("first")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := tr.Append([]byte("second")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	oldProof, err := tr.Prove(0)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	oldRoot := tr.Root()
	if !Verify(hashing.SHA256Hasher{}, oldProof, oldRoot) {
		t.Fatalf("sanity: old proof should verify before update")
	}

	if err := tr.Update(0, []byte("first-replaced")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	newRoot := tr.Root()
	if newRoot == oldRoot {
		t.Fatalf("root did not change after Update")
	}
	if Verify(hashing.SHA256Hasher{}, oldProof, newRoot) {
		t.Fatalf("stale proof should not verify against the post-update root")
	}

	newProof, err := tr.Prove(0)
	if err != nil {
		t.Fatalf("Prove after update: %v", err)
	}
	if !Verify(hashing.SHA256Hasher{}, newProof, newRoot) {
		t.Fatalf("fresh proof should verify against the post-update root")
	}
}

func TestTreeFullOnCapacityExceeded(t *testing.T) {
	tr := mustTree(t, 1)
	if _, err := tr.Append([]byte("a")); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if _, err := tr.Append([]byte("b")); err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if _, err := tr.Append([]byte("c")); ctserr.KindOf(err) != ctserr.TreeFull {
		t.Fatalf("Append 3: got %v, want TreeFull", err)
	}
}

func TestRebuildFrontierMatchesIncrementalAppend(t *testing.T) {
	incremental := mustTree(t, 10)
	var hashes []hashing.Hash
	for i := 0; i < 17; i++ {
		b := []byte{byte(i)}
		idx, err := incremental.Append(b)
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		hashes = append(hashes, hashing.SHA256Hasher{}.HashBytes(b))
		_ = idx
	}

	rebuilt := mustTree(t, 10)
	rebuilt.LoadLeaves(hashes)

	if got, want := rebuilt.Root(), incremental.Root(); got != want {
		t.Fatalf("rebuilt root = %x, want %x", got, want)
	}
	if diff := cmp.Diff(incremental.Leaves(), rebuilt.Leaves()); diff != "" {
		t.Fatalf("leaves mismatch (-incremental +rebuilt):\n%s", diff)
	}
}

func TestCreateApplyDeltaNewLeaves(t *testing.T) {
	source := mustTree(t, 8)
	for _, b := range [][]byte{[]byte("one"), []byte("two")} {
		if _, err := source.Append(b); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	replica := mustTree(t, 8)
	for _, b := range [][]byte{[]byte("one"), []byte("two")} {
		if _, err := replica.Append(b); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	for _, b := range [][]byte{[]byte("three"), []byte("four")} {
		if _, err := source.Append(b); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	delta := CreateDelta(replica, source)
	if len(delta.NewLeaves) != 2 {
		t.Fatalf("delta has %d new leaves, want 2", len(delta.NewLeaves))
	}
	if len(delta.UpdatedLeaves) != 0 {
		t.Fatalf("delta has %d updated leaves, want 0", len(delta.UpdatedLeaves))
	}

	if err := ApplyDelta(replica, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if got, want := replica.Root(), source.Root(); got != want {
		t.Fatalf("replica root = %x, want source root = %x", got, want)
	}
}

func TestCreateApplyDeltaUpdatedLeaves(t *testing.T) {
	source := mustTree(t, 8)
	for _, b := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		if _, err := source.Append(b); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	replica := mustTree(t, 8)
	for _, b := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		if _, err := replica.Append(b); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := source.Update(1, []byte("TWO-CHANGED")); err != nil {
		t.Fatalf("Update: %v", err)
	}

	delta := CreateDelta(replica, source)
	if len(delta.NewLeaves) != 0 {
		t.Fatalf("delta has %d new leaves, want 0", len(delta.NewLeaves))
	}
	if len(delta.UpdatedLeaves) != 1 || delta.UpdatedLeaves[0].Index != 1 {
		t.Fatalf("delta.UpdatedLeaves = %+v, want a single entry at index 1", delta.UpdatedLeaves)
	}

	if err := ApplyDelta(replica, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if got, want := replica.Root(), source.Root(); got != want {
		t.Fatalf("replica root = %x, want source root = %x", got, want)
	}
}

func TestDeltaIsEmptyAndChangeCount(t *testing.T) {
	d := Delta{}
	if !d.IsEmpty() {
		t.Fatalf("zero-value delta should be empty")
	}
	d.NewLeaves = []IndexedLeaf{{Index: 0}}
	d.UpdatedLeaves = []IndexedLeaf{{Index: 1}, {Index: 2}}
	if d.IsEmpty() {
		t.Fatalf("delta with changes should not be empty")
	}
	if got, want := d.ChangeCount(), 3; got != want {
		t.Fatalf("ChangeCount() = %d, want %d", got, want)
	}
}

func TestApplyDeltaRejectsMismatchedLength(t *testing.T) {
	tr := mustTree(t, 4)
	if _, err := tr.Append([]byte("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	bad := Delta{NewLeaves: []IndexedLeaf{{Index: 5, Hash: hashing.Hash{}}}}
	if err := ApplyDelta(tr, bad); ctserr.KindOf(err) != ctserr.InvalidData {
		t.Fatalf("ApplyDelta mismatched: got %v, want InvalidData", err)
	}
}
