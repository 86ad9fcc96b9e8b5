package storage

import "testing"

func TestMapFacadeInsertAndGetCommitmentAt(t *testing.T) {
	m, err := NewMapFacade(64)
	if err != nil {
		t.Fatalf("NewMapFacade: %v", err)
	}

	c := testCommitment(7)
	if err := m.InsertCommitmentAt(7, c); err != nil {
		t.Fatalf("InsertCommitmentAt: %v", err)
	}

	got, found, err := m.GetCommitmentAt(7)
	if err != nil {
		t.Fatalf("GetCommitmentAt: %v", err)
	}
	if !found {
		t.Fatalf("GetCommitmentAt(7) reported not found")
	}
	if got != c {
		t.Fatalf("GetCommitmentAt(7) = %+v, want %+v", got, c)
	}
}

func TestMapFacadeMissingIndexNotFound(t *testing.T) {
	m, err := NewMapFacade(64)
	if err != nil {
		t.Fatalf("NewMapFacade: %v", err)
	}

	_, found, err := m.GetCommitmentAt(99)
	if err != nil {
		t.Fatalf("GetCommitmentAt: %v", err)
	}
	if found {
		t.Fatalf("GetCommitmentAt(99) reported found for an unset index")
	}
}

func TestMapFacadeRootChangesOnInsert(t *testing.T) {
	m, err := NewMapFacade(64)
	if err != nil {
		t.Fatalf("NewMapFacade: %v", err)
	}
	before := m.Root()
	if err := m.InsertCommitmentAt(1, testCommitment(1)); err != nil {
		t.Fatalf("InsertCommitmentAt: %v", err)
	}
	if after := m.Root(); after == before {
		t.Fatalf("Root() unchanged after insert")
	}
}
