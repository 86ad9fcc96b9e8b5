package pagestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/commitlog/ctstore/hashing"
)

func openTestStore(t *testing.T, cachePages int) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "leaves.dat"), cachePages)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestWriteReadLeafWithinHotRegion(t *testing.T) {
	s := openTestStore(t, 4)
	h := hashing.SHA256Hasher{}.HashBytes([]byte("hot region leaf"))

	if err := s.WriteLeaf(context.Background(), 0, h); err != nil {
		t.Fatalf("WriteLeaf: %v", err)
	}
	got, found, err := s.ReadLeaf(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadLeaf: %v", err)
	}
	if !found || got != h {
		t.Fatalf("ReadLeaf(0) = (%x, %v), want (%x, true)", got, found, h)
	}
}

func TestWriteReadLeafBeyondHotRegion(t *testing.T) {
	s := openTestStore(t, 4)
	index := uint64(MmapPages+1) * EntriesPerPage
	h := hashing.SHA256Hasher{}.HashBytes([]byte("cold region leaf"))

	if err := s.WriteLeaf(context.Background(), index, h); err != nil {
		t.Fatalf("WriteLeaf: %v", err)
	}
	got, found, err := s.ReadLeaf(context.Background(), index)
	if err != nil {
		t.Fatalf("ReadLeaf: %v", err)
	}
	if !found || got != h {
		t.Fatalf("ReadLeaf(%d) = (%x, %v), want (%x, true)", index, got, found, h)
	}
}

func TestReadUnwrittenLeafNotFound(t *testing.T) {
	s := openTestStore(t, 4)
	_, found, err := s.ReadLeaf(context.Background(), 5)
	if err != nil {
		t.Fatalf("ReadLeaf: %v", err)
	}
	if found {
		t.Fatalf("ReadLeaf(5) unexpectedly found a value in a fresh store")
	}
}

func TestFlushPersistsColdPagesAfterReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leaves.dat")

	s1, err := Open(path, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	index := uint64(MmapPages+2) * EntriesPerPage
	h := hashing.SHA256Hasher{}.HashBytes([]byte("persisted leaf"))
	if err := s1.WriteLeaf(context.Background(), index, h); err != nil {
		t.Fatalf("WriteLeaf: %v", err)
	}
	if err := s1.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, found, err := s2.ReadLeaf(context.Background(), index)
	if err != nil {
		t.Fatalf("ReadLeaf after reopen: %v", err)
	}
	if !found || got != h {
		t.Fatalf("ReadLeaf after reopen = (%x, %v), want (%x, true)", got, found, h)
	}
}

func TestLeafSurvivesCacheEviction(t *testing.T) {
	s := openTestStore(t, 1)
	base := uint64(MmapPages) * EntriesPerPage

	h1 := hashing.SHA256Hasher{}.HashBytes([]byte("page one"))
	h2 := hashing.SHA256Hasher{}.HashBytes([]byte("page two"))

	if err := s.WriteLeaf(context.Background(), base, h1); err != nil {
		t.Fatalf("WriteLeaf 1: %v", err)
	}
	// Force a page well beyond the first page's span, evicting it from a
	// 1-page cache.
	if err := s.WriteLeaf(context.Background(), base+uint64(EntriesPerPage)*10, h2); err != nil {
		t.Fatalf("WriteLeaf 2: %v", err)
	}

	got, found, err := s.ReadLeaf(context.Background(), base)
	if err != nil {
		t.Fatalf("ReadLeaf after eviction: %v", err)
	}
	if !found || got != h1 {
		t.Fatalf("ReadLeaf(base) after eviction = (%x, %v), want (%x, true)", got, found, h1)
	}
}

func TestStatsReportsOccupancy(t *testing.T) {
	s := openTestStore(t, 8)
	base := uint64(MmapPages) * EntriesPerPage
	h := hashing.SHA256Hasher{}.HashBytes([]byte("stats leaf"))
	if err := s.WriteLeaf(context.Background(), base, h); err != nil {
		t.Fatalf("WriteLeaf: %v", err)
	}
	stats := s.Stats()
	if stats.CurrentPages != 1 {
		t.Fatalf("Stats().CurrentPages = %d, want 1", stats.CurrentPages)
	}
	if stats.MaxPages != 8 {
		t.Fatalf("Stats().MaxPages = %d, want 8", stats.MaxPages)
	}
}
