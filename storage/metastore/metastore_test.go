package metastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/commitlog/ctstore/hashing"
)

func TestLoadFreshFileReportsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metadata.dat"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatalf("Load on fresh file reported a record present")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metadata.dat"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	want := Record{
		Version:           uint32(HashSHA256),
		Depth:             20,
		LeafCount:         3,
		Root:              hashing.SHA256Hasher{}.HashBytes([]byte("root")),
		LastSyncEpochSecs: 1700000000,
	}
	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("Load reported no record after Save")
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadDetectsChecksumCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.dat")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec := Record{Version: uint32(HashSHA256), Depth: 20, LeafCount: 1}
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[10] ^= 0xFF
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if _, _, err := s2.Load(context.Background()); err == nil {
		t.Fatalf("Load on corrupted record did not return an error")
	}
}
