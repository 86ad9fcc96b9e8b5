// Package pagestore implements the paged leaf file (`leaves.dat`): a
// memory-mapped hot region for low page indices plus an LRU page cache
// backed by regular file I/O for everything past it.
package pagestore

import (
	"context"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/glog"

	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
)

const (
	// PageSize is the fixed page size of leaves.dat, per spec §3.5.
	PageSize = 4096
	// EntrySize is the on-disk size of one leaf entry: 1 flag byte + 32-byte hash.
	EntrySize = 1 + 32
	// EntriesPerPage is floor(PageSize / EntrySize).
	EntriesPerPage = PageSize / EntrySize
	// MmapPages is the number of leading pages kept memory-mapped (1 MiB hot region).
	MmapPages = (1024 * 1024) / PageSize
	// mmapRegionBytes is the minimum file size needed to map MmapPages pages.
	mmapRegionBytes = MmapPages * PageSize
)

// Store translates (index, leaf hash) pairs to and from byte positions in
// leaves.dat, per spec §4.5.
type Store struct {
	file *os.File

	mmapMu sync.Mutex
	mmap   mmap.MMap

	cache *pageCache
}

// Open opens (creating if necessary) the paged leaf file at path, maps its
// hot region, and initializes an LRU cache of cachePages pages for the rest.
func Open(path string, cachePages int) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ctserr.Wrap(ctserr.Io, "open leaves.dat", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ctserr.Wrap(ctserr.Io, "stat leaves.dat", err)
	}
	if info.Size() < mmapRegionBytes {
		if err := f.Truncate(mmapRegionBytes); err != nil {
			f.Close()
			return nil, ctserr.Wrap(ctserr.Io, "extend leaves.dat for mmap", err)
		}
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, ctserr.Wrap(ctserr.Io, "mmap leaves.dat", err)
	}

	return &Store{
		file:  f,
		mmap:  m,
		cache: newPageCache(cachePages),
	}, nil
}

// Close unmaps and closes the underlying file. Callers should Flush first.
func (s *Store) Close() error {
	if err := s.mmap.Unmap(); err != nil {
		return ctserr.Wrap(ctserr.Io, "unmap leaves.dat", err)
	}
	if err := s.file.Close(); err != nil {
		return ctserr.Wrap(ctserr.Io, "close leaves.dat", err)
	}
	return nil
}

func entryOffset(index uint64) (pageID uint64, offsetInPage int) {
	pageID = index / EntriesPerPage
	offsetInPage = int(index%EntriesPerPage) * EntrySize
	return
}

// WriteLeaf writes hash at index, routing through the mmap region for hot
// pages and through the LRU page cache for the rest (spec §4.5). ctx is
// checked before any blocking disk access; a cancelled ctx aborts before
// the page cache is touched.
func (s *Store) WriteLeaf(ctx context.Context, index uint64, hash hashing.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pageID, off := entryOffset(index)

	if pageID < MmapPages {
		s.mmapMu.Lock()
		defer s.mmapMu.Unlock()
		base := int(pageID)*PageSize + off
		s.mmap[base] = 1
		copy(s.mmap[base+1:base+1+32], hash[:])
		return nil
	}

	page, err := s.cache.getOrLoad(s, pageID)
	if err != nil {
		return err
	}
	page.mu.Lock()
	page.data[off] = 1
	copy(page.data[off+1:off+1+32], hash[:])
	page.dirty = true
	page.mu.Unlock()

	return s.writePageToDisk(pageID, page)
}

// ReadLeaf returns the hash at index, or found=false if the flag byte is
// unset or the index lies beyond the file's written extent.
func (s *Store) ReadLeaf(ctx context.Context, index uint64) (hash hashing.Hash, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return hashing.Hash{}, false, err
	}

	pageID, off := entryOffset(index)

	if pageID < MmapPages {
		s.mmapMu.Lock()
		defer s.mmapMu.Unlock()
		base := int(pageID)*PageSize + off
		if base+1+32 > len(s.mmap) || s.mmap[base] != 1 {
			return hashing.Hash{}, false, nil
		}
		copy(hash[:], s.mmap[base+1:base+1+32])
		return hash, true, nil
	}

	page, err := s.cache.getOrLoad(s, pageID)
	if err != nil {
		return hashing.Hash{}, false, err
	}
	page.mu.RLock()
	defer page.mu.RUnlock()
	if off+1+32 > len(page.data) || page.data[off] != 1 {
		return hashing.Hash{}, false, nil
	}
	copy(hash[:], page.data[off+1:off+1+32])
	return hash, true, nil
}

// loadPageFromDisk reads one page's worth of bytes starting at pageID,
// zero-filling any portion past the current end of file.
func (s *Store) loadPageFromDisk(pageID uint64) ([]byte, error) {
	buf := make([]byte, PageSize)
	n, err := s.file.ReadAt(buf, int64(pageID)*PageSize)
	if err != nil && n == 0 {
		// ReadAt returns io.EOF past the end of file; treat as an all-zero page.
		return buf, nil
	}
	return buf, nil
}

func (s *Store) writePageToDisk(pageID uint64, page *cachedPage) error {
	page.mu.RLock()
	data := append([]byte(nil), page.data...)
	page.mu.RUnlock()

	if _, err := s.file.WriteAt(data, int64(pageID)*PageSize); err != nil {
		return ctserr.Wrap(ctserr.Io, "write leaf page", err)
	}
	page.mu.Lock()
	page.dirty = false
	page.mu.Unlock()
	return nil
}

// Flush msyncs the mmap region, writes back every dirty cached page, and
// fsyncs the file handle (spec §4.5 flush). ctx is checked once up front;
// once the msync/writeback/fsync sequence starts it runs to completion
// rather than leaving the page file in a partially-flushed state.
func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mmapMu.Lock()
	if err := s.mmap.Flush(); err != nil {
		s.mmapMu.Unlock()
		return ctserr.Wrap(ctserr.Io, "msync leaves.dat", err)
	}
	s.mmapMu.Unlock()

	dirty := s.cache.dirtyPages()
	for _, pid := range dirty {
		page, ok := s.cache.peek(pid)
		if !ok {
			continue
		}
		if err := s.writePageToDisk(pid, page); err != nil {
			return err
		}
	}

	if err := s.file.Sync(); err != nil {
		return ctserr.Wrap(ctserr.Io, "fsync leaves.dat", err)
	}
	glog.V(1).Infof("pagestore: flushed %d dirty page(s)", len(dirty))
	return nil
}

// Stats reports the page cache's current occupancy and hit/miss counters,
// restoring the reference implementation's CacheStats feature.
type Stats struct {
	CurrentPages int
	MaxPages     int
	Utilization  float64
	Hits         uint64
	Misses       uint64
}

func (s *Store) Stats() Stats {
	return s.cache.stats()
}
