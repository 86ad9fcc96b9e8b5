// Package storage wires the commitment codec, the incremental Merkle tree
// (IMT) engine, and the three on-disk stores (page store, write-ahead log,
// metadata store) behind a single operational contract: TreeStorage. This
// is the facade spec.md calls C9.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/commitlog/ctstore/commitment"
	ctserr "github.com/commitlog/ctstore/errors"
	"github.com/commitlog/ctstore/hashing"
	"github.com/commitlog/ctstore/merkle"
	"github.com/commitlog/ctstore/storage/metastore"
	"github.com/commitlog/ctstore/storage/pagestore"
	"github.com/commitlog/ctstore/storage/walog"
)

const (
	leavesFileName   = "leaves.dat"
	metadataFileName = "metadata.dat"
	walFileName      = "wal.log"
)

// metrics is a package-level registry of the facade's own operational
// instrumentation, grounded on the teacher's require on
// github.com/prometheus/client_golang. Registered lazily so opening more
// than one store in the same process (as the test suite does) does not
// attempt a duplicate registration.
type metrics struct {
	inserts      prometheus.Counter
	cacheHitRate prometheus.Gauge
	walFrames    prometheus.Counter
	lastSync     prometheus.Gauge
}

var (
	metricsOnce   sync.Once
	sharedMetrics metrics
)

func newMetrics() metrics {
	metricsOnce.Do(func() {
		sharedMetrics = metrics{
			inserts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ctstore_inserts_total",
				Help: "Total number of successful InsertCommitment calls.",
			}),
			cacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ctstore_page_cache_hit_ratio",
				Help: "Most recently observed page cache hit ratio.",
			}),
			walFrames: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ctstore_wal_frames_total",
				Help: "Total number of WAL frames appended.",
			}),
			lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ctstore_last_sync_epoch_seconds",
				Help: "Unix timestamp of the last successful Save.",
			}),
		}
		prometheus.MustRegister(
			sharedMetrics.inserts,
			sharedMetrics.cacheHitRate,
			sharedMetrics.walFrames,
			sharedMetrics.lastSync,
		)
	})
	return sharedMetrics
}

// nowFunc is swappable in tests; production callers get wall-clock time.
var nowFunc = time.Now

// TreeStorage is the IMT-backed facade: an append-only commitment log with
// inclusion proofs, persisted across leaves.dat, wal.log, and metadata.dat.
type TreeStorage struct {
	mu sync.Mutex // the facade's single writer lock (spec §5)

	cfg     Config
	tree    *merkle.Tree
	pages   *pagestore.Store
	wal     *walog.Log
	meta    *metastore.Store
	metrics metrics
}

// Open opens (or creates) a TreeStorage rooted at cfg.DataDir with the
// given IMT depth, replaying the WAL and loading metadata per the startup
// recovery sequence in spec §4.8. ctx bounds the directory creation and
// recovery I/O below it.
func Open(ctx context.Context, cfg Config, depth int) (*TreeStorage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ensureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}

	pages, err := pagestore.Open(filepath.Join(cfg.DataDir, leavesFileName), cfg.cachePages())
	if err != nil {
		return nil, err
	}
	meta, err := metastore.Open(filepath.Join(cfg.DataDir, metadataFileName))
	if err != nil {
		pages.Close()
		return nil, err
	}

	var wal *walog.Log
	if cfg.WALEnabled {
		wal, err = walog.Open(filepath.Join(cfg.DataDir, walFileName))
		if err != nil {
			pages.Close()
			meta.Close()
			return nil, err
		}
	}

	tree, err := merkle.New(depth)
	if err != nil {
		pages.Close()
		meta.Close()
		if wal != nil {
			wal.Close()
		}
		return nil, err
	}

	s := &TreeStorage{
		cfg:     cfg,
		tree:    tree,
		pages:   pages,
		wal:     wal,
		meta:    meta,
		metrics: newMetrics(),
	}

	if err := s.recover(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// recover loads the persisted leaves, then replays any WAL tail written
// since the last successful save (spec §4.8's "WAL + page, no metadata"
// and "WAL only" partial-completion cases).
func (s *TreeStorage) recover(ctx context.Context) error {
	rec, ok, err := s.meta.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		if rec.Version != uint32(metastore.HashSHA256) {
			return ctserr.New(ctserr.InvalidData, "metadata was written by a different hash engine")
		}
		leaves := make([]hashing.Hash, 0, rec.LeafCount)
		for i := uint64(0); i < rec.LeafCount; i++ {
			h, found, err := s.pages.ReadLeaf(ctx, i)
			if err != nil {
				return err
			}
			if !found {
				break
			}
			leaves = append(leaves, h)
		}
		s.tree.LoadLeaves(leaves)
	}

	if s.wal == nil {
		return nil
	}
	replayed := 0
	if err := s.wal.Replay(ctx, func(e walog.Entry) error {
		if e.Index < s.tree.Len() {
			return nil
		}
		if _, err := s.tree.AppendHash(e.Hash); err != nil {
			return err
		}
		if err := s.pages.WriteLeaf(ctx, e.Index, e.Hash); err != nil {
			return err
		}
		replayed++
		return nil
	}); err != nil {
		return err
	}
	if replayed > 0 {
		glog.Warningf("storage: replayed %d WAL frame(s) on open", replayed)
		if err := s.Save(ctx); err != nil {
			return err
		}
	}
	return nil
}

func ensureDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ctserr.Wrap(ctserr.Io, "create data directory", err)
	}
	return nil
}

// InsertCommitment encodes c and appends it to the tree, writing the WAL
// frame before the page mutation per the commit-order invariant (spec
// §4.8). State transitions Empty/NonEmpty -> NonEmpty/Full implicitly via
// TreeFull once the tree is at capacity.
func (s *TreeStorage) InsertCommitment(ctx context.Context, c commitment.Commitment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := commitment.Encode(c)
	h := hashing.SHA256Hasher{}.HashBytes(encoded)
	index := s.tree.Len()

	if s.wal != nil {
		entry := walog.Entry{TimestampMillis: uint64(nowFunc().UnixMilli()), Index: index, Hash: h}
		if err := s.wal.WriteEntry(ctx, entry); err != nil {
			return err
		}
		s.metrics.walFrames.Inc()
	}

	if _, err := s.tree.AppendHash(h); err != nil {
		return err
	}
	if err := s.pages.WriteLeaf(ctx, index, h); err != nil {
		return err
	}

	s.metrics.inserts.Inc()
	return nil
}

// Root returns the tree's current root hash.
func (s *TreeStorage) Root() hashing.Hash {
	return s.tree.Root()
}

// Len returns the number of commitments currently appended.
func (s *TreeStorage) Len() uint64 {
	return s.tree.Len()
}

// Prove returns an inclusion proof for the leaf at index.
func (s *TreeStorage) Prove(index uint64) (merkle.Proof, error) {
	return s.tree.Prove(index)
}

// Save flushes the page store, writes a fresh metadata record, and (if the
// WAL is enabled) truncates it, in that order, per the commit order
// invariant: data must be durable before the WAL that protects it is
// discarded.
func (s *TreeStorage) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pages.Flush(ctx); err != nil {
		return err
	}

	now := nowFunc()
	rec := metastore.Record{
		Version:           uint32(metastore.HashSHA256),
		Depth:             uint64(s.tree.Depth()),
		LeafCount:         s.tree.Len(),
		Root:              s.tree.Root(),
		LastSyncEpochSecs: uint64(now.Unix()),
	}
	if err := s.meta.Save(ctx, rec); err != nil {
		return err
	}
	s.metrics.lastSync.Set(float64(now.Unix()))

	if s.wal != nil {
		if err := s.wal.Truncate(ctx); err != nil {
			return err
		}
	}
	glog.V(1).Infof("storage: saved at len=%d", rec.LeafCount)
	return nil
}

// Stats reports the facade's {root, len, tree_type} contract (spec §4.8)
// plus the underlying page cache's occupancy, feeding the facade's
// cache-hit-ratio gauge.
type Stats struct {
	Root     hashing.Hash
	Len      uint64
	TreeType string
	Pages    pagestore.Stats
}

func (s *TreeStorage) Stats() Stats {
	pageStats := s.pages.Stats()
	if pageStats.Hits+pageStats.Misses > 0 {
		ratio := float64(pageStats.Hits) / float64(pageStats.Hits+pageStats.Misses)
		s.metrics.cacheHitRate.Set(ratio)
	}
	return Stats{
		Root:     s.tree.Root(),
		Len:      s.tree.Len(),
		TreeType: "imt",
		Pages:    pageStats,
	}
}

// Close releases the facade's underlying file handles without saving.
// Callers that want a durable close should call Save first.
func (s *TreeStorage) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if s.pages != nil {
		record(s.pages.Close())
	}
	if s.meta != nil {
		record(s.meta.Close())
	}
	if s.wal != nil {
		record(s.wal.Close())
	}
	return first
}
