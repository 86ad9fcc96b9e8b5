package storage

import "time"

// Config carries the facade's operational knobs. Only DataDir,
// CacheSizeBytes, and WALEnabled affect correctness (spec §6.5); SyncInterval
// and CompressionEnabled are policy hints for a background flusher and an
// optional wrapper codec, respectively, and do not change the on-disk layout.
type Config struct {
	DataDir            string
	CacheSizeBytes     int
	SyncInterval       time.Duration
	CompressionEnabled bool
	WALEnabled         bool
}

// NewConfig returns the default configuration for dataDir, matching
// original_source's StorageConfig::new defaults.
func NewConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		CacheSizeBytes:     1024 * 1024,
		SyncInterval:       5 * time.Second,
		CompressionEnabled: true,
		WALEnabled:         true,
	}
}

// FastConfig favors throughput over durability: a larger cache, a longer
// sync interval, and no write-ahead log. Restored from
// original_source/src/storage/config.rs's StorageConfig::fast.
func FastConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		CacheSizeBytes:     4 * 1024 * 1024,
		SyncInterval:       10 * time.Second,
		CompressionEnabled: false,
		WALEnabled:         false,
	}
}

// ReliableConfig favors crash-safety over throughput: a small cache, a
// short sync interval, and the WAL enabled. Restored from
// original_source/src/storage/config.rs's StorageConfig::reliable.
func ReliableConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		CacheSizeBytes:     1024 * 1024,
		SyncInterval:       1 * time.Second,
		CompressionEnabled: true,
		WALEnabled:         true,
	}
}

// cachePages converts the configured byte budget into a page count for the
// pagestore's LRU cache.
func (c Config) cachePages() int {
	const pageSize = 4096
	pages := c.CacheSizeBytes / pageSize
	if pages <= 0 {
		pages = 1
	}
	return pages
}
