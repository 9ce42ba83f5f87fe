// Package diskcache provides a filesystem-backed key/value store for
// binary blobs.
//
// Keys are arbitrary strings (including characters illegal in file paths);
// values are byte sequences. Each entry lives in its own file under a
// hash-bucketed directory tree, with the original key embedded in a record
// header. There is no central index to corrupt: the hash is a weak index,
// the embedded key the strong verification.
//
// # Basic Usage
//
//	cache, err := diskcache.New(diskcache.Options{
//	    Root:   "/var/cache/thumbnails",
//	    Limits: diskcache.Limits{MaxBytes: 256 << 20},
//	})
//	if err != nil {
//	    return err
//	}
//
//	err = cache.Write("https://example.com/a.png", data)
//
//	blob, err := cache.Read("https://example.com/a.png")
//	if errors.Is(err, diskcache.ErrNotFound) {
//	    // miss - fetch from the source of truth
//	}
//
//	err = cache.Compact(diskcache.Limits{MaxEntries: 1000})
//
// # Crash Safety
//
// Writes encode into a *.dirt temp file and publish with a single rename,
// so readers never observe a half-written record. A crash before the rename
// leaves the previous value intact; the orphaned temp file is reclaimed by
// the next compaction (one runs automatically at first use).
//
// # Eviction
//
// [Cache.Compact] removes the oldest entries until the size and count
// bounds hold. By default "oldest" means least recently written (FIFO);
// with [Options.SyncOnRead] every hit refreshes the entry timestamp and
// eviction becomes LRU, at the cost of a metadata write per read.
//
// # Concurrency
//
// A single Cache is safe for concurrent use within one process. There is
// no cross-process coordination; point independent processes at separate
// roots.
package diskcache
