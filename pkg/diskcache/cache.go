package diskcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fsblob/fsblob/pkg/fs"
)

// layoutVersion is the directory segment namespacing the on-disk layout.
// A future incompatible layout can coexist under a different segment.
const layoutVersion = "v1"

// Cache is a filesystem-backed key/value store for binary blobs.
//
// There is no central index: every entry is an independent file under
// root/v1/<hash(key)>/, carrying its own key in a record header, so partial
// data loss degrades gracefully instead of corrupting shared state.
//
// All methods are safe for concurrent use by multiple goroutines within one
// process. There is no cross-process locking; two processes targeting the
// same directory can race.
//
// A Cache must be obtained via [New]; the zero value is not usable.
type Cache struct {
	opts    Options
	root    string // opts.Root/v1
	fs      fs.FS
	log     *logrus.Logger
	metrics Metrics
	clock   Clock
	hash    HashFunc

	// initOnce drives the one-time Uninitialized -> Initializing -> Ready
	// transition: directory creation plus the startup sweep. Concurrent
	// callers block on the Once until Ready; an init failure is sticky and
	// returned by every subsequent operation.
	initOnce sync.Once
	initErr  error

	// writeMu serializes mutations (write, delete, compact). Reads are
	// lock-free: file rename and delete are individually atomic, so a read
	// racing a mutation sees either the old state or the new one.
	writeMu sync.Mutex
}

// New creates a cache rooted at opts.Root.
//
// No filesystem activity happens here; the first operation creates the
// directory tree and sweeps temp files orphaned by earlier crashes.
func New(opts Options) (*Cache, error) {
	if opts.Root == "" {
		return nil, errors.New("diskcache: Options.Root must not be empty")
	}

	opts = opts.withDefaults()

	return &Cache{
		opts:    opts,
		root:    filepath.Join(opts.Root, layoutVersion),
		fs:      opts.FS,
		log:     opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		hash:    opts.Hash,
	}, nil
}

// ready blocks until initialization has run and returns its result.
func (c *Cache) ready() error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize()
	})

	return c.initErr
}

func (c *Cache) initialize() error {
	if err := c.fs.MkdirAll(c.root, dirPerms); err != nil {
		return fmt.Errorf("creating cache root %q: %w", c.root, err)
	}

	// Unlimited bounds: the startup pass only reclaims stray temp files.
	return c.compact(Limits{})
}

// Read returns the value stored under key.
//
// Returns [ErrNotFound] when no entry exists. With [Options.SyncOnRead] a
// hit refreshes the entry's modified time, making compaction evict LRU.
func (c *Cache) Read(key string) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	path, err := c.locate(key)
	if err != nil {
		return nil, err
	}

	if path == "" {
		c.metrics.Miss()

		return nil, ErrNotFound
	}

	data, err := c.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced a delete; report the delete's visible effect.
			c.metrics.Miss()

			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading entry %q: %w", path, err)
	}

	value, ok, err := decodeRecord(data, key)
	if err != nil {
		// The file matched during locate but is corrupt now; treat the
		// candidate as non-matching rather than failing the lookup.
		c.log.WithError(err).WithField("path", path).Warn("skipping corrupt entry")
		c.metrics.Miss()

		return nil, ErrNotFound
	}

	if !ok {
		// The file was replaced by a colliding key between locate and read.
		c.metrics.Miss()

		return nil, ErrNotFound
	}

	c.metrics.Hit()

	if c.opts.SyncOnRead {
		now := c.clock.Now()
		if err := c.fs.Chtimes(path, now, now); err != nil && !os.IsNotExist(err) {
			// The value was read fine; a failed recency refresh only skews
			// eviction order.
			c.log.WithError(err).WithField("path", path).Warn("could not refresh entry timestamp")
		}
	}

	return value, nil
}

// Write stores value under key, replacing any previous value atomically.
func (c *Cache) Write(key string, value []byte) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.write(key, value)
}

// Delete removes the entry for key. Reports whether an entry was removed;
// deleting an absent key is not an error.
func (c *Cache) Delete(key string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.deleteEntry(key)
}

// Compact sweeps orphaned temp files and evicts the oldest entries until
// the given limits are satisfied.
func (c *Cache) Compact(limits Limits) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.compact(limits)
}

// CompactDefault runs [Cache.Compact] with the limits configured at
// construction.
func (c *Cache) CompactDefault() error {
	return c.Compact(c.opts.Limits)
}

// Keys returns the key of every live entry, in no particular order.
// Corrupt entries are skipped.
func (c *Cache) Keys() ([]string, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	entries, err := c.scan()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))

	for _, entry := range entries {
		key, err := c.readKeyAt(entry.path)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				c.log.WithError(err).WithField("path", entry.path).Warn("skipping corrupt entry")

				continue
			}

			if os.IsNotExist(err) {
				continue
			}

			return nil, err
		}

		keys = append(keys, key)
	}

	return keys, nil
}

// Len returns the number of live entries.
func (c *Cache) Len() (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}

	entries, err := c.scan()
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

// SizeBytes returns the total size of all live entry files.
func (c *Cache) SizeBytes() (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}

	entries, err := c.scan()
	if err != nil {
		return 0, err
	}

	var total int64

	for _, entry := range entries {
		total += entry.size
	}

	return total, nil
}
