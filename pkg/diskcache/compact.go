package diskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// entryStat pairs an entry path with its cached stat metadata (size,
// modified time) so the eviction walk never stats a file twice.
type entryStat struct {
	path  string
	size  int64
	mtime time.Time
}

// scanConcurrency bounds how many bucket directories are listed in parallel.
const scanConcurrency = 8

// compact sweeps stray temp files and then deletes the oldest entries until
// both limits are satisfied. Emptied bucket directories are pruned.
//
// Which entries count as "oldest" follows from the timestamp policy: with
// [Options.SyncOnRead] the modified time tracks last access (LRU), otherwise
// it tracks last write (FIFO).
//
// Callers must hold writeMu.
func (c *Cache) compact(limits Limits) error {
	if err := c.sweepTemp(); err != nil {
		return err
	}

	entries, err := c.scan()
	if err != nil {
		return err
	}

	// Newest first; ties keep listing order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].mtime.After(entries[j].mtime)
	})

	var total int64

	for _, e := range entries {
		total += e.size
	}

	count := len(entries)
	evicted := 0

	for i := len(entries) - 1; i >= 0 && exceeds(limits, total, count); i-- {
		e := entries[i]

		if err := c.fs.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("evicting entry %q: %w", e.path, err)
		}

		c.pruneBucket(filepath.Dir(e.path))

		total -= e.size
		count--
		evicted++

		c.metrics.Evict()
	}

	c.metrics.Size(count, total)

	if evicted > 0 {
		c.log.WithFields(logrus.Fields{
			"evicted":   evicted,
			"remaining": count,
			"bytes":     total,
		}).Debug("compaction evicted entries")
	}

	return nil
}

// exceeds reports whether the cache is still over either configured bound.
func exceeds(l Limits, total int64, count int) bool {
	return (l.MaxBytes > 0 && total > l.MaxBytes) ||
		(l.MaxEntries > 0 && count > l.MaxEntries)
}

// sweepTemp removes *.dirt files orphaned at the cache root by interrupted
// writes.
func (c *Cache) sweepTemp() error {
	entries, err := c.fs.ReadDir(c.opts.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("listing cache root %q: %w", c.opts.Root, err)
	}

	swept := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}

		c.discardTemp(filepath.Join(c.opts.Root, entry.Name()))
		swept++
	}

	if swept > 0 {
		c.log.WithField("swept", swept).Debug("removed orphaned temp files")
	}

	return nil
}

// scan enumerates every entry file under the version root, pairing each with
// its stat. Buckets are listed concurrently; within a bucket the directory
// listing order is preserved so eviction tie-breaking stays stable.
//
// Stray temp files encountered inside buckets are discarded on the way.
func (c *Cache) scan() ([]entryStat, error) {
	buckets, err := c.fs.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing cache root %q: %w", c.root, err)
	}

	perBucket := make([][]entryStat, len(buckets))

	var group errgroup.Group

	group.SetLimit(scanConcurrency)

	for i, bucket := range buckets {
		if !bucket.IsDir() {
			continue
		}

		group.Go(func() error {
			stats, err := c.scanBucket(filepath.Join(c.root, bucket.Name()))
			if err != nil {
				return err
			}

			perBucket[i] = stats

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	var all []entryStat

	for _, stats := range perBucket {
		all = append(all, stats...)
	}

	return all, nil
}

// scanBucket stats all entry files in one bucket directory.
func (c *Cache) scanBucket(dir string) ([]entryStat, error) {
	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing bucket %q: %w", dir, err)
	}

	var stats []entryStat

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, name)

		if strings.HasSuffix(name, tempSuffix) {
			c.discardTemp(path)

			continue
		}

		if !strings.HasSuffix(name, entrySuffix) {
			continue
		}

		info, err := c.fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				// Raced a delete.
				continue
			}

			return nil, fmt.Errorf("stat entry %q: %w", path, err)
		}

		stats = append(stats, entryStat{path: path, size: info.Size(), mtime: info.ModTime()})
	}

	return stats, nil
}
