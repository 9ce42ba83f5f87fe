package diskcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

// Filesystem permissions.
const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// write stores value under key with a single atomic publish point.
//
// The record is encoded into a uniquely named *.dirt temp file at the cache
// root and renamed onto the final path. An external reader observes either
// the previous value or the new one, never a mixture, because every step
// before the rename touches only the temp file.
//
// Callers must hold writeMu.
func (c *Cache) write(key string, value []byte) error {
	existing, err := c.locate(key)
	if err != nil {
		return err
	}

	dir := c.bucketPath(key)

	// Reuse the existing path so a key never has two live entry files.
	target := existing
	if target == "" {
		target, err = c.nextEntryPath(dir)
		if err != nil {
			return err
		}
	}

	tmp := filepath.Join(c.opts.Root, uuid.NewString()+tempSuffix)

	if err := c.writeTemp(tmp, key, value); err != nil {
		return err
	}

	// Another actor creating the bucket first is not an error; MkdirAll
	// already treats an existing directory as success.
	if err := c.fs.MkdirAll(dir, dirPerms); err != nil {
		c.discardTemp(tmp)

		return fmt.Errorf("creating bucket %q: %w", dir, err)
	}

	// The rename replaces the destination atomically, so overwriting an
	// existing entry needs no separate remove step; a reader sees the old
	// record or the new one, never a gap.
	if err := c.fs.Rename(tmp, target); err != nil {
		c.discardTemp(tmp)

		return fmt.Errorf("publishing entry %q: %w", target, err)
	}

	return nil
}

// writeTemp encodes the record into a fresh temp file and syncs it, so the
// subsequent rename publishes fully written data. On any failure the temp
// file is removed best-effort and no partial data persists.
func (c *Cache) writeTemp(path, key string, value []byte) error {
	f, err := c.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerms)
	if err != nil {
		return fmt.Errorf("creating temp file %q: %w", path, err)
	}

	if err := writeRecord(f, key, value); err != nil {
		_ = f.Close()
		c.discardTemp(path)

		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		c.discardTemp(path)

		return fmt.Errorf("syncing temp file %q: %w", path, err)
	}

	if err := f.Close(); err != nil {
		c.discardTemp(path)

		return fmt.Errorf("closing temp file %q: %w", path, err)
	}

	return nil
}

// discardTemp removes a temp file best-effort. A leaked temp file is not
// fatal; the next compaction sweep reclaims it.
func (c *Cache) discardTemp(path string) {
	if err := c.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		c.log.WithError(err).WithField("path", path).Warn("could not remove temp file")
	}
}

// nextEntryPath allocates the next free integer filename in dir.
//
// Entry filenames are opaque disambiguators; only the record header carries
// the key. Listing the directory and taking max+1 is race-free within one
// process because callers hold writeMu.
func (c *Cache) nextEntryPath(dir string) (string, error) {
	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Join(dir, "0"+entrySuffix), nil
		}

		return "", fmt.Errorf("listing bucket %q: %w", dir, err)
	}

	next := 0

	for _, entry := range entries {
		name, found := strings.CutSuffix(entry.Name(), entrySuffix)
		if !found {
			continue
		}

		n, err := strconv.Atoi(name)
		if err != nil {
			continue
		}

		if n >= next {
			next = n + 1
		}
	}

	return filepath.Join(dir, strconv.Itoa(next)+entrySuffix), nil
}

// deleteEntry removes the entry for key and prunes its bucket directory if
// that leaves it empty. Reports whether an entry was actually removed.
//
// Callers must hold writeMu.
func (c *Cache) deleteEntry(key string) (bool, error) {
	path, err := c.locate(key)
	if err != nil {
		return false, err
	}

	if path == "" {
		return false, nil
	}

	if err := c.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			// Raced another delete; report the same visible effect.
			return false, nil
		}

		return false, fmt.Errorf("removing entry %q: %w", path, err)
	}

	c.pruneBucket(filepath.Dir(path))

	return true, nil
}

// pruneBucket removes dir if it is empty. A concurrent writer repopulating
// the bucket makes the removal fail with ENOTEMPTY; that race is expected
// and swallowed, not surfaced.
func (c *Cache) pruneBucket(dir string) {
	err := c.fs.Remove(dir)
	if err == nil || os.IsNotExist(err) ||
		errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
		return
	}

	c.log.WithError(err).WithField("bucket", dir).Warn("could not prune bucket directory")
}
