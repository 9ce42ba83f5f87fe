package diskcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// bucketPath returns the directory holding all entries whose key hashes to
// the same value as key: root/v1/<hash(key)>.
func (c *Cache) bucketPath(key string) string {
	return filepath.Join(c.root, c.hash(key))
}

// locate scans the bucket for key and returns the path of the entry whose
// embedded key matches exactly, or "" when absent.
//
// Candidates are checked in directory-listing order. The expected cost is
// O(1) for a well-distributed hash; colliding keys add one header read each.
// A corrupt candidate is skipped so it cannot block lookups for other keys
// in the same bucket.
func (c *Cache) locate(key string) (string, error) {
	dir := c.bucketPath(key)

	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", fmt.Errorf("listing bucket %q: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}

		path := filepath.Join(dir, name)

		got, err := c.readKeyAt(path)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				c.log.WithError(err).WithField("path", path).Warn("skipping corrupt entry")

				continue
			}

			if os.IsNotExist(err) {
				// Raced a delete; the candidate is simply gone.
				continue
			}

			return "", err
		}

		if got == key {
			return path, nil
		}
	}

	return "", nil
}

// readKeyAt reads just the record header of the file at path and returns
// the embedded key.
func (c *Cache) readKeyAt(path string) (string, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}

		return "", fmt.Errorf("opening entry %q: %w", path, err)
	}

	defer func() { _ = f.Close() }()

	return readRecordKey(f)
}
