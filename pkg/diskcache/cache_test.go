package diskcache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()

	if opts.Root == "" {
		opts.Root = t.TempDir()
	}

	cache, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return cache
}

func TestReadWriteRoundTrip(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	cases := []struct {
		key   string
		value []byte
	}{
		{"plain", []byte("value")},
		{"https://example.com/image.png?size=64", bytes.Repeat([]byte{7}, 4096)},
		{"key with spaces and / and \\", []byte{0, 1, 2}},
		{"empty", nil},
	}

	for _, tc := range cases {
		if err := cache.Write(tc.key, tc.value); err != nil {
			t.Fatalf("Write(%q) failed: %v", tc.key, err)
		}

		got, err := cache.Read(tc.key)
		if err != nil {
			t.Fatalf("Read(%q) failed: %v", tc.key, err)
		}

		if !bytes.Equal(got, tc.value) {
			t.Errorf("Read(%q) = %v, want %v", tc.key, got, tc.value)
		}
	}
}

func TestReadAbsent(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	_, err := cache.Read("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOverwriteKeepsOneEntry(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	if err := cache.Write("k", []byte("first")); err != nil {
		t.Fatal(err)
	}

	if err := cache.Write("k", []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, err := cache.Read("k")
	if err != nil {
		t.Fatal(err)
	}

	if string(got) != "second" {
		t.Errorf("expected latest value, got %q", got)
	}

	n, err := cache.Len()
	if err != nil {
		t.Fatal(err)
	}

	if n != 1 {
		t.Errorf("expected exactly 1 live entry, got %d", n)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	// Deleting an absent key reports not found and has no side effects.
	removed, err := cache.Delete("absent")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if removed {
		t.Error("expected no removal for absent key")
	}

	if err := cache.Write("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	removed, err = cache.Delete("k")
	if err != nil {
		t.Fatal(err)
	}

	if !removed {
		t.Error("expected removal of present key")
	}

	_, err = cache.Read("k")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeletePrunesEmptyBucket(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cache := newTestCache(t, Options{Root: root})

	if err := cache.Write("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	bucket := cache.bucketPath("k")

	if _, err := os.Stat(bucket); err != nil {
		t.Fatalf("bucket should exist: %v", err)
	}

	if _, err := cache.Delete("k"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(bucket); !os.IsNotExist(err) {
		t.Errorf("bucket should be pruned, stat returned %v", err)
	}
}

func TestKeySetScenario(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	if err := cache.Write("A", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	got, err := cache.Read("A")
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("Read(A) = %v", got)
	}

	if err := cache.Write("B", []byte{4, 5}); err != nil {
		t.Fatal(err)
	}

	if err := cache.Write("C", []byte{5}); err != nil {
		t.Fatal(err)
	}

	assertKeys(t, cache, []string{"A", "B", "C"})

	if _, err := cache.Delete("B"); err != nil {
		t.Fatal(err)
	}

	assertKeys(t, cache, []string{"A", "C"})
}

func assertKeys(t *testing.T, cache *Cache, want []string) {
	t.Helper()

	keys, err := cache.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}

	sort.Strings(keys)

	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("key set mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyTooLongRejected(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	key := string(bytes.Repeat([]byte("k"), maxKeyLen+1))

	err := cache.Write(key, []byte("v"))
	if !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("expected ErrKeyTooLong, got %v", err)
	}
}

func TestStartupSweepRemovesTempFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	// Simulate a crash that left an uncommitted temp file behind.
	stray := filepath.Join(root, "0193-dead-beef"+tempSuffix)
	if err := os.WriteFile(stray, []byte("partial"), filePerms); err != nil {
		t.Fatal(err)
	}

	cache := newTestCache(t, Options{Root: root})

	// First operation drives initialization, which sweeps.
	if _, err := cache.Read("anything"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Errorf("stray temp file should be swept, stat returned %v", err)
	}
}

func TestInitFailureIsSticky(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Make the root an existing regular file so MkdirAll fails.
	root := filepath.Join(dir, "root")
	if err := os.WriteFile(root, []byte("x"), filePerms); err != nil {
		t.Fatal(err)
	}

	cache := newTestCache(t, Options{Root: root})

	_, readErr := cache.Read("k")
	if readErr == nil {
		t.Fatal("expected init failure")
	}

	writeErr := cache.Write("k", []byte("v"))
	if writeErr == nil {
		t.Fatal("expected init failure")
	}

	// Every operation reports the same sticky init error.
	if readErr.Error() != writeErr.Error() {
		t.Errorf("init errors differ: %v vs %v", readErr, writeErr)
	}
}

func TestSizeBytes(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	if err := cache.Write("a", bytes.Repeat([]byte{1}, 100)); err != nil {
		t.Fatal(err)
	}

	if err := cache.Write("b", bytes.Repeat([]byte{2}, 50)); err != nil {
		t.Fatal(err)
	}

	total, err := cache.SizeBytes()
	if err != nil {
		t.Fatal(err)
	}

	// Each entry carries a header (version + key length + key bytes).
	want := int64(100 + headerLen + 1 + 50 + headerLen + 1)
	if total != want {
		t.Errorf("SizeBytes = %d, want %d", total, want)
	}
}

// countingMetrics records observations for test assertions.
type countingMetrics struct {
	mu      sync.Mutex
	hits    int
	misses  int
	evicts  int
	entries int
	bytes   int64
}

func (m *countingMetrics) Hit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) Miss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *countingMetrics) Evict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicts++
}

func (m *countingMetrics) Size(entries int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.bytes = bytes
}

func TestMetricsObservations(t *testing.T) {
	t.Parallel()

	metrics := &countingMetrics{}
	cache := newTestCache(t, Options{Metrics: metrics})

	if err := cache.Write("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Read("k"); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Read("absent"); !errors.Is(err, ErrNotFound) {
		t.Fatal(err)
	}

	if err := cache.Compact(Limits{MaxEntries: 0}); err != nil {
		t.Fatal(err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	if metrics.hits != 1 {
		t.Errorf("hits = %d, want 1", metrics.hits)
	}

	if metrics.misses != 1 {
		t.Errorf("misses = %d, want 1", metrics.misses)
	}

	if metrics.entries != 1 {
		t.Errorf("size entries = %d, want 1", metrics.entries)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, Options{})

	keys := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(2)

		go func(k string) {
			defer wg.Done()

			for range 20 {
				if err := cache.Write(k, []byte(k)); err != nil {
					t.Errorf("Write(%q): %v", k, err)

					return
				}
			}
		}(key)

		go func(k string) {
			defer wg.Done()

			for range 20 {
				value, err := cache.Read(k)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}

					t.Errorf("Read(%q): %v", k, err)

					return
				}

				if string(value) != k {
					t.Errorf("Read(%q) = %q", k, value)

					return
				}
			}
		}(key)
	}

	wg.Wait()
}
