package diskcache

import (
	"crypto/md5" //nolint:gosec // bucket distribution, not security
	"encoding/hex"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fsblob/fsblob/pkg/fs"
)

// HashFunc maps a key to its bucket directory name.
//
// The result must be a valid single path segment and stable across runs.
// Distinct keys may map to the same bucket; every read re-verifies the key
// embedded in the record, so collisions are safe (and tests exploit this
// with a constant HashFunc to force them).
type HashFunc func(key string) string

// Clock provides the current time; useful for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Limits bounds the cache during compaction.
//
// Zero or negative fields mean unlimited.
type Limits struct {
	// MaxBytes caps the sum of entry file sizes.
	MaxBytes int64

	// MaxEntries caps the number of entries.
	MaxEntries int
}

// Options configures a [Cache]. Only Root is required; sane defaults are
// applied in [New]:
//   - nil Hash    => hex-encoded MD5
//   - nil FS      => fs.NewReal()
//   - nil Logger  => discard
//   - nil Metrics => NoopMetrics
//   - nil Clock   => time.Now
type Options struct {
	// Root is the directory holding the cache. Created on first use.
	Root string

	// Hash maps keys to bucket directory names.
	Hash HashFunc

	// SyncOnRead refreshes an entry's modified time on every successful
	// read, which turns compaction into LRU eviction. When false (the
	// default) timestamps change only on write and compaction evicts FIFO.
	//
	// The default is deliberate: refreshing on every read turns each cache
	// hit into a metadata write.
	SyncOnRead bool

	// Limits are the default bounds applied by [Cache.CompactDefault].
	Limits Limits

	// FS is the filesystem the cache operates on.
	FS fs.FS

	// Logger receives corrupt-record skips and compaction summaries.
	Logger *logrus.Logger

	// Metrics receives hit/miss/eviction observations.
	Metrics Metrics

	// Clock overrides the time source (tests).
	Clock Clock
}

// systemClock is the default [Clock] backed by [time.Now].
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// defaultHash is the default bucket function: hex-encoded MD5 of the key.
// Chosen for even distribution and fixed-length output, not for security.
func defaultHash(key string) string {
	sum := md5.Sum([]byte(key)) //nolint:gosec // not used for security

	return hex.EncodeToString(sum[:])
}

// withDefaults returns a copy of o with nil fields replaced by defaults.
func (o Options) withDefaults() Options {
	if o.Hash == nil {
		o.Hash = defaultHash
	}

	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetOutput(io.Discard)
	}

	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}

	if o.Clock == nil {
		o.Clock = systemClock{}
	}

	return o
}
