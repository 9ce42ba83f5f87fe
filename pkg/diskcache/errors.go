package diskcache

import "errors"

// Sentinel errors returned by diskcache operations.
//
// Callers should use [errors.Is] to check error types:
//
//	v, err := cache.Read(key)
//	if errors.Is(err, diskcache.ErrNotFound) {
//	    // miss - fetch from the source of truth
//	}
var (
	// ErrNotFound indicates no entry exists for the key.
	//
	// This is the normal cache-miss result, not a failure.
	ErrNotFound = errors.New("diskcache: not found")

	// ErrCorrupt indicates an entry file with an unreadable header
	// (unknown format version or truncated key data).
	//
	// During lookups a corrupt candidate is skipped and never blocks other
	// keys; ErrCorrupt only surfaces from decoding a record directly.
	ErrCorrupt = errors.New("diskcache: corrupt record")

	// ErrKeyTooLong indicates the key's UTF-8 encoding exceeds the 16-bit
	// length field of the record header (65535 bytes).
	//
	// This is a programming error.
	ErrKeyTooLong = errors.New("diskcache: key too long")
)
