package diskcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Record format constants.
//
// Every entry file starts with a self-describing header so the original key
// can be re-verified without trusting the filename:
//
//	byte 0     format version (currently 1)
//	bytes 1..2 key length, big-endian uint16 (count of UTF-8 bytes)
//	bytes 3..  key bytes, then the raw value to end of file
const (
	formatVersion = 1
	headerLen     = 3
	maxKeyLen     = 1<<16 - 1
)

// Entry and temp file suffixes. A *.dat file always holds a well-formed
// record; a *.dirt file is a write in progress and never valid data.
const (
	entrySuffix = ".dat"
	tempSuffix  = ".dirt"
)

// encodeHeader returns the record header for key.
// Returns [ErrKeyTooLong] if the key does not fit the 16-bit length field.
func encodeHeader(key string) ([]byte, error) {
	if len(key) > maxKeyLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}

	header := make([]byte, headerLen, headerLen+len(key))
	header[0] = formatVersion
	binary.BigEndian.PutUint16(header[1:3], uint16(len(key)))

	return append(header, key...), nil
}

// writeRecord writes the full record for (key, value) to w.
func writeRecord(w io.Writer, key string, value []byte) error {
	header, err := encodeHeader(key)
	if err != nil {
		return err
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}

	if _, err := w.Write(value); err != nil {
		return fmt.Errorf("writing record value: %w", err)
	}

	return nil
}

// readRecordKey incrementally reads a record header from r and returns the
// embedded key. It never reads the value, so scanning a bucket for a key
// match does not load unrelated (potentially large) blobs into memory.
//
// Returns [ErrCorrupt] if the version byte is unknown or the declared key
// length exceeds the remaining stream length.
func readRecordKey(r io.Reader) (string, error) {
	var header [headerLen]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: truncated header", ErrCorrupt)
		}

		return "", fmt.Errorf("reading record header: %w", err)
	}

	if header[0] != formatVersion {
		return "", fmt.Errorf("%w: unknown version %d", ErrCorrupt, header[0])
	}

	keyLen := binary.BigEndian.Uint16(header[1:3])

	keyBytes := make([]byte, keyLen)

	if _, err := io.ReadFull(r, keyBytes); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: truncated key", ErrCorrupt)
		}

		return "", fmt.Errorf("reading record key: %w", err)
	}

	return string(keyBytes), nil
}

// decodeRecord parses a full record and returns the value if the embedded
// key equals key. Returns (nil, false, nil) on a key mismatch and
// [ErrCorrupt] on a malformed header.
func decodeRecord(data []byte, key string) ([]byte, bool, error) {
	if len(data) < headerLen {
		return nil, false, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}

	if data[0] != formatVersion {
		return nil, false, fmt.Errorf("%w: unknown version %d", ErrCorrupt, data[0])
	}

	keyLen := int(binary.BigEndian.Uint16(data[1:3]))
	if keyLen > len(data)-headerLen {
		return nil, false, fmt.Errorf("%w: truncated key", ErrCorrupt)
	}

	if string(data[headerLen:headerLen+keyLen]) != key {
		return nil, false, nil
	}

	return data[headerLen+keyLen:], true, nil
}
