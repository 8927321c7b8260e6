package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FormatVersion is the current entry encoding version. It is the first
// byte of every encoded entry; the remainder is the version-specific
// payload (JSON for version 1).
const FormatVersion byte = 0x01

var (
	// ErrUnsupportedVersion indicates an encoded entry written by an
	// incompatible format version. Callers treat it as a cache miss and
	// overwrite the slot on the next store.
	ErrUnsupportedVersion = errors.New("unsupported cache entry format version")

	// ErrCorruptEntry indicates stored bytes that cannot be decoded at
	// all. Also treated as a miss, never as a fatal error.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)

// Encode serializes the entry to its versioned binary form.
func (e *Entry) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, FormatVersion)
	out = append(out, payload...)
	return out, nil
}

// Decode deserializes an encoded entry, verifying the format version.
func Decode(data []byte) (*Entry, error) {
	if len(data) < 2 {
		return nil, ErrCorruptEntry
	}
	if data[0] != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}
	var entry Entry
	if err := json.Unmarshal(data[1:], &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return &entry, nil
}
