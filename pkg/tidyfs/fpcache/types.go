package fpcache

import (
	"bytes"
	"encoding/gob"
)

// Version is incremented when the cache format changes.
const Version = 1

// Entry records what was known about a file when its content was
// fingerprinted. An entry is only trusted while the file's size and
// mtime still match what was recorded.
type Entry struct {
	Size        int64
	Mtime       int64 // UnixNano
	Fingerprint string
}

// Encode serializes the entry to bytes using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes into the entry using gob.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}
