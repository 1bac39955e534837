// Package wal implements the write-ahead log used to make received-block
// metadata durable across driver restarts. A WAL directory is a sequence of
// immutable, length-prefixed files; see Manager for the read/write/cleanup
// surface used by the rest of the core.
package wal

import "fmt"

// FileSegment locates one WAL record: the file it lives in, the byte offset
// of its length prefix (the position in the file before the record was
// written), and the payload length in bytes (excluding the length prefix
// itself).
type FileSegment struct {
	Path       string
	FileOffset int64
	Length     int64
}

func (s FileSegment) String() string {
	return fmt.Sprintf("FileSegment(%s, offset=%d, length=%d)", s.Path, s.FileOffset, s.Length)
}

// lengthPrefixSize is the width, in bytes, of the int32 record length
// prefix written before every payload.
const lengthPrefixSize = 4
