package wal

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Writer appends length-prefixed records to a single open file. A Writer is
// scoped to one file; the manager closes it and opens a new one on rotation.
// Writers are not safe for concurrent use — the manager serializes writes.
type Writer struct {
	path   string
	file   *os.File
	offset int64
	closed bool
}

// NewWriter opens (creating if necessary) path for appending and positions
// the writer at the current end of file.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: stat %s: %w", path, err)
	}
	return &Writer{path: path, file: f, offset: info.Size()}, nil
}

// Path returns the file this writer is appending to.
func (w *Writer) Path() string { return w.path }

// Size returns the number of bytes written to the file so far, including
// bytes from before this writer was opened.
func (w *Writer) Size() int64 { return w.offset }

// Write appends one record and returns the FileSegment locating it. The
// write is not guaranteed durable until Close (or an explicit Sync) returns.
func (w *Writer) Write(payload []byte) (FileSegment, error) {
	if w.closed {
		return FileSegment{}, fmt.Errorf("wal: write to closed writer for %s", w.path)
	}
	fileOffset := w.offset

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.file.Write(header[:]); err != nil {
		w.closed = true
		return FileSegment{}, fmt.Errorf("wal: write length prefix to %s: %w", w.path, err)
	}
	if len(payload) > 0 {
		if _, err := w.file.Write(payload); err != nil {
			w.closed = true
			return FileSegment{}, fmt.Errorf("wal: write payload to %s: %w", w.path, err)
		}
	}
	w.offset = fileOffset + lengthPrefixSize + int64(len(payload))

	return FileSegment{Path: w.path, FileOffset: fileOffset, Length: int64(len(payload))}, nil
}

// Sync flushes the file to durable storage without closing it.
func (w *Writer) Sync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync %s: %w", w.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file. The writer becomes invalid
// for further writes. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("wal: sync on close %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close %s: %w", w.path, err)
	}
	return nil
}
