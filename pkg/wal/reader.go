package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader is a forward iterator over the records of a single WAL file.
//
// Next buffers the next payload; a clean EOF (no more complete records) or
// an in-progress record whose length prefix or payload bytes were never
// fully flushed both end iteration without error, matching real
// append-only file system semantics where the tail of a file may not have
// been fsynced by a crashed writer. Any other I/O error surfaces via Err
// and also ends iteration.
type Reader struct {
	path    string
	file    *os.File
	current []byte
	err     error
	done    bool
}

// NewReader opens path for sequential record iteration.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &Reader{path: path, file: f}, nil
}

// Next advances to the next record, returning false when iteration has
// ended (clean EOF, truncated tail record, or a prior error). The file is
// closed automatically once iteration ends.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}

	var header [lengthPrefixSize]byte
	n, err := io.ReadFull(r.file, header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			r.finish(nil)
			return false
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Partial length prefix: the writer crashed mid-record.
			r.finish(nil)
			return false
		}
		r.finish(fmt.Errorf("wal: read length prefix from %s: %w", r.path, err))
		return false
	}

	length := binary.BigEndian.Uint32(header[:])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.file, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Declared length overruns what was actually flushed: treat
				// the truncated tail as clean EOF, per WAL corruption policy.
				r.finish(nil)
				return false
			}
			r.finish(fmt.Errorf("wal: read payload from %s: %w", r.path, err))
			return false
		}
	}

	r.current = payload
	return true
}

// Record returns the payload most recently made available by Next.
func (r *Reader) Record() []byte { return r.current }

// Err returns the first non-EOF error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Close closes the underlying file. Safe to call after iteration has ended
// (Next already closed it); idempotent.
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.file.Close()
}

func (r *Reader) finish(err error) {
	r.err = err
	r.done = true
	r.file.Close()
}

// RandomReader fetches individual records by FileSegment without a forward
// scan, used to rehydrate a specific block referenced from a
// ReceivedBlockInfo.
type RandomReader struct {
	path string
	file *os.File
}

// NewRandomReader opens path for random-access record reads.
func NewRandomReader(path string) (*RandomReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &RandomReader{path: path, file: f}, nil
}

// Read seeks to seg.FileOffset, validates the on-disk length prefix matches
// seg.Length, and returns exactly seg.Length bytes of payload.
func (r *RandomReader) Read(seg FileSegment) ([]byte, error) {
	if seg.Path != r.path {
		return nil, fmt.Errorf("wal: segment path %s does not match reader path %s", seg.Path, r.path)
	}
	if _, err := r.file.Seek(seg.FileOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wal: seek %s to %d: %w", r.path, seg.FileOffset, err)
	}

	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r.file, header[:]); err != nil {
		return nil, fmt.Errorf("wal: read length prefix at %d in %s: %w", seg.FileOffset, r.path, err)
	}
	length := int64(binary.BigEndian.Uint32(header[:]))
	if length != seg.Length {
		return nil, fmt.Errorf("wal: length prefix mismatch at %d in %s: on-disk=%d expected=%d", seg.FileOffset, r.path, length, seg.Length)
	}

	payload := make([]byte, seg.Length)
	if seg.Length > 0 {
		if _, err := io.ReadFull(r.file, payload); err != nil {
			return nil, fmt.Errorf("wal: read %d payload bytes at %d in %s: %w", seg.Length, seg.FileOffset, r.path, err)
		}
	}
	return payload, nil
}

// Close closes the underlying file.
func (r *RandomReader) Close() error {
	return r.file.Close()
}
