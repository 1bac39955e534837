// Copyright 2026 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxFileSizeBytes = 64 * 1024 * 1024
	defaultRolloverInterval = 60 * time.Second
	filePrefix              = "log-"
)

// Archiver additionally persists a closed WAL segment file somewhere
// durable beyond local disk (e.g. object storage), so a fresh host can
// recover the checkpoint directory. Archival failures are transient I/O
// errors: they are logged and never fail the local write path.
type Archiver interface {
	Archive(ctx context.Context, path string) error
}

// ManagerConfig configures a WAL Manager.
type ManagerConfig struct {
	// Dir is the directory owned exclusively by this manager.
	Dir string
	// MaxFileSizeBytes rotates the active file once its size reaches this
	// threshold. Zero uses defaultMaxFileSizeBytes.
	MaxFileSizeBytes int64
	// RolloverInterval bounds how long a single file stays active before
	// the next write forces a rotation. Zero uses defaultRolloverInterval.
	RolloverInterval time.Duration
	// Archiver, if set, is invoked (best-effort, asynchronously) whenever a
	// file is rotated out and becomes immutable.
	Archiver Archiver
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Manager owns one WAL directory: it serializes writes to a single active
// file, rotating on size or time thresholds, and provides ordered replay
// and time-based cleanup over the whole directory.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	active   *Writer
	stopTime time.Time
	closed   bool
}

// NewManager creates or reopens a WAL directory. The active file (if any)
// left behind by a previous process is not resumed for further appends —
// the manager always starts a fresh file, matching the append-only,
// single-writer contract after a crash/restart.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: manager requires a directory")
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}
	if cfg.RolloverInterval <= 0 {
		cfg.RolloverInterval = defaultRolloverInterval
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir %s: %w", cfg.Dir, err)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	return &Manager{cfg: cfg}, nil
}

// Dir returns the directory this manager owns.
func (m *Manager) Dir() string { return m.cfg.Dir }

func (m *Manager) logger() *slog.Logger {
	if m.cfg.Logger != nil {
		return m.cfg.Logger
	}
	return slog.Default()
}

// Write appends one record to the WAL, rotating the active file first if
// needed, and returns the FileSegment locating it. Write fails only if the
// underlying file cannot be written and flushed; on failure the manager
// discards its active writer so the next Write opens a fresh file.
func (m *Manager) Write(payload []byte) (FileSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return FileSegment{}, fmt.Errorf("wal: manager for %s is closed", m.cfg.Dir)
	}
	if err := m.rotateIfNeededLocked(); err != nil {
		return FileSegment{}, err
	}

	seg, err := m.active.Write(payload)
	if err != nil {
		m.active = nil
		return FileSegment{}, err
	}
	if err := m.active.Sync(); err != nil {
		m.active = nil
		return FileSegment{}, err
	}
	m.cfg.Metrics.recordsWritten.Inc()
	m.cfg.Metrics.bytesWritten.Add(float64(len(payload)))
	return seg, nil
}

// rotateIfNeededLocked must be called with m.mu held.
func (m *Manager) rotateIfNeededLocked() error {
	needsRotation := m.active == nil ||
		m.active.Size() >= m.cfg.MaxFileSizeBytes ||
		time.Now().After(m.stopTime)
	if !needsRotation {
		return nil
	}

	old := m.active
	if old != nil {
		if err := old.Close(); err != nil {
			m.logger().Warn("wal: error closing rotated file", "path", old.Path(), "error", err)
		}
		m.archiveAsync(old.Path())
	}

	start := time.Now()
	stop := start.Add(m.cfg.RolloverInterval)
	name := logFileName(start.UnixNano(), stop.UnixNano())
	path := filepath.Join(m.cfg.Dir, name)

	w, err := NewWriter(path)
	if err != nil {
		return fmt.Errorf("wal: rotate: %w", err)
	}
	m.active = w
	m.stopTime = stop
	m.cfg.Metrics.rotations.Inc()
	return nil
}

func (m *Manager) archiveAsync(path string) {
	if m.cfg.Archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.cfg.Archiver.Archive(ctx, path); err != nil {
			m.logger().Warn("wal: archival failed", "path", path, "error", err)
		}
	}()
}

// ReadFromLog returns a lazily-concatenated iterator over every record in
// the directory, oldest file first. It reflects the file list at the time
// of the call; files removed concurrently by ClearOldLogs after they were
// already snapshotted are tolerated.
func (m *Manager) ReadFromLog() (*LogIterator, error) {
	files, err := m.listFilesLocked()
	if err != nil {
		return nil, err
	}
	return &LogIterator{files: files}, nil
}

// ReadSegment fetches the payload located by seg via a fresh RandomReader.
func (m *Manager) ReadSegment(seg FileSegment) ([]byte, error) {
	r, err := NewRandomReader(seg.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Read(seg)
}

// ClearOldLogs deletes every closed file whose end time is strictly before
// thresholdTime. It never touches the currently active file. Idempotent: a
// file already removed by a concurrent call is not an error.
func (m *Manager) ClearOldLogs(thresholdTime time.Time) error {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return fmt.Errorf("wal: list %s: %w", m.cfg.Dir, err)
	}

	m.mu.Lock()
	activePath := ""
	if m.active != nil {
		activePath = m.active.Path()
	}
	m.mu.Unlock()

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_, stop, ok := parseLogFileName(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(m.cfg.Dir, entry.Name())
		if path == activePath {
			continue
		}
		if stop.Before(thresholdTime) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				if firstErr == nil {
					firstErr = fmt.Errorf("wal: remove %s: %w", path, err)
				}
				continue
			}
			m.cfg.Metrics.cleanupDeleted.Inc()
		}
	}
	return firstErr
}

// Close closes the active writer, if any. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.active == nil {
		return nil
	}
	err := m.active.Close()
	m.active = nil
	return err
}

// listFilesLocked snapshots the sorted (ascending start time) file list.
func (m *Manager) listFilesLocked() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list %s: %w", m.cfg.Dir, err)
	}
	type fileMeta struct {
		path  string
		start int64
	}
	metas := make([]fileMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		start, _, ok := parseLogFileName(entry.Name())
		if !ok {
			continue
		}
		metas = append(metas, fileMeta{path: filepath.Join(m.cfg.Dir, entry.Name()), start: start.UnixNano()})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].start < metas[j].start })
	paths := make([]string, len(metas))
	for i, meta := range metas {
		paths[i] = meta.path
	}
	return paths, nil
}

func logFileName(startNanos, endNanos int64) string {
	return fmt.Sprintf("%s%d-%d", filePrefix, startNanos, endNanos)
}

func parseLogFileName(name string) (start, end time.Time, ok bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return time.Time{}, time.Time{}, false
	}
	rest := strings.TrimPrefix(name, filePrefix)
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, false
	}
	startNanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endNanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(0, startNanos), time.Unix(0, endNanos), true
}

// LogIterator lazily concatenates Reader iterators over a fixed, ordered
// list of files.
type LogIterator struct {
	files   []string
	idx     int
	current *Reader
	err     error
}

// Next advances to the next record across the whole directory, opening
// files on demand and closing each one before moving to the next.
func (it *LogIterator) Next() bool {
	for {
		if it.current == nil {
			if it.idx >= len(it.files) {
				return false
			}
			r, err := NewReader(it.files[it.idx])
			it.idx++
			if err != nil {
				if os.IsNotExist(err) {
					// Concurrently cleaned up between snapshot and read.
					continue
				}
				it.err = err
				return false
			}
			it.current = r
		}
		if it.current.Next() {
			return true
		}
		if err := it.current.Err(); err != nil {
			it.err = err
			it.current.Close()
			it.current = nil
			return false
		}
		it.current.Close()
		it.current = nil
	}
}

// Record returns the payload most recently made available by Next.
func (it *LogIterator) Record() []byte {
	if it.current == nil {
		return nil
	}
	return it.current.Record()
}

// Err returns the first error encountered during iteration, if any.
func (it *LogIterator) Err() error { return it.err }

// Close releases any file currently open.
func (it *LogIterator) Close() error {
	if it.current != nil {
		err := it.current.Close()
		it.current = nil
		return err
	}
	return nil
}
