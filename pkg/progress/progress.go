// Package progress implements the streaming execution loop's progress
// tracker (component F): a mutable, monotone map from Source to Offset
// protected by a single lock.
package progress

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/novatechflow/streamcore/pkg/offset"
)

// Source identifies one input to a streaming query. ID must be stable for
// the lifetime of the query: two Source values naming the same external
// source must return the same ID, and it is used both as the map key and
// as the canonical ordering key for toOffset().
type Source interface {
	ID() string
}

type entry struct {
	source Source
	offset offset.Offset
}

// Tracker is StreamProgress: the single mutable map touched by both the
// execution loop worker and external awaitOffset callers.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewTracker returns an empty progress tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]entry)}
}

// Update advances source's recorded offset. It fails if a current offset
// is already recorded and newOffset is not strictly greater than it.
func (t *Tracker) Update(source Source, newOffset offset.Offset) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(source, newOffset)
}

func (t *Tracker) updateLocked(source Source, newOffset offset.Offset) error {
	id := source.ID()
	if current, ok := t.entries[id]; ok {
		ord, err := current.offset.CompareTo(newOffset)
		if err != nil {
			return fmt.Errorf("progress: compare offsets for source %s: %w", id, err)
		}
		if ord != offset.Less {
			return fmt.Errorf("progress: non-monotone update for source %s: %s is not strictly greater than %s", id, newOffset, current.offset)
		}
	}
	t.entries[id] = entry{source: source, offset: newOffset}
	return nil
}

// BatchUpdate pairs one source with the offset it should advance to, for use
// with CommitBatch.
type BatchUpdate struct {
	Source Source
	Offset offset.Offset
}

// CommitBatch applies every update and, only if all of them succeed,
// computes the resulting composite offset and invokes commit with it — all
// under the same lock. This is the progress lock referenced by the
// execution loop: StreamProgress is updated and the Sink is committed as
// one atomic step, so no awaitOffset caller can observe an update whose
// Sink commit has not yet run. If any update is rejected (non-monotone, or
// commit itself fails), none of the updates are applied.
func (t *Tracker) CommitBatch(updates []BatchUpdate, commit func(offset.CompositeOffset) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := make(map[string]entry, len(t.entries))
	for k, v := range t.entries {
		before[k] = v
	}

	for _, u := range updates {
		if err := t.updateLocked(u.Source, u.Offset); err != nil {
			t.entries = before
			return err
		}
	}

	composite := t.toOffsetLocked()
	if err := commit(composite); err != nil {
		t.entries = before
		return err
	}
	return nil
}

// Get returns the current recorded offset for source, if any.
func (t *Tracker) Get(source Source) (offset.Offset, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[source.ID()]
	if !ok {
		return nil, false
	}
	return e.offset, true
}

// Sources returns every source currently tracked, in canonical
// (ID-sorted) order.
func (t *Tracker) Sources() []Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sources := make([]Source, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, t.entries[id].source)
	}
	return sources
}

// ToOffset returns a CompositeOffset whose component order matches the
// canonical (ID-sorted) ordering of tracked sources.
func (t *Tracker) ToOffset() offset.CompositeOffset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toOffsetLocked()
}

func (t *Tracker) toOffsetLocked() offset.CompositeOffset {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	offsets := make([]offset.Offset, 0, len(ids))
	for _, id := range ids {
		offsets = append(offsets, t.entries[id].offset)
	}
	return offset.NewCompositeOffset(offsets)
}

// Equal reports whether t and other track the same set of sources at the
// same offsets, ignoring insertion order.
func (t *Tracker) Equal(other *Tracker) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	if len(t.entries) != len(other.entries) {
		return false
	}
	for id, e := range t.entries {
		oe, ok := other.entries[id]
		if !ok {
			return false
		}
		ord, err := e.offset.CompareTo(oe.offset)
		if err != nil || ord != offset.Equal {
			return false
		}
	}
	return true
}

// Hash computes a hash over the tracker's contents that is invariant to
// insertion order: equal trackers hash equally. Combined via XOR so
// per-entry contributions commute.
func (t *Tracker) Hash() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var h uint64
	for id, e := range t.entries {
		fh := fnv.New64a()
		fh.Write([]byte(id))
		fh.Write([]byte{0})
		fh.Write([]byte(e.offset.String()))
		h ^= fh.Sum64()
	}
	return h
}
