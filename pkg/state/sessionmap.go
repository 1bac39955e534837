// Package state implements the versioned key/value stores used by stateful
// operators: an in-memory, persistent (copy-on-write) SessionMap used by
// driver-side keyed-aggregation helpers, and an on-disk, versioned
// StateStore used per operator/partition (component D).
package state

// SessionMap is the narrow read/write surface shared by both
// implementations of the persistent map family described in the design
// notes: an in-memory delta map (this file) and an on-disk snapshot+delta
// map (statestore.go).
type SessionMap interface {
	Put(key, value []byte)
	Get(key []byte) ([]byte, bool)
	Remove(key []byte)
}

// Entry is one visible key/value pair, or a tombstone, returned by
// iteration.
type Entry struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

type op struct {
	value     []byte
	tombstone bool
}

// DeltaMap is an in-memory, persistent copy-on-write map. Copy() produces a
// child that shares the parent's data by reference; mutating the child
// never affects the parent. It is not internally synchronized: a child may
// be handed to another goroutine, but concurrent mutation of the same
// instance is the caller's responsibility (spec §5).
type DeltaMap struct {
	parent *DeltaMap
	base   map[string][]byte // only set on a root (NewDeltaMap or consolidation)
	delta  map[string]op     // changes since this node was created/consolidated
}

// NewDeltaMap returns an empty root map.
func NewDeltaMap() *DeltaMap {
	return &DeltaMap{base: map[string][]byte{}, delta: map[string]op{}}
}

// Put records an insertion or update in this node's delta.
func (m *DeltaMap) Put(key, value []byte) {
	m.delta[string(key)] = op{value: append([]byte(nil), value...)}
}

// Remove records a tombstone in this node's delta.
func (m *DeltaMap) Remove(key []byte) {
	m.delta[string(key)] = op{tombstone: true}
}

// Get resolves key against this node's delta and, on a miss, its base or
// parent chain.
func (m *DeltaMap) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if o, ok := m.delta[k]; ok {
		if o.tombstone {
			return nil, false
		}
		return o.value, true
	}
	if m.base != nil {
		v, ok := m.base[k]
		return v, ok
	}
	if m.parent != nil {
		return m.parent.Get(key)
	}
	return nil, false
}

// Copy creates a child sharing this node's data by reference, with an
// empty delta.
func (m *DeltaMap) Copy() *DeltaMap {
	return &DeltaMap{parent: m, delta: map[string]op{}}
}

// DoCopy creates a child of m. When consolidate is false it behaves exactly
// like Copy. When consolidate is true, it instead materializes the full
// merged view into a new, parent-less root whose delta is empty — so
// child.Iterator(false) equals child.DoCopy(true).Iterator(false) for any
// legal sequence of prior puts/removes.
func (m *DeltaMap) DoCopy(consolidate bool) *DeltaMap {
	if !consolidate {
		return m.Copy()
	}
	return &DeltaMap{base: m.mergedView(), delta: map[string]op{}}
}

func (m *DeltaMap) mergedView() map[string][]byte {
	var result map[string][]byte
	switch {
	case m.base != nil:
		result = make(map[string][]byte, len(m.base))
		for k, v := range m.base {
			result[k] = v
		}
	case m.parent != nil:
		result = m.parent.mergedView()
	default:
		result = map[string][]byte{}
	}
	for k, o := range m.delta {
		if o.tombstone {
			delete(result, k)
		} else {
			result[k] = o.value
		}
	}
	return result
}

// Iterator returns the map's entries. When deltaOnly is true, only entries
// changed in this node since its creation/consolidation are returned
// (including tombstones); when false, the full merged view is returned
// (child overrides parent; tombstones suppress parent entries).
func (m *DeltaMap) Iterator(deltaOnly bool) []Entry {
	if deltaOnly {
		entries := make([]Entry, 0, len(m.delta))
		for k, o := range m.delta {
			entries = append(entries, Entry{Key: []byte(k), Value: o.value, Tombstone: o.tombstone})
		}
		return entries
	}
	merged := m.mergedView()
	entries := make([]Entry, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, Entry{Key: []byte(k), Value: v})
	}
	return entries
}
