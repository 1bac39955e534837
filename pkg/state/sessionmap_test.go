package state

import (
	"sort"
	"testing"
)

func sortedEntries(entries []Entry) []Entry {
	sort.Slice(entries, func(i, j int) bool { return string(entries[i].Key) < string(entries[j].Key) })
	return entries
}

func TestDeltaMapGetSeesParentUntilOverridden(t *testing.T) {
	root := NewDeltaMap()
	root.Put([]byte("a"), []byte("1"))

	child := root.Copy()
	if v, ok := child.Get([]byte("a")); !ok || string(v) != "1" {
		t.Fatalf("expected child to see parent's value, got %q ok=%v", v, ok)
	}

	child.Put([]byte("a"), []byte("2"))
	if v, _ := child.Get([]byte("a")); string(v) != "2" {
		t.Fatalf("expected child override, got %q", v)
	}
	if v, _ := root.Get([]byte("a")); string(v) != "1" {
		t.Fatalf("expected parent unaffected by child mutation, got %q", v)
	}
}

func TestDeltaMapRemoveTombstonesAcrossParent(t *testing.T) {
	root := NewDeltaMap()
	root.Put([]byte("a"), []byte("1"))
	child := root.Copy()
	child.Remove([]byte("a"))

	if _, ok := child.Get([]byte("a")); ok {
		t.Fatalf("expected tombstoned key to be absent")
	}
	if _, ok := root.Get([]byte("a")); !ok {
		t.Fatalf("expected parent unaffected by child tombstone")
	}
}

func TestDeltaMapConsolidationMatchesMergedView(t *testing.T) {
	root := NewDeltaMap()
	root.Put([]byte("a"), []byte("1"))
	root.Put([]byte("b"), []byte("2"))

	child := root.Copy()
	child.Put([]byte("b"), []byte("20"))
	child.Remove([]byte("a"))
	child.Put([]byte("c"), []byte("3"))

	want := sortedEntries(child.Iterator(false))
	got := sortedEntries(child.DoCopy(true).Iterator(false))

	if len(want) != len(got) {
		t.Fatalf("length mismatch: want %v got %v", want, got)
	}
	for i := range want {
		if string(want[i].Key) != string(got[i].Key) || string(want[i].Value) != string(got[i].Value) {
			t.Fatalf("entry %d mismatch: want %+v got %+v", i, want[i], got[i])
		}
	}
}

func TestDeltaMapConsolidatedNodeHasEmptyDelta(t *testing.T) {
	root := NewDeltaMap()
	root.Put([]byte("a"), []byte("1"))
	consolidated := root.DoCopy(true)

	if delta := consolidated.Iterator(true); len(delta) != 0 {
		t.Fatalf("expected empty delta right after consolidation, got %v", delta)
	}
	if full := consolidated.Iterator(false); len(full) != 1 {
		t.Fatalf("expected consolidated node to retain merged view, got %v", full)
	}
}

func TestDeltaMapDoCopyFalseIsPlainCopy(t *testing.T) {
	root := NewDeltaMap()
	root.Put([]byte("a"), []byte("1"))
	child := root.DoCopy(false)
	child.Put([]byte("a"), []byte("2"))

	if v, _ := root.Get([]byte("a")); string(v) != "1" {
		t.Fatalf("expected root unaffected, got %q", v)
	}
	if v, _ := child.Get([]byte("a")); string(v) != "2" {
		t.Fatalf("expected child override, got %q", v)
	}
}

func TestDeltaMapDeltaOnlyIncludesTombstones(t *testing.T) {
	root := NewDeltaMap()
	root.Put([]byte("a"), []byte("1"))
	child := root.Copy()
	child.Remove([]byte("a"))
	child.Put([]byte("b"), []byte("2"))

	delta := sortedEntries(child.Iterator(true))
	if len(delta) != 2 {
		t.Fatalf("expected 2 delta entries, got %v", delta)
	}
	if string(delta[0].Key) != "a" || !delta[0].Tombstone {
		t.Fatalf("expected tombstone for a, got %+v", delta[0])
	}
	if string(delta[1].Key) != "b" || delta[1].Tombstone {
		t.Fatalf("expected put for b, got %+v", delta[1])
	}
}
