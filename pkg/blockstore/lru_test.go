package blockstore

import "testing"

func TestLRUStorePutAndGet(t *testing.T) {
	s := NewLRUStore(1024)
	id := BlockID{StreamID: 1, ID: "b0"}
	if err := s.PutIterator(id, NewSliceIterator([]Record{[]byte("r1"), []byte("r2")}), MemoryOnly); err != nil {
		t.Fatalf("PutIterator: %v", err)
	}

	it, ok := s.Get(id)
	if !ok {
		t.Fatalf("expected block present")
	}
	records, err := Drain(it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestLRUStoreEvictsOldest(t *testing.T) {
	s := NewLRUStore(10)
	a := BlockID{StreamID: 1, ID: "a"}
	b := BlockID{StreamID: 1, ID: "b"}
	c := BlockID{StreamID: 1, ID: "c"}

	if err := s.PutIterator(a, NewSliceIterator([]Record{[]byte("12345")}), MemoryOnly); err != nil {
		t.Fatalf("PutIterator a: %v", err)
	}
	if err := s.PutIterator(b, NewSliceIterator([]Record{[]byte("67890")}), MemoryOnly); err != nil {
		t.Fatalf("PutIterator b: %v", err)
	}
	if err := s.PutIterator(c, NewSliceIterator([]Record{[]byte("abcde")}), MemoryOnly); err != nil {
		t.Fatalf("PutIterator c: %v", err)
	}

	if _, ok := s.Get(a); ok {
		t.Fatalf("expected oldest block evicted")
	}
	if _, ok := s.Get(c); !ok {
		t.Fatalf("expected newest block present")
	}
}

func TestLRUStoreGetMatchingBlockIds(t *testing.T) {
	s := NewLRUStore(1024)
	for _, sid := range []int{1, 1, 2} {
		id := BlockID{StreamID: sid, ID: "x"}
		if err := s.PutIterator(id, NewSliceIterator([]Record{[]byte("r")}), MemoryOnly); err != nil {
			t.Fatalf("PutIterator: %v", err)
		}
	}
	matches := s.GetMatchingBlockIds(func(id BlockID) bool { return id.StreamID == 1 })
	if len(matches) != 1 {
		t.Fatalf("expected 1 match (map dedups same BlockID), got %d", len(matches))
	}
}
