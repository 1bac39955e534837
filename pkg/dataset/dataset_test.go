package dataset

import (
	"context"
	"fmt"
	"testing"

	"github.com/novatechflow/streamcore/pkg/blockstore"
	"github.com/novatechflow/streamcore/pkg/state"
	"github.com/novatechflow/streamcore/pkg/wal"
)

type fakeSegments struct {
	data map[wal.FileSegment][]byte
}

func (f *fakeSegments) ReadSegment(seg wal.FileSegment) ([]byte, error) {
	data, ok := f.data[seg]
	if !ok {
		return nil, fmt.Errorf("no such segment")
	}
	return data, nil
}

func lineDecoder(payload []byte) ([]blockstore.Record, error) {
	return []blockstore.Record{payload}, nil
}

func TestComputeHitsBlockStore(t *testing.T) {
	store := blockstore.NewLRUStore(1024)
	id := blockstore.BlockID{StreamID: 1, ID: "b0"}
	if err := store.PutIterator(id, blockstore.NewSliceIterator([]blockstore.Record{[]byte("cached")}), blockstore.MemoryOnly); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	ds := New([]Partition{{Block: id}}, Config{Store: store, Decode: lineDecoder})
	it, err := ds.Compute(context.Background(), 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	records, err := blockstore.Drain(it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(records) != 1 || string(records[0]) != "cached" {
		t.Fatalf("got %v", records)
	}
}

func TestComputeRehydratesFromWALOnMiss(t *testing.T) {
	store := blockstore.NewLRUStore(1024)
	id := blockstore.BlockID{StreamID: 1, ID: "b0"}
	seg := wal.FileSegment{Path: "log-0-1", FileOffset: 0, Length: 5}
	segments := &fakeSegments{data: map[wal.FileSegment][]byte{seg: []byte("hello")}}

	ds := New([]Partition{{Block: id, Segment: &seg}}, Config{Store: store, Segments: segments, Decode: lineDecoder})
	it, err := ds.Compute(context.Background(), 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	records, err := blockstore.Drain(it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(records) != 1 || string(records[0]) != "hello" {
		t.Fatalf("got %v", records)
	}

	// Rehydrated block should now be cached.
	if _, ok := store.Get(id); !ok {
		t.Fatalf("expected block to be cached after rehydration")
	}
}

func TestComputeMissingEverywhereIsFatal(t *testing.T) {
	store := blockstore.NewLRUStore(1024)
	id := blockstore.BlockID{StreamID: 1, ID: "gone"}
	ds := New([]Partition{{Block: id}}, Config{Store: store, Decode: lineDecoder})
	if _, err := ds.Compute(context.Background(), 0); err == nil {
		t.Fatalf("expected error for block missing from both store and WAL")
	}
}

func TestComputeAllRunsConcurrently(t *testing.T) {
	store := blockstore.NewLRUStore(1024)
	var parts []Partition
	for i := 0; i < 5; i++ {
		id := blockstore.BlockID{StreamID: 1, ID: fmt.Sprintf("b%d", i)}
		if err := store.PutIterator(id, blockstore.NewSliceIterator([]blockstore.Record{[]byte(fmt.Sprintf("r%d", i))}), blockstore.MemoryOnly); err != nil {
			t.Fatalf("seed: %v", err)
		}
		parts = append(parts, Partition{Block: id})
	}
	ds := New(parts, Config{Store: store, Decode: lineDecoder, MaxConcurrentRehydrations: 2})
	results, err := ds.ComputeAll(context.Background())
	if err != nil {
		t.Fatalf("ComputeAll: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d partitions, want 5", len(results))
	}
	for i, r := range results {
		if len(r) != 1 || string(r[0]) != fmt.Sprintf("r%d", i) {
			t.Fatalf("partition %d = %v", i, r)
		}
	}
}

func TestComputeWithStatePairsPartitionIteratorWithStateStore(t *testing.T) {
	store := blockstore.NewLRUStore(1024)
	id := blockstore.BlockID{StreamID: 1, ID: "b0"}
	if err := store.PutIterator(id, blockstore.NewSliceIterator([]blockstore.Record{[]byte("a"), []byte("b")}), blockstore.MemoryOnly); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	ds := New([]Partition{{Block: id}}, Config{Store: store, Decode: lineDecoder})

	provider := state.NewProvider(t.TempDir(), nil, nil)
	result, err := ds.ComputeWithState(context.Background(), 0, provider, "count-op", 1, func(s *state.StateStore, iter blockstore.Iterator) (interface{}, error) {
		records, err := blockstore.Drain(iter)
		if err != nil {
			return nil, err
		}
		s.Put([]byte("count"), []byte{byte(len(records))})
		return s.CommitUpdates(state.DefaultSnapshotInterval)
	})
	if err != nil {
		t.Fatalf("ComputeWithState: %v", err)
	}
	if result.(int64) != 1 {
		t.Fatalf("got version %v, want 1", result)
	}

	reopened, err := provider.Open("count-op", 0, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok := reopened.Get([]byte("count")); !ok || v[0] != 2 {
		t.Fatalf("count = %v, %v", v, ok)
	}
}

func TestComputeWithStatePropagatesComputeFailureWithoutOpeningStore(t *testing.T) {
	store := blockstore.NewLRUStore(1024)
	id := blockstore.BlockID{StreamID: 1, ID: "missing"}
	ds := New([]Partition{{Block: id}}, Config{Store: store, Decode: lineDecoder})
	provider := state.NewProvider(t.TempDir(), nil, nil)

	called := false
	_, err := ds.ComputeWithState(context.Background(), 0, provider, "op", 1, func(s *state.StateStore, iter blockstore.Iterator) (interface{}, error) {
		called = true
		return nil, nil
	})
	if err == nil {
		t.Fatalf("expected error for partition missing from both store and WAL")
	}
	if called {
		t.Fatalf("fn should not run when Compute fails")
	}
}
