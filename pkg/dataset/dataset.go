// Package dataset implements the block-backed partitioned dataset
// (component C): a partitioned collection whose partitions are sourced
// from an in-memory block store or, on a miss, rehydrated from the WAL.
package dataset

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/novatechflow/streamcore/pkg/blockstore"
	"github.com/novatechflow/streamcore/pkg/state"
	"github.com/novatechflow/streamcore/pkg/wal"
)

// SegmentSource fetches the raw bytes located by a WAL FileSegment.
// wal.Manager satisfies it; wal.RandomReader does not (its method is Read).
type SegmentSource interface {
	ReadSegment(seg wal.FileSegment) ([]byte, error)
}

// Decoder deserializes one WAL segment payload into the records it holds.
type Decoder func(payload []byte) ([]blockstore.Record, error)

// Partition describes one partition's block reference and, if the block
// was durably logged, where to rehydrate it from on a cache miss.
type Partition struct {
	Block            blockstore.BlockID
	Segment          *wal.FileSegment
	PreferredHosts   []string
	RehydrationPlace blockstore.StoragePolicy
}

// Dataset is a partitioned collection over ReceivedBlockInfo-style
// partitions, computed lazily against a block store with WAL fallback.
type Dataset struct {
	partitions []Partition
	store      blockstore.Store
	segments   SegmentSource
	decode     Decoder
	sem        *semaphore.Weighted
}

// Config configures a Dataset.
type Config struct {
	Store   blockstore.Store
	Segments SegmentSource
	Decode  Decoder
	// MaxConcurrentRehydrations bounds simultaneous WAL reads across
	// partitions computed via ComputeAll. Zero means unbounded.
	MaxConcurrentRehydrations int64
}

// New builds a Dataset over the given partitions.
func New(partitions []Partition, cfg Config) *Dataset {
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentRehydrations > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrentRehydrations)
	}
	return &Dataset{
		partitions: partitions,
		store:      cfg.Store,
		segments:   cfg.Segments,
		decode:     cfg.Decode,
		sem:        sem,
	}
}

// NumPartitions returns the number of partitions in the dataset.
func (d *Dataset) NumPartitions() int { return len(d.partitions) }

// PreferredLocations returns placement hints for a partition: the
// executors that last held its block, when known.
func (d *Dataset) PreferredLocations(index int) []string {
	return d.partitions[index].PreferredHosts
}

// Compute returns an iterator over one partition's records, preferring the
// block store and falling back to WAL rehydration on a miss. Missing the
// block in both the store and the WAL is fatal for that partition.
func (d *Dataset) Compute(ctx context.Context, index int) (blockstore.Iterator, error) {
	if index < 0 || index >= len(d.partitions) {
		panic(fmt.Sprintf("dataset: partition index %d out of range [0,%d)", index, len(d.partitions)))
	}
	part := d.partitions[index]

	if it, ok := d.store.Get(part.Block); ok {
		return it, nil
	}

	if part.Segment == nil {
		return nil, fmt.Errorf("dataset: block %s missing from block store and has no WAL segment", part.Block)
	}
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("dataset: acquire rehydration slot for %s: %w", part.Block, err)
		}
		defer d.sem.Release(1)
	}

	payload, err := d.segments.ReadSegment(*part.Segment)
	if err != nil {
		return nil, fmt.Errorf("dataset: rehydrate block %s from wal: %w", part.Block, err)
	}
	records, err := d.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("dataset: decode block %s: %w", part.Block, err)
	}

	if err := d.store.PutIterator(part.Block, blockstore.NewSliceIterator(records), part.RehydrationPlace); err != nil {
		return nil, fmt.Errorf("dataset: cache rehydrated block %s: %w", part.Block, err)
	}
	return blockstore.NewSliceIterator(records), nil
}

// ComputeWithState computes partition index and pairs it with that
// operator/partition's versioned state store: it opens the store for
// (operatorID, index, newVersion-1) via provider, then invokes fn with the
// store and the partition's input iterator, exactly as the stateful
// transformation contract requires. fn must call CommitUpdates or
// AbortUpdates on the store before returning.
func (d *Dataset) ComputeWithState(ctx context.Context, index int, provider *state.Provider, operatorID string, newVersion int64, fn func(*state.StateStore, blockstore.Iterator) (interface{}, error)) (interface{}, error) {
	iter, err := d.Compute(ctx, index)
	if err != nil {
		return nil, err
	}
	return state.WithStateStore(provider, operatorID, index, newVersion, iter, fn)
}

// ComputeAll computes every partition concurrently, bounded by
// MaxConcurrentRehydrations, and returns each partition's records in
// partition order. Any single partition failure cancels the rest.
func (d *Dataset) ComputeAll(ctx context.Context) ([][]blockstore.Record, error) {
	results := make([][]blockstore.Record, len(d.partitions))
	g, gctx := errgroup.WithContext(ctx)
	for i := range d.partitions {
		i := i
		g.Go(func() error {
			it, err := d.Compute(gctx, i)
			if err != nil {
				return err
			}
			records, err := blockstore.Drain(it)
			if err != nil {
				return fmt.Errorf("dataset: drain partition %d: %w", i, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
