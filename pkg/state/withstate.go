package state

import (
	"fmt"

	"github.com/novatechflow/streamcore/pkg/blockstore"
)

// WithStateStore opens the store for (operatorID, partitionID, newVersion-1),
// invokes fn with that handle and the partition's input iterator, and
// requires fn to have called CommitUpdates or AbortUpdates before
// returning — failing to do so is a caller contract violation and panics
// rather than silently leaving state uncommitted. This is the stateful
// integration point a partitioned dataset transformation uses to pair its
// per-partition compute with the operator's per-partition state.
func WithStateStore(provider *Provider, operatorID string, partitionID int, newVersion int64, iter blockstore.Iterator, fn func(*StateStore, blockstore.Iterator) (interface{}, error)) (interface{}, error) {
	if newVersion <= 0 {
		panic("state: newVersion must be positive")
	}
	store, err := provider.Open(operatorID, partitionID, newVersion-1)
	if err != nil {
		return nil, fmt.Errorf("state: open store for %s/%d at version %d: %w", operatorID, partitionID, newVersion-1, err)
	}

	result, err := fn(store, iter)
	if err != nil {
		return nil, err
	}
	if !store.committed && !store.aborted {
		panic(fmt.Sprintf("state: fn for %s/%d did not commit or abort its state store", operatorID, partitionID))
	}
	return result, nil
}
