package state

import (
	"testing"

	"github.com/novatechflow/streamcore/pkg/blockstore"
)

func TestStateStoreCommitPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put([]byte("k1"), []byte("v1"))
	s.Put([]byte("k2"), []byte("v2"))
	newVersion, err := s.CommitUpdates(DefaultSnapshotInterval)
	if err != nil {
		t.Fatalf("CommitUpdates: %v", err)
	}
	if newVersion != 1 {
		t.Fatalf("got version %d, want 1", newVersion)
	}

	reopened, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok := reopened.Get([]byte("k1")); !ok || string(v) != "v1" {
		t.Fatalf("k1 = %q, %v", v, ok)
	}
	if v, ok := reopened.Get([]byte("k2")); !ok || string(v) != "v2" {
		t.Fatalf("k2 = %q, %v", v, ok)
	}
}

func TestStateStoreAbortLeavesDiskUntouched(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put([]byte("k1"), []byte("v1"))
	s.AbortUpdates()

	reopened, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := reopened.Get([]byte("k1")); ok {
		t.Fatalf("expected aborted mutation to be absent on disk")
	}
}

func TestStateStoreCommitOfAbortedStorePanics(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.AbortUpdates()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic committing an aborted store")
		}
	}()
	_, _ = s.CommitUpdates(DefaultSnapshotInterval)
}

func TestStateStoreRemoveTombstonesAcrossVersions(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put([]byte("k"), []byte("v"))
	if _, err := s.CommitUpdates(DefaultSnapshotInterval); err != nil {
		t.Fatalf("commit v1: %v", err)
	}

	s2, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("reopen at v1: %v", err)
	}
	s2.Remove([]byte("k"))
	if _, err := s2.CommitUpdates(DefaultSnapshotInterval); err != nil {
		t.Fatalf("commit v2: %v", err)
	}

	s3, err := Open(dir, 2)
	if err != nil {
		t.Fatalf("reopen at v2: %v", err)
	}
	if _, ok := s3.Get([]byte("k")); ok {
		t.Fatalf("expected k removed as of version 2")
	}
}

func TestStateStoreSnapshotsOnInterval(t *testing.T) {
	dir := t.TempDir()

	version := int64(0)
	for i := 0; i < 3; i++ {
		s, err := Open(dir, version)
		if err != nil {
			t.Fatalf("Open v%d: %v", version, err)
		}
		s.Put([]byte("counter"), []byte{byte(i)})
		v, err := s.CommitUpdates(3)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		version = v
	}
	if version != 3 {
		t.Fatalf("got version %d, want 3", version)
	}

	if _, err := readSnapshot(dir + "/00000000000000000003.snapshot"); err != nil {
		t.Fatalf("expected snapshot at version 3: %v", err)
	}

	// Recovery from just the snapshot (no deltas need replaying beyond it).
	s, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("Open v3: %v", err)
	}
	if v, ok := s.Get([]byte("counter")); !ok || v[0] != 2 {
		t.Fatalf("counter = %v, %v", v, ok)
	}
}

func TestStateStoreGetRangeMergesBaselineAndPending(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put([]byte("a"), []byte("1"))
	s.Put([]byte("b"), []byte("2"))
	if _, err := s.CommitUpdates(DefaultSnapshotInterval); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s2, err := Open(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Put([]byte("c"), []byte("3"))
	s2.Remove([]byte("a"))

	entries := s2.GetRange()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(entries), entries)
	}
	if string(entries[0].Key) != "b" || string(entries[1].Key) != "c" {
		t.Fatalf("unexpected keys: %v", entries)
	}
}

func TestProviderOpenCachesBaselineAndClearAllEvicts(t *testing.T) {
	root := t.TempDir()
	p := NewProvider(root, nil, nil)

	s, err := p.Open("op", 0, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put([]byte("k"), []byte("v"))
	if _, err := s.CommitUpdates(DefaultSnapshotInterval); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Cache holds the pre-commit (version 0) baseline; a fresh Open at
	// version 0 should still see it empty, unaffected by s's local commit.
	again, err := p.Open("op", 0, 0)
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if _, ok := again.Get([]byte("k")); ok {
		t.Fatalf("expected version-0 view to be empty")
	}

	p.ClearAll()
	fresh, err := p.Open("op", 0, 1)
	if err != nil {
		t.Fatalf("Open v1: %v", err)
	}
	if v, ok := fresh.Get([]byte("k")); !ok || string(v) != "v" {
		t.Fatalf("k = %q, %v", v, ok)
	}
}

func TestWithStateStoreRequiresCommitOrAbort(t *testing.T) {
	root := t.TempDir()
	p := NewProvider(root, nil, nil)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic when fn does not commit or abort")
		}
	}()
	_, _ = WithStateStore(p, "op", 0, 1, blockstore.NewSliceIterator(nil), func(s *StateStore, iter blockstore.Iterator) (interface{}, error) {
		s.Put([]byte("k"), []byte("v"))
		return nil, nil
	})
}

func TestWithStateStoreCommitsExpectedVersion(t *testing.T) {
	root := t.TempDir()
	p := NewProvider(root, nil, nil)

	result, err := WithStateStore(p, "op", 0, 1, blockstore.NewSliceIterator(nil), func(s *StateStore, iter blockstore.Iterator) (interface{}, error) {
		s.Put([]byte("k"), []byte("v"))
		return s.CommitUpdates(DefaultSnapshotInterval)
	})
	if err != nil {
		t.Fatalf("WithStateStore: %v", err)
	}
	if result.(int64) != 1 {
		t.Fatalf("got version %v, want 1", result)
	}
}
