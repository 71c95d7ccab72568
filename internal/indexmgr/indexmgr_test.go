package indexmgr

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mutant/internal/masterindex"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
	"mutant/internal/network/localnet"
)

func newTestManager(t *testing.T) (*Manager, network.Key) {
	t.Helper()
	adapter, err := localnet.New(t.TempDir())
	if err != nil {
		t.Fatalf("localnet.New: %v", err)
	}
	var indexKey network.Key
	indexKey[0] = 1
	return New(adapter, indexKey), indexKey
}

func TestLoadMissingIndexReturnsNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Load(context.Background())
	if !errors.Is(err, mutanterr.ErrMasterIndexNotFound) {
		t.Fatalf("expected ErrMasterIndexNotFound, got %v", err)
	}
}

func TestBootstrapSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	m.Bootstrap(4)

	if err := m.WithLock(func(idx *masterindex.MasterIndex) error {
		idx.InsertKeyInfo("k", masterindex.KeyInfo{DataSize: 4, IsComplete: true})
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2, _ := newTestManagerSharingAdapter(t, m)
	if err := m2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := m2.Snapshot()
	info, ok := snap.GetKeyInfo("k")
	if !ok || info.DataSize != 4 {
		t.Fatalf("expected loaded index to contain key k, got %+v ok=%v", info, ok)
	}
}

// newTestManagerSharingAdapter builds a second Manager against the same
// underlying adapter and index key as m, simulating a fresh process
// reloading the persisted index.
func newTestManagerSharingAdapter(t *testing.T, m *Manager) (*Manager, network.Key) {
	t.Helper()
	return New(m.adapter, m.indexKey), m.indexKey
}

func TestSaveTwiceUsesUpdateHint(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	m.Bootstrap(4)

	if err := m.Save(ctx); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if !m.written {
		t.Fatalf("expected the first save to mark the index pad written, so the second save hints an update")
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("second save: %v", err)
	}
}

func TestWithLockBeforeLoadFails(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.WithLock(func(*masterindex.MasterIndex) error { return nil })
	if !errors.Is(err, mutanterr.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}
}

// TestSnapshotIsIndependentOfConcurrentMutation guards against Snapshot
// handing back the live index pointer: a mutation made through WithLock
// after Snapshot was taken must not be visible on the earlier snapshot.
func TestSnapshotIsIndependentOfConcurrentMutation(t *testing.T) {
	m, _ := newTestManager(t)
	m.Bootstrap(4)
	if err := m.WithLock(func(idx *masterindex.MasterIndex) error {
		idx.InsertKeyInfo("before", masterindex.KeyInfo{DataSize: 1, IsComplete: true})
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	snap := m.Snapshot()

	if err := m.WithLock(func(idx *masterindex.MasterIndex) error {
		idx.InsertKeyInfo("after", masterindex.KeyInfo{DataSize: 2, IsComplete: true})
		idx.RemoveKeyInfo("before")
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if _, ok := snap.GetKeyInfo("before"); !ok {
		t.Fatalf("expected snapshot taken before the mutation to still have 'before'")
	}
	if _, ok := snap.GetKeyInfo("after"); ok {
		t.Fatalf("expected snapshot taken before the mutation to not see 'after'")
	}
}

func TestWithCachePathFallback(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.cbor")

	adapter, err := localnet.New(t.TempDir())
	if err != nil {
		t.Fatalf("localnet.New: %v", err)
	}
	var indexKey network.Key
	indexKey[0] = 2

	m := New(adapter, indexKey, WithCachePath(cachePath))
	m.Bootstrap(8)
	m.WithLock(func(idx *masterindex.MasterIndex) error {
		idx.InsertKeyInfo("cached", masterindex.KeyInfo{})
		return nil
	})
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh Manager pointed at an adapter missing the scratchpad (simulating
	// the network being unreachable) should still recover the index from the
	// local cache file.
	emptyAdapterDir := t.TempDir()
	emptyAdapter, err := localnet.New(emptyAdapterDir)
	if err != nil {
		t.Fatalf("localnet.New: %v", err)
	}
	m2 := New(emptyAdapter, indexKey, WithCachePath(cachePath))
	if err := m2.Load(ctx); err != nil {
		t.Fatalf("expected cache fallback to succeed, got %v", err)
	}
	if _, ok := m2.Snapshot().GetKeyInfo("cached"); !ok {
		t.Fatalf("expected cached key info to be recovered")
	}
}
