// Package indexmgr persists and loads the MasterIndex via a dedicated
// index scratchpad, and owns the master lock: no other component holds a
// reference to the MasterIndex directly, breaking the cyclic dependency
// between the Pad Lifecycle Manager, the Index Manager and the Data
// Manager.
package indexmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"mutant/internal/atomicfile"
	"mutant/internal/logging"
	"mutant/internal/masterindex"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// Manager owns the MasterIndex in memory and its two durable copies: the
// index scratchpad on the network, and an optional local cache file.
type Manager struct {
	adapter  network.Adapter
	indexKey network.Key
	cachePath string
	logger   *slog.Logger

	mu      sync.Mutex
	index   *masterindex.MasterIndex
	written bool // whether the remote index scratchpad is known to exist (found by Load or created by Save)
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger scopes component logging via internal/logging: inject,
// never call slog.SetDefault.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.Default(l) }
}

// WithCachePath enables an optional local cache file mirroring the remote
// index scratchpad, read on Load if the network fetch fails and written
// on every successful Save.
func WithCachePath(path string) Option {
	return func(m *Manager) { m.cachePath = path }
}

// New builds a Manager around adapter, keyed by indexKey (the wallet-derived
// signing key for the index scratchpad itself).
func New(adapter network.Adapter, indexKey network.Key, opts ...Option) *Manager {
	m := &Manager{adapter: adapter, indexKey: indexKey, logger: logging.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bootstrap installs a freshly created MasterIndex (e.g. on first run,
// when Load reports ErrMasterIndexNotFound), fixing scratchpadSize for the
// life of the index.
func (m *Manager) Bootstrap(scratchpadSize uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = masterindex.New(scratchpadSize)
	m.written = false
}

// Load fetches the MasterIndex from the index scratchpad. If that fetch
// fails, it falls back to the local cache file, if configured, and succeeds
// when the cache decodes; otherwise it returns
// mutanterr.ErrMasterIndexNotFound.
func (m *Manager) Load(ctx context.Context) error {
	addr := network.DeriveAddress(m.indexKey)

	data, err := m.adapter.GetPad(ctx, addr)
	if err == nil {
		idx, err := masterindex.Unmarshal(data)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.index = idx
		m.written = true
		m.mu.Unlock()
		return nil
	}

	m.logger.Debug("index scratchpad fetch failed, trying local cache", "error", err)

	if m.cachePath != "" {
		if cached, cacheErr := os.ReadFile(m.cachePath); cacheErr == nil {
			idx, decodeErr := masterindex.Unmarshal(cached)
			if decodeErr == nil {
				m.mu.Lock()
				m.index = idx
				m.mu.Unlock()
				return nil
			}
		}
	}

	return fmt.Errorf("%w: %v", mutanterr.ErrMasterIndexNotFound, err)
}

// Save writes the current MasterIndex to the index scratchpad, and to the
// local cache path if configured.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	idx := m.index
	written := m.written
	m.mu.Unlock()

	if idx == nil {
		return fmt.Errorf("%w: no index loaded", mutanterr.ErrInconsistentState)
	}

	data, err := idx.Marshal()
	if err != nil {
		return err
	}

	hint := network.StatusGenerated
	if written {
		hint = network.StatusWritten
	}
	if _, err := m.adapter.PutPad(ctx, m.indexKey, data, hint); err != nil {
		if errors.Is(err, mutanterr.ErrInconsistentState) {
			// Our bookkeeping of "written" was stale; the pad already
			// exists on-network. Retry once as an update.
			if _, retryErr := m.adapter.PutPad(ctx, m.indexKey, data, network.StatusWritten); retryErr != nil {
				return mutanterr.Storage(retryErr)
			}
		} else {
			return mutanterr.Storage(err)
		}
	}

	m.mu.Lock()
	m.written = true
	m.mu.Unlock()

	if m.cachePath != "" {
		if err := atomicfile.Write(m.cachePath, data); err != nil {
			m.logger.Warn("failed to write local index cache", "path", m.cachePath, "error", err)
		}
	}
	return nil
}

// WithLock runs fn with exclusive access to the MasterIndex. Critical
// sections must stay short: acquire, mutate, release, never spanning a
// network call.
func (m *Manager) WithLock(fn func(*masterindex.MasterIndex) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return fmt.Errorf("%w: index not loaded", mutanterr.ErrInconsistentState)
	}
	return fn(m.index)
}

// Snapshot returns a deep copy of the current MasterIndex for read-only
// callers (e.g. CLI stats/list commands) that don't need the master lock
// held across formatting work. The copy is made while the lock is held, so
// it never races a concurrent WithLock mutation; the returned pointer is
// then this caller's alone and safe to read without further locking.
//
// Cloning the in-memory index (built from our own types, already
// successfully marshaled at least once) cannot fail in ordinary operation;
// if it somehow does, that is a deeper corruption of this Manager's state
// than Snapshot can repair, so it is logged and an empty index is returned
// rather than handing back the live, unsynchronized pointer.
func (m *Manager) Snapshot() *masterindex.MasterIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return masterindex.New(0)
	}
	clone, err := m.index.Clone()
	if err != nil {
		m.logger.Error("failed to clone master index for snapshot", "error", err)
		return masterindex.New(m.index.ScratchpadSize)
	}
	return clone
}

// FetchRemoteCopy fetches and decodes the index scratchpad without
// disturbing this Manager's own in-memory index, for use by Sync to read
// the remote side of a merge.
func (m *Manager) FetchRemoteCopy(ctx context.Context) (*masterindex.MasterIndex, error) {
	addr := network.DeriveAddress(m.indexKey)
	data, err := m.adapter.GetPad(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mutanterr.ErrMasterIndexNotFound, err)
	}
	return masterindex.Unmarshal(data)
}

// ReplaceAndSave installs idx as this Manager's in-memory index and
// persists it, used by Sync once a merge has produced the new state.
func (m *Manager) ReplaceAndSave(ctx context.Context, idx *masterindex.MasterIndex) error {
	m.mu.Lock()
	m.index = idx
	m.mu.Unlock()
	return m.Save(ctx)
}
