// Package mutant is the top-level library surface: a private, mutable
// key-value store layered over content-addressed, owner-signed, fixed-size
// scratchpads. It wires the Index Manager, Pad Lifecycle Manager, Data
// Manager and Sync components behind the operations a caller actually
// wants: Store/Fetch/Remove/Update/Sync/Reserve/Purge, plus the
// unauthenticated Public variants and Import for onboarding a wallet.
package mutant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mutant/internal/datamgr"
	"mutant/internal/events"
	"mutant/internal/indexmgr"
	"mutant/internal/indexsync"
	"mutant/internal/logging"
	"mutant/internal/masterindex"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
	"mutant/internal/padlifecycle"
	"mutant/internal/settings"
	"mutant/internal/walletkey"
)

// defaultScratchpadSize is used to bootstrap a brand-new index when none is
// found on the network and the caller didn't request a different size.
const defaultScratchpadSize = 4 * 1024 * 1024

// MutAnt is a handle on one wallet's store: its MasterIndex and the
// components that mutate it. Safe for concurrent use; every operation
// ultimately serializes through the Index Manager's master lock.
type MutAnt struct {
	index     *indexmgr.Manager
	lifecycle *padlifecycle.Manager
	data      *datamgr.Manager
	sync      *indexsync.Syncer
	logger    *slog.Logger
}

// openConfig collects Open's optional settings.
type openConfig struct {
	logger         *slog.Logger
	cachePath      string
	scratchpadSize uint32
}

// Option configures Open.
type Option func(*openConfig)

// WithLogger scopes every component's logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(c *openConfig) { c.logger = l }
}

// WithCachePath enables a local on-disk mirror of the MasterIndex, read on
// Open if the network fetch fails and written on every successful Save.
func WithCachePath(path string) Option {
	return func(c *openConfig) { c.cachePath = path }
}

// WithScratchpadSize fixes the pad size used if a fresh index must be
// bootstrapped. Ignored if an index already exists on the network: the
// scratchpad size never changes for the life of an index.
func WithScratchpadSize(size uint32) Option {
	return func(c *openConfig) { c.scratchpadSize = size }
}

// Open loads the wallet's MasterIndex from adapter, deriving the index
// scratchpad's key from walletPrivateKeyHex. If no index scratchpad exists
// yet, a fresh one is bootstrapped and immediately persisted — Open always
// returns a usable store rather than surfacing ErrMasterIndexNotFound to the
// caller, since onboarding a new wallet is the common case, not an error.
func Open(ctx context.Context, adapter network.Adapter, walletPrivateKeyHex string, opts ...Option) (*MutAnt, error) {
	cfg := openConfig{scratchpadSize: defaultScratchpadSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := logging.Default(cfg.logger)

	walletKey, err := walletkey.ParsePrivateKeyHex(walletPrivateKeyHex)
	if err != nil {
		return nil, err
	}
	indexKey, err := walletkey.DeriveIndexKey(walletKey)
	if err != nil {
		return nil, err
	}

	var indexOpts []indexmgr.Option
	indexOpts = append(indexOpts, indexmgr.WithLogger(logger))
	if cfg.cachePath != "" {
		indexOpts = append(indexOpts, indexmgr.WithCachePath(cfg.cachePath))
	}
	idx := indexmgr.New(adapter, indexKey, indexOpts...)

	if err := idx.Load(ctx); err != nil {
		if !errors.Is(err, mutanterr.ErrMasterIndexNotFound) {
			return nil, err
		}
		logger.Info("no index scratchpad found, bootstrapping a new one", "scratchpad_size", cfg.scratchpadSize)
		idx.Bootstrap(cfg.scratchpadSize)
		if err := idx.Save(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap index: %w", err)
		}
	}

	lifecycle := padlifecycle.New(idx, adapter, padlifecycle.WithLogger(logger))
	data := datamgr.New(idx, lifecycle, adapter, datamgr.WithLogger(logger), datamgr.WithPersister(idx))
	syncer := indexsync.New(idx, indexsync.WithLogger(logger))

	return &MutAnt{index: idx, lifecycle: lifecycle, data: data, sync: syncer, logger: logger}, nil
}

// Store writes data under key, failing KeyAlreadyExists if it is already
// present (use Update to overwrite). Persists the MasterIndex on success.
func (m *MutAnt) Store(ctx context.Context, key string, data []byte, cb events.PutCallback) error {
	if err := m.data.Store(ctx, key, data, cb); err != nil {
		return err
	}
	return m.index.Save(ctx)
}

// Fetch reassembles and returns the bytes stored under key.
func (m *MutAnt) Fetch(ctx context.Context, key string, cb events.GetCallback) ([]byte, error) {
	return m.data.Fetch(ctx, key, cb)
}

// Remove deletes key, if present, returning its pads to the free list.
// Idempotent. The Data Manager persists the index itself as part of Remove.
func (m *MutAnt) Remove(ctx context.Context, key string) error {
	return m.data.Remove(ctx, key)
}

// Update overwrites key's content, growing or shrinking its pad list as
// needed. Fails KeyNotFound if key is absent (use Store to create it).
// Persists the MasterIndex on success.
func (m *MutAnt) Update(ctx context.Context, key string, data []byte, cb events.PutCallback) error {
	if err := m.data.Update(ctx, key, data, cb); err != nil {
		return err
	}
	return m.index.Save(ctx)
}

// Reserve acquires and materializes n pads (draining already-free pads
// before minting new ones) and returns them to the free list, which then
// holds at least n pads, ready for a later Store/Update to drain without
// minting and writing under time pressure. Persists the MasterIndex on
// success.
func (m *MutAnt) Reserve(ctx context.Context, n int, cb events.PutCallback) error {
	if err := m.data.Reserve(ctx, n, cb); err != nil {
		return err
	}
	return m.index.Save(ctx)
}

// Purge resolves the pending-verification list and drops any free_pads
// entry the network no longer has, returning the number of stale entries
// dropped. Persists the MasterIndex on success.
func (m *MutAnt) Purge(ctx context.Context, progress padlifecycle.ProgressFunc) (int, error) {
	dropped, err := m.lifecycle.Purge(ctx, progress)
	if err != nil {
		return dropped, err
	}
	return dropped, m.index.Save(ctx)
}

// VerifyPending checks every pad in the pending-verification list against
// the network, removing the ones confirmed to exist; pads not found stay
// pending. Persists on success.
func (m *MutAnt) VerifyPending(ctx context.Context, progress padlifecycle.ProgressFunc) error {
	if err := m.lifecycle.VerifyPending(ctx, progress); err != nil {
		return err
	}
	return m.index.Save(ctx)
}

// Sync merges the local MasterIndex with the remote index scratchpad
// (remote wins on a conflicting key) and persists the result. If pushForce
// is set, the local copy is written verbatim with no merge — the way to
// recover from a remote index that was lost or never created.
func (m *MutAnt) Sync(ctx context.Context, pushForce bool) error {
	return m.sync.Sync(ctx, pushForce)
}

// ListKeys returns every key currently present in the MasterIndex.
func (m *MutAnt) ListKeys() []string {
	return m.index.Snapshot().ListKeys()
}

// ListDetails returns a per-key listing projection (size, completeness,
// modification time) for every key in the MasterIndex.
func (m *MutAnt) ListDetails() []masterindex.KeyDetails {
	return m.index.Snapshot().ListDetails()
}

// GetStats returns aggregate pad usage across the whole index.
func (m *MutAnt) GetStats() (masterindex.StorageStats, error) {
	return m.index.Snapshot().GetStats()
}

// Reset discards every key, free pad and pending-verification entry,
// keeping only the fixed scratchpad size. Persists the MasterIndex.
func (m *MutAnt) Reset(ctx context.Context) error {
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		idx.ResetIndex()
		return nil
	}); err != nil {
		return err
	}
	return m.index.Save(ctx)
}

// Import validates a hex-encoded wallet private key and writes it into the
// settings file at path, creating the file with defaults if it doesn't yet
// exist. This never opens a MasterIndex — it only onboards the wallet a
// later Open call will use.
func Import(path string, walletPrivateKeyHex string) error {
	if _, err := walletkey.ParsePrivateKeyHex(walletPrivateKeyHex); err != nil {
		return err
	}
	s, err := settings.Load(path)
	if err != nil {
		return err
	}
	s.WalletPrivateKeyHex = walletPrivateKeyHex
	return settings.Save(path, s)
}

// FetchPublic reads the pad at addr directly, with no wallet, no MasterIndex
// and no chunking: the unauthenticated read half of a well-known, documented
// keypair that anyone holding the address can fetch.
func FetchPublic(ctx context.Context, adapter network.Adapter, addr network.Address) ([]byte, error) {
	return adapter.GetPad(ctx, addr)
}

// StorePublic writes data to the single pad owned by key, with no wallet and
// no MasterIndex entry: the write half of FetchPublic's well-known-keypair
// contract. hint should be network.StatusGenerated for a first write.
func StorePublic(ctx context.Context, adapter network.Adapter, key network.Key, data []byte, hint network.PadStatus) (network.Address, error) {
	return adapter.PutPad(ctx, key, data, hint)
}
