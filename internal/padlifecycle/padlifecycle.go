// Package padlifecycle allocates pads to callers (from the free list or by
// minting new secret keys), returns them to the free list on release, and
// drives the free-list reclamation loop by verifying pads pending
// confirmation.
package padlifecycle

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mutant/internal/logging"
	"mutant/internal/masterindex"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// maxConcurrentVerifications bounds fan-out during verify_pending, matching
// the per-operation concurrency ceiling suggested across the core (§5).
const maxConcurrentVerifications = 16

// IndexAccessor is the capability padlifecycle needs from the Index
// Manager: exclusive, short-lived access to the MasterIndex. Declaring the
// interface here (rather than depending on indexmgr's concrete type) keeps
// the dependency pointing down only, per the design note on breaking the
// Pad Lifecycle Manager / Index Manager / Data Manager cycle.
type IndexAccessor interface {
	WithLock(fn func(*masterindex.MasterIndex) error) error
}

// AcquiredPad is a pad handed out by Acquire, carrying the write-generation
// counter it must be released with.
type AcquiredPad struct {
	Address network.Address
	Key     network.Key
	Counter uint64
}

// Manager is the Pad Lifecycle Manager.
type Manager struct {
	index   IndexAccessor
	adapter network.Adapter
	logger  *slog.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger scopes this Manager's logging.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.Default(l) }
}

// New builds a Manager over index, using adapter for on-network existence
// checks during verification.
func New(index IndexAccessor, adapter network.Adapter, opts ...Option) *Manager {
	m := &Manager{index: index, adapter: adapter, logger: logging.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// mintKey generates a fresh secret pad key.
func mintKey() (network.Key, error) {
	var key network.Key
	if _, err := rand.Read(key[:]); err != nil {
		return network.Key{}, fmt.Errorf("mint pad key: %w", err)
	}
	return key, nil
}

// Acquire returns exactly n pads, draining the free list first (LIFO) and
// minting the remainder. Never partial: if minting fails partway through,
// the drained entries are returned to the free list with their original
// counters and the call fails as a whole.
func (m *Manager) Acquire(n int) ([]AcquiredPad, error) {
	if n == 0 {
		return nil, nil
	}

	var drained []AcquiredPad
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		for len(drained) < n {
			pad, ok := idx.TakeFreePad()
			if !ok {
				break
			}
			drained = append(drained, AcquiredPad{Address: pad.Address, Key: pad.Key, Counter: pad.Counter})
		}
		return nil
	}); err != nil {
		return nil, err
	}

	need := n - len(drained)
	minted := make([]AcquiredPad, 0, need)
	for i := 0; i < need; i++ {
		key, err := mintKey()
		if err != nil {
			m.releaseQuietly(drained)
			return nil, err
		}
		minted = append(minted, AcquiredPad{Address: network.DeriveAddress(key), Key: key, Counter: 0})
	}

	return append(drained, minted...), nil
}

// releaseQuietly returns pads to the free list without propagating any
// release error, used on the Acquire compensation path where we already
// have a primary error to report.
func (m *Manager) releaseQuietly(pads []AcquiredPad) {
	if err := m.Release(pads); err != nil {
		m.logger.Warn("failed to compensate partially drained pads", "error", err)
	}
}

// Release returns pads to the free list, incrementing each one's counter.
// Duplicate addresses are deduped by the MasterIndex itself.
func (m *Manager) Release(pads []AcquiredPad) error {
	if len(pads) == 0 {
		return nil
	}
	return m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		for _, pad := range pads {
			idx.AddFreePad(pad.Address, pad.Key, pad.Counter+1)
		}
		return nil
	})
}

// ProgressFunc observes a pad verification outcome. It is called once per
// checked pad, after every existence check of the pass has finished, and
// cannot stop the pass.
type ProgressFunc func(addr network.Address, confirmed bool)

// VerifyPending checks every pad in the pending-verification list against
// the network and removes the ones confirmed to exist, driving Sync's
// reclamation loop. Bounded concurrency per §5.
func (m *Manager) VerifyPending(ctx context.Context, progress ProgressFunc) error {
	var pending []masterindex.PendingPad
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		pending = idx.TakePendingPads()
		return nil
	}); err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	type result struct {
		pad       masterindex.PendingPad
		confirmed bool
	}
	results := make([]result, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentVerifications)
	for i, pad := range pending {
		i, pad := i, pad
		g.Go(func() error {
			exists, err := m.adapter.Exists(gctx, pad.Address)
			if err != nil {
				m.logger.Debug("verify_pending: exists check failed, leaving pad pending", "address", pad.Address, "error", err)
				results[i] = result{pad: pad, confirmed: false}
				return nil
			}
			results[i] = result{pad: pad, confirmed: exists}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return mutanterr.Storage(err)
	}

	return m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		for _, r := range results {
			if r.confirmed {
				idx.RemoveFromPending(r.pad.Address)
			} else {
				idx.AddPendingPads([]masterindex.PendingPad{r.pad})
			}
			if progress != nil {
				progress(r.pad.Address, r.confirmed)
			}
		}
		return nil
	})
}

// Purge reconciles local bookkeeping against the network: it drives
// VerifyPending to resolve the pending-verification list, then separately
// drops any free_pads entry whose address the network no longer has. A pad
// can end up free-but-gone if it was released locally but never re-verified
// before the remote copy diverged. Returns the number of stale free pads
// dropped.
func (m *Manager) Purge(ctx context.Context, progress ProgressFunc) (int, error) {
	if err := m.VerifyPending(ctx, progress); err != nil {
		return 0, err
	}

	var free []masterindex.FreePad
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		free = idx.ListFreePads()
		return nil
	}); err != nil {
		return 0, err
	}
	if len(free) == 0 {
		return 0, nil
	}

	stale := make([]bool, len(free))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentVerifications)
	for i, pad := range free {
		i, pad := i, pad
		g.Go(func() error {
			exists, err := m.adapter.Exists(gctx, pad.Address)
			if err != nil {
				m.logger.Debug("purge: exists check failed, leaving free pad in place", "address", pad.Address, "error", err)
				return nil
			}
			stale[i] = !exists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, mutanterr.Storage(err)
	}

	dropped := 0
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		for i, pad := range free {
			if stale[i] && idx.RemoveFreePad(pad.Address) {
				dropped++
			}
		}
		return nil
	}); err != nil {
		return dropped, err
	}
	return dropped, nil
}
