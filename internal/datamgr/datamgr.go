// Package datamgr implements the top-level store/fetch/remove/update
// operations: chunking, pad acquisition, concurrent chunk I/O, callback
// emission and compensation on failure.
package datamgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mutant/internal/callgroup"
	"mutant/internal/chunker"
	"mutant/internal/events"
	"mutant/internal/logging"
	"mutant/internal/masterindex"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
	"mutant/internal/padlifecycle"
)

// maxConcurrentChunkIO bounds per-operation chunk fan-out.
const maxConcurrentChunkIO = 16

// IndexAccessor is the capability datamgr needs from the Index Manager.
type IndexAccessor interface {
	WithLock(fn func(*masterindex.MasterIndex) error) error
}

// PadAcquirer is the capability datamgr needs from the Pad Lifecycle
// Manager. Declared locally, per the design note on avoiding cyclic
// component references.
type PadAcquirer interface {
	Acquire(n int) ([]padlifecycle.AcquiredPad, error)
	Release(pads []padlifecycle.AcquiredPad) error
}

// Persister is the capability to flush the MasterIndex externally. remove
// saves as part of its own contract; store/update leave flushing to the
// caller.
type Persister interface {
	Save(ctx context.Context) error
}

// Manager is the Data Manager.
type Manager struct {
	index     IndexAccessor
	pads      PadAcquirer
	adapter   network.Adapter
	persister Persister
	logger    *slog.Logger

	// fetches deduplicates concurrent Fetch calls for the same key: if two
	// callers fetch the same key while a fetch is already in flight, the
	// second joins the first's call instead of re-reading every chunk.
	// Only the triggering caller's callback observes progress events.
	fetches callgroup.Group[string, []byte]
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger scopes this Manager's logging.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.Default(l) }
}

// WithPersister installs a Persister used by Remove to flush the index
// after a successful mutation.
func WithPersister(p Persister) Option {
	return func(m *Manager) { m.persister = p }
}

// New builds a Manager.
func New(index IndexAccessor, pads PadAcquirer, adapter network.Adapter, opts ...Option) *Manager {
	m := &Manager{index: index, pads: pads, adapter: adapter, logger: logging.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) scratchpadSize() (int, error) {
	var size uint32
	err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		size = idx.ScratchpadSize
		return nil
	})
	return int(size), err
}

func (m *Manager) keyExists(userKey string) (bool, error) {
	var exists bool
	err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		_, exists = idx.GetKeyInfo(userKey)
		return nil
	})
	return exists, err
}

// opLogger scopes the Manager's logger to a single Store/Fetch/Update call
// with a fresh operation id, so every slog line that call emits can be
// correlated across its concurrent chunk goroutines.
func (m *Manager) opLogger() *slog.Logger {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return m.logger.With("op_id", id.String())
}

// Store chunks data, acquires pads for it, writes every chunk concurrently
// and records the result in a new KeyInfo, marked complete (every pad
// Confirmed) once every chunk write succeeds. Fails KeyAlreadyExists if
// userKey is already present — use Update for that case.
func (m *Manager) Store(ctx context.Context, userKey string, data []byte, cb events.PutCallback) error {
	log := m.opLogger()
	log.Debug("store starting", "key", userKey, "bytes", len(data))

	exists, err := m.keyExists(userKey)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", mutanterr.ErrKeyAlreadyExists, userKey)
	}

	padSize, err := m.scratchpadSize()
	if err != nil {
		return err
	}

	chunks, err := chunker.Chunk(data, padSize)
	if err != nil {
		return err
	}
	n := len(chunks)
	log.Debug("store chunked", "key", userKey, "chunks", n)

	cont, err := events.InvokePut(ctx, cb, events.PutStarting{TotalChunks: n})
	if err != nil {
		return err
	}
	if !cont {
		return mutanterr.ErrOperationCancelled
	}

	if n == 0 {
		if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
			idx.InsertKeyInfo(userKey, masterindex.KeyInfo{
				Pads:       nil,
				DataSize:   0,
				Modified:   time.Now(),
				IsComplete: true,
			})
			return nil
		}); err != nil {
			return err
		}
		_, err := events.InvokePut(ctx, cb, events.PutComplete{})
		return err
	}

	acquired, err := m.pads.Acquire(n)
	if err != nil {
		return fmt.Errorf("%w: %v", mutanterr.ErrInsufficientFreePads, err)
	}
	if len(acquired) < n {
		m.pads.Release(acquired)
		return fmt.Errorf("%w: needed %d, acquired %d", mutanterr.ErrInsufficientFreePads, n, len(acquired))
	}

	padInfos := make([]masterindex.PadInfo, n)
	for i, a := range acquired {
		padInfos[i] = masterindex.PadInfo{Address: a.Address, Key: a.Key, ChunkIndex: uint32(i), Status: network.StatusGenerated, Counter: a.Counter}
	}
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		idx.InsertKeyInfo(userKey, masterindex.KeyInfo{Pads: padInfos, DataSize: uint64(len(data)), Modified: time.Now(), IsComplete: false})
		return nil
	}); err != nil {
		m.pads.Release(acquired)
		return err
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelOnce sync.Once
	var cancelledByCallback bool

	g, gctx := errgroup.WithContext(writeCtx)
	g.SetLimit(maxConcurrentChunkIO)
	for i := range chunks {
		i := i
		g.Go(func() error {
			_, err := m.adapter.PutPad(gctx, acquired[i].Key, chunks[i], network.StatusGenerated)
			if errors.Is(err, mutanterr.ErrInconsistentState) {
				// A pad drained from the free list already exists on-network; rewrite it in place.
				_, err = m.adapter.PutPad(gctx, acquired[i].Key, chunks[i], network.StatusWritten)
			}
			if err != nil {
				return mutanterr.Storage(err)
			}
			if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
				return idx.UpdatePadStatus(userKey, acquired[i].Address, network.StatusWritten)
			}); err != nil {
				return err
			}

			cont, err := events.InvokePut(gctx, cb, events.PutChunkWritten{ChunkIndex: i})
			if err != nil {
				return err
			}
			if !cont {
				cancelOnce.Do(func() {
					cancelledByCallback = true
					cancel()
				})
				return mutanterr.ErrOperationCancelled
			}
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		m.index.WithLock(func(idx *masterindex.MasterIndex) error {
			idx.RemoveKeyInfo(userKey)
			return nil
		})
		m.pads.Release(acquired)
		if cancelledByCallback {
			log.Debug("store cancelled by callback", "key", userKey)
			return mutanterr.ErrOperationCancelled
		}
		log.Error("store failed", "key", userKey, "error", werr)
		return werr
	}

	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		for _, a := range acquired {
			if err := idx.UpdatePadStatus(userKey, a.Address, network.StatusConfirmed); err != nil {
				return err
			}
		}
		info, _ := idx.GetKeyInfo(userKey)
		info.PopulatedPadsCount = uint32(len(info.Pads))
		idx.InsertKeyInfo(userKey, info)
		return idx.MarkKeyComplete(userKey)
	}); err != nil {
		return err
	}

	log.Debug("store complete", "key", userKey)
	_, err = events.InvokePut(ctx, cb, events.PutComplete{})
	return err
}

// Reserve acquires n pads (draining already-free pads before minting new
// ones), materializes each on the network with empty content and returns
// them all to the free list without associating them to any key, so the
// free list afterwards holds at least n pads. A later Store or Update that
// needs fresh pads then drains the free list instead of minting and writing
// under time pressure.
func (m *Manager) Reserve(ctx context.Context, n int, cb events.PutCallback) error {
	if n <= 0 {
		return nil
	}

	cont, err := events.InvokePut(ctx, cb, events.PutReservingScratchpads{Needed: n})
	if err != nil {
		return err
	}
	if !cont {
		return mutanterr.ErrOperationCancelled
	}

	padSize, err := m.scratchpadSize()
	if err != nil {
		return err
	}

	var stats masterindex.StorageStats
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		s, err := idx.GetStats()
		stats = s
		return err
	}); err != nil {
		return err
	}

	confirmEvent := events.PutConfirmReservation{
		Needed:             n,
		DataSize:           0,
		TotalSpace:         uint64(n) * uint64(padSize),
		FreeSpace:          uint64(stats.FreePads) * uint64(padSize),
		CurrentScratchpads: stats.OccupiedPads + stats.FreePads,
		EstimatedCost:      float64(n),
	}
	cont, err = events.InvokePut(ctx, cb, confirmEvent)
	if err != nil {
		return err
	}
	if !cont {
		return mutanterr.ErrOperationCancelled
	}

	acquired, err := m.pads.Acquire(n)
	if err != nil {
		return fmt.Errorf("%w: %v", mutanterr.ErrInsufficientFreePads, err)
	}
	if len(acquired) < n {
		m.pads.Release(acquired)
		return fmt.Errorf("%w: needed %d, acquired %d", mutanterr.ErrInsufficientFreePads, n, len(acquired))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChunkIO)
	for i := range acquired {
		i := i
		g.Go(func() error {
			_, err := m.adapter.PutPad(gctx, acquired[i].Key, []byte{}, network.StatusGenerated)
			if errors.Is(err, mutanterr.ErrInconsistentState) {
				// A pad drained from the free list already exists on-network; rewrite it in place.
				_, err = m.adapter.PutPad(gctx, acquired[i].Key, []byte{}, network.StatusWritten)
			}
			if err != nil {
				return mutanterr.Storage(err)
			}
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		m.pads.Release(acquired)
		return werr
	}

	if err := m.pads.Release(acquired); err != nil {
		return err
	}

	_, err = events.InvokePut(ctx, cb, events.PutComplete{})
	return err
}

// Fetch reassembles the bytes stored under userKey. Concurrent Fetch calls
// for the same key share a single in-flight read (see Manager.fetches); a
// joining caller's callback is never invoked.
func (m *Manager) Fetch(ctx context.Context, userKey string, cb events.GetCallback) ([]byte, error) {
	r := <-m.fetches.DoChan(userKey, func() ([]byte, error) {
		return m.fetchOnce(ctx, userKey, cb)
	})
	return r.Val, r.Err
}

func (m *Manager) fetchOnce(ctx context.Context, userKey string, cb events.GetCallback) ([]byte, error) {
	log := m.opLogger()
	log.Debug("fetch starting", "key", userKey)

	var info masterindex.KeyInfo
	var found bool
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		info, found = idx.GetKeyInfo(userKey)
		return nil
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", mutanterr.ErrKeyNotFound, userKey)
	}

	if cont, err := events.InvokeGet(ctx, cb, events.GetIndexLookup{}); err != nil {
		return nil, err
	} else if !cont {
		return nil, mutanterr.ErrOperationCancelled
	}

	if !info.IsComplete {
		return nil, fmt.Errorf("%w: %s", mutanterr.ErrUploadIncomplete, userKey)
	}

	n := len(info.Pads)
	cont, err := events.InvokeGet(ctx, cb, events.GetStarting{TotalChunks: n})
	if err != nil {
		return nil, err
	}
	if !cont {
		return nil, mutanterr.ErrOperationCancelled
	}
	if n == 0 {
		if _, err := events.InvokeGet(ctx, cb, events.GetComplete{}); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}

	pads := make([]masterindex.PadInfo, n)
	for _, p := range info.Pads {
		if int(p.ChunkIndex) >= n {
			return nil, fmt.Errorf("%w: chunk index %d out of range for %d pads", mutanterr.ErrInconsistentState, p.ChunkIndex, n)
		}
		pads[p.ChunkIndex] = p
	}

	slots := make([][]byte, n)
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(fetchCtx)
	g.SetLimit(maxConcurrentChunkIO)
	var cancelOnce sync.Once
	var cancelledByCallback bool

	for i, pad := range pads {
		i, pad := i, pad
		g.Go(func() error {
			data, err := m.adapter.GetPad(gctx, pad.Address)
			if err != nil {
				return mutanterr.Storage(err)
			}
			slots[i] = data

			cont, err := events.InvokeGet(gctx, cb, events.GetChunkFetched{ChunkIndex: i})
			if err != nil {
				return err
			}
			if !cont {
				cancelOnce.Do(func() {
					cancelledByCallback = true
					cancel()
				})
				return mutanterr.ErrOperationCancelled
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if cancelledByCallback {
			log.Debug("fetch cancelled by callback", "key", userKey)
			return nil, mutanterr.ErrOperationCancelled
		}
		log.Error("fetch failed", "key", userKey, "error", err)
		return nil, err
	}

	if _, err := events.InvokeGet(ctx, cb, events.GetReassembling{}); err != nil {
		return nil, err
	}
	out, err := chunker.Reassemble(slots, info.DataSize)
	if err != nil {
		return nil, err
	}
	if _, err := events.InvokeGet(ctx, cb, events.GetComplete{}); err != nil {
		return nil, err
	}
	log.Debug("fetch complete", "key", userKey, "bytes", len(out))
	return out, nil
}

// Remove deletes userKey's entry, if present, and returns its pads to the
// free list. Idempotent: removing an already-absent key succeeds.
func (m *Manager) Remove(ctx context.Context, userKey string) error {
	var removed masterindex.KeyInfo
	var existed bool
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		removed, existed = idx.RemoveKeyInfo(userKey)
		return nil
	}); err != nil {
		return err
	}
	if !existed {
		return nil
	}

	if len(removed.Pads) > 0 {
		release := make([]padlifecycle.AcquiredPad, len(removed.Pads))
		for i, p := range removed.Pads {
			release[i] = padlifecycle.AcquiredPad{Address: p.Address, Key: p.Key, Counter: p.Counter}
		}
		if err := m.pads.Release(release); err != nil {
			return err
		}
	}

	if m.persister != nil {
		if err := m.persister.Save(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Update rewrites userKey's content, growing or shrinking its pad list as
// needed, forcing pad rewrites past the normal forward-only lifecycle.
// Fails KeyNotFound if userKey is absent; use Store to create it.
// Compensation policy on failure: the KeyInfo is left with
// is_complete=false for a later sync+resume rather than rolled back
// entirely.
func (m *Manager) Update(ctx context.Context, userKey string, data []byte, cb events.PutCallback) error {
	log := m.opLogger()
	log.Debug("update starting", "key", userKey, "bytes", len(data))

	var oldInfo masterindex.KeyInfo
	var found bool
	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		oldInfo, found = idx.GetKeyInfo(userKey)
		return nil
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", mutanterr.ErrKeyNotFound, userKey)
	}

	padSize, err := m.scratchpadSize()
	if err != nil {
		return err
	}
	chunks, err := chunker.Chunk(data, padSize)
	if err != nil {
		return err
	}
	nNew := len(chunks)

	cont, err := events.InvokePut(ctx, cb, events.PutStarting{TotalChunks: nNew})
	if err != nil {
		return err
	}
	if !cont {
		return mutanterr.ErrOperationCancelled
	}

	oldN := len(oldInfo.Pads)
	reuseCount := oldN
	if nNew < reuseCount {
		reuseCount = nNew
	}

	newPads := make([]masterindex.PadInfo, nNew)
	copy(newPads, oldInfo.Pads[:reuseCount])
	for i := range newPads[:reuseCount] {
		newPads[i].ChunkIndex = uint32(i)
	}

	var toRelease []padlifecycle.AcquiredPad
	if oldN > nNew {
		for _, p := range oldInfo.Pads[nNew:] {
			toRelease = append(toRelease, padlifecycle.AcquiredPad{Address: p.Address, Key: p.Key, Counter: p.Counter})
		}
	}

	var acquiredExtra []padlifecycle.AcquiredPad
	if nNew > oldN {
		acquiredExtra, err = m.pads.Acquire(nNew - oldN)
		if err != nil {
			return fmt.Errorf("%w: %v", mutanterr.ErrInsufficientFreePads, err)
		}
		for i, a := range acquiredExtra {
			idx := oldN + i
			newPads[idx] = masterindex.PadInfo{Address: a.Address, Key: a.Key, ChunkIndex: uint32(idx), Status: network.StatusGenerated, Counter: a.Counter}
		}
	}

	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		info := oldInfo
		info.Pads = newPads
		info.DataSize = uint64(len(data))
		info.Modified = time.Now()
		info.IsComplete = false
		idx.InsertKeyInfo(userKey, info)
		return nil
	}); err != nil {
		if len(acquiredExtra) > 0 {
			m.pads.Release(acquiredExtra)
		}
		return err
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(writeCtx)
	g.SetLimit(maxConcurrentChunkIO)

	for i := range chunks {
		i := i
		reused := i < reuseCount
		g.Go(func() error {
			hint := network.StatusGenerated
			if reused {
				hint = network.StatusWritten
			}
			_, err := m.adapter.PutPad(gctx, newPads[i].Key, chunks[i], hint)
			if !reused && errors.Is(err, mutanterr.ErrInconsistentState) {
				// A pad drained from the free list already exists on-network; rewrite it in place.
				_, err = m.adapter.PutPad(gctx, newPads[i].Key, chunks[i], network.StatusWritten)
			}
			if err != nil {
				return mutanterr.Storage(err)
			}

			if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
				if reused {
					return idx.ForceRewritePad(userKey, newPads[i].Address)
				}
				return idx.UpdatePadStatus(userKey, newPads[i].Address, network.StatusWritten)
			}); err != nil {
				return err
			}

			cont, err := events.InvokePut(gctx, cb, events.PutChunkWritten{ChunkIndex: i})
			if err != nil {
				return err
			}
			if !cont {
				return mutanterr.ErrOperationCancelled
			}
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		// Policy (b): leave the KeyInfo as-is (is_complete=false) for a
		// later sync+resume; do not release anything acquired so far.
		if errors.Is(werr, mutanterr.ErrOperationCancelled) {
			log.Debug("update cancelled by callback", "key", userKey)
			return mutanterr.ErrOperationCancelled
		}
		log.Error("update failed", "key", userKey, "error", werr)
		return werr
	}

	if err := m.index.WithLock(func(idx *masterindex.MasterIndex) error {
		for _, p := range newPads {
			if err := idx.UpdatePadStatus(userKey, p.Address, network.StatusConfirmed); err != nil {
				return err
			}
		}
		info, _ := idx.GetKeyInfo(userKey)
		info.PopulatedPadsCount = uint32(len(info.Pads))
		idx.InsertKeyInfo(userKey, info)
		return idx.MarkKeyComplete(userKey)
	}); err != nil {
		return err
	}

	if len(toRelease) > 0 {
		if err := m.pads.Release(toRelease); err != nil {
			return err
		}
	}

	log.Debug("update complete", "key", userKey)
	_, err = events.InvokePut(ctx, cb, events.PutComplete{})
	return err
}
