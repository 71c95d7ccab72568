// Package indexsync merges a locally cached MasterIndex with the remote
// index scratchpad.
package indexsync

import (
	"context"
	"errors"
	"log/slog"

	"mutant/internal/logging"
	"mutant/internal/masterindex"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// RemoteIndex is the capability indexsync needs from the Index Manager:
// local access under the master lock, a remote-only fetch, and the
// ability to install and persist a merged result.
type RemoteIndex interface {
	WithLock(fn func(*masterindex.MasterIndex) error) error
	FetchRemoteCopy(ctx context.Context) (*masterindex.MasterIndex, error)
	ReplaceAndSave(ctx context.Context, idx *masterindex.MasterIndex) error
	Save(ctx context.Context) error
}

// Syncer drives the merge between a local and remote MasterIndex.
type Syncer struct {
	index  RemoteIndex
	logger *slog.Logger
}

// Option configures a Syncer at construction time.
type Option func(*Syncer)

// WithLogger scopes this Syncer's logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = logging.Default(l) }
}

// New builds a Syncer.
func New(index RemoteIndex, opts ...Option) *Syncer {
	s := &Syncer{index: index, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync merges the local index with the remote index scratchpad and
// persists the result. If pushForce is set, the fetch is skipped and the
// local index is written verbatim as the new remote state. If the remote
// scratchpad is absent, Sync returns mutanterr.ErrMasterIndexNotFound; the
// caller decides whether to bootstrap by push-forcing the local copy.
func (s *Syncer) Sync(ctx context.Context, pushForce bool) error {
	if pushForce {
		return s.index.Save(ctx)
	}

	var local *masterindex.MasterIndex
	if err := s.index.WithLock(func(idx *masterindex.MasterIndex) error {
		clone, err := idx.Clone()
		if err != nil {
			return err
		}
		local = clone
		return nil
	}); err != nil {
		return err
	}

	remote, err := s.index.FetchRemoteCopy(ctx)
	if err != nil {
		if errors.Is(err, mutanterr.ErrMasterIndexNotFound) {
			return err
		}
		return mutanterr.Storage(err)
	}

	merged := Merge(s.logger, local, remote)
	return s.index.ReplaceAndSave(ctx, merged)
}

// Merge reconciles a local and remote MasterIndex into the new
// authoritative state: remote wins on a key present in both, free and
// pending pad lists are unioned by address, and any pad already occupied
// by a key is excluded from the merged free list.
func Merge(logger *slog.Logger, local, remote *masterindex.MasterIndex) *masterindex.MasterIndex {
	if logger == nil {
		logger = logging.Discard()
	}

	merged := masterindex.New(remote.ScratchpadSize)
	if local.ScratchpadSize != 0 && local.ScratchpadSize != remote.ScratchpadSize {
		logger.Warn("local scratchpad size differs from remote, remote wins",
			"local", local.ScratchpadSize, "remote", remote.ScratchpadSize)
	}

	for key, info := range remote.Keys {
		merged.InsertKeyInfo(key, info)
	}
	for key, info := range local.Keys {
		if _, present := merged.Keys[key]; present {
			logger.Debug("key present on both sides, remote wins", "key", key)
			continue
		}
		merged.InsertKeyInfo(key, info)
	}

	occupied := merged.OccupiedAddresses()
	seenFree := make(map[network.Address]bool)
	unionFreePads := func(pads []masterindex.FreePad) {
		for _, p := range pads {
			if _, isOccupied := occupied[p.Address]; isOccupied {
				continue
			}
			if seenFree[p.Address] {
				continue
			}
			seenFree[p.Address] = true
			merged.FreePads = append(merged.FreePads, p)
		}
	}
	unionFreePads(remote.FreePads)
	unionFreePads(local.FreePads)

	seenPending := make(map[network.Address]bool)
	unionPending := func(pads []masterindex.PendingPad) {
		for _, p := range pads {
			if seenPending[p.Address] {
				continue
			}
			seenPending[p.Address] = true
			merged.PendingVerificationPads = append(merged.PendingVerificationPads, p)
		}
	}
	unionPending(remote.PendingVerificationPads)
	unionPending(local.PendingVerificationPads)

	return merged
}
