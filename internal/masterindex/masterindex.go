// Package masterindex is the in-memory data model owning the key→pads
// mapping, the free-pad list, and the pending-verification list, plus its
// durable CBOR encoding. Every method here is a pure mutation over the
// struct's own fields; callers (internal/indexmgr) are responsible for
// serializing access through the master lock — this package does no
// locking of its own.
package masterindex

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// PadInfo is a single chunk's pad record within a KeyInfo. Key is carried
// alongside Address (not looked up from a side table) so remove/update can
// release the pad without losing the secret needed to rewrite it.
type PadInfo struct {
	Address    network.Address   `cbor:"address"`
	Key        network.Key       `cbor:"key"`
	ChunkIndex uint32            `cbor:"chunk_index"`
	Status     network.PadStatus `cbor:"status"`
	Counter    uint64            `cbor:"counter"`
}

// KeyInfo is the per-user-key record inside the MasterIndex.
type KeyInfo struct {
	Pads               []PadInfo `cbor:"pads"`
	DataSize           uint64    `cbor:"data_size"`
	Modified           time.Time `cbor:"modified"`
	IsComplete         bool      `cbor:"is_complete"`
	PopulatedPadsCount uint32    `cbor:"populated_pads_count"`
}

// FreePad is an idle pad available for reuse, together with the counter
// the network layer uses to order rewrites.
type FreePad struct {
	Address network.Address `cbor:"address"`
	Key     network.Key     `cbor:"key"`
	Counter uint64          `cbor:"counter"`
}

// PendingPad is a pad written but not yet read back successfully.
type PendingPad struct {
	Address network.Address `cbor:"address"`
	Key     network.Key     `cbor:"key"`
}

// KeyDetails is the listing projection of a KeyInfo, named by its user key.
type KeyDetails struct {
	Key                string    `cbor:"key"`
	DataSize           uint64    `cbor:"data_size"`
	NumPads            int       `cbor:"num_pads"`
	IsComplete         bool      `cbor:"is_complete"`
	PopulatedPadsCount uint32    `cbor:"populated_pads_count"`
	Modified           time.Time `cbor:"modified"`
}

// StorageStats summarizes pad usage across the whole index.
type StorageStats struct {
	TotalKeys      int    `cbor:"total_keys"`
	OccupiedPads   int    `cbor:"occupied_pads"`
	FreePads       int    `cbor:"free_pads"`
	PendingPads    int    `cbor:"pending_pads"`
	TotalDataSize  uint64 `cbor:"total_data_size"`
	ScratchpadSize uint32 `cbor:"scratchpad_size"`
}

// MasterIndex is the single authoritative mapping from user keys to pads
// plus the free/pending pools. Zero value is not usable; build one with
// New.
type MasterIndex struct {
	Keys                    map[string]KeyInfo `cbor:"keys"`
	FreePads                []FreePad          `cbor:"free_pads"`
	PendingVerificationPads []PendingPad       `cbor:"pending_verification_pads"`
	ScratchpadSize          uint32             `cbor:"scratchpad_size"`
}

// New builds an empty MasterIndex for the given fixed pad size.
// scratchpadSize must be > 0 and never changes for the life of the index.
func New(scratchpadSize uint32) *MasterIndex {
	return &MasterIndex{
		Keys:           make(map[string]KeyInfo),
		ScratchpadSize: scratchpadSize,
	}
}

// Marshal encodes m as CBOR, the persisted form of the index scratchpad.
func (m *MasterIndex) Marshal() ([]byte, error) {
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mutanterr.ErrSerialization, err)
	}
	return data, nil
}

// Unmarshal decodes a CBOR-encoded MasterIndex blob into m.
func Unmarshal(data []byte) (*MasterIndex, error) {
	var m MasterIndex
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", mutanterr.ErrDeserialization, err)
	}
	if m.Keys == nil {
		m.Keys = make(map[string]KeyInfo)
	}
	return &m, nil
}

// Clone returns a deep copy of m, safe to read without the master lock
// held. Built on the same CBOR encoding used for the durable copy, so
// cloning can never drift from what actually gets persisted.
func (m *MasterIndex) Clone() (*MasterIndex, error) {
	data, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// GetKeyInfo returns a copy of the KeyInfo for key, or ok=false if absent.
func (m *MasterIndex) GetKeyInfo(key string) (KeyInfo, bool) {
	info, ok := m.Keys[key]
	return info, ok
}

// InsertKeyInfo replaces or inserts the KeyInfo for key.
func (m *MasterIndex) InsertKeyInfo(key string, info KeyInfo) {
	m.Keys[key] = info
}

// RemoveKeyInfo removes key's entry and returns the prior KeyInfo, if any.
func (m *MasterIndex) RemoveKeyInfo(key string) (KeyInfo, bool) {
	info, ok := m.Keys[key]
	if ok {
		delete(m.Keys, key)
	}
	return info, ok
}

// ListKeys returns a snapshot of every user key currently indexed.
func (m *MasterIndex) ListKeys() []string {
	keys := make([]string, 0, len(m.Keys))
	for k := range m.Keys {
		keys = append(keys, k)
	}
	return keys
}

// ListDetails returns a KeyDetails snapshot for every indexed key.
func (m *MasterIndex) ListDetails() []KeyDetails {
	details := make([]KeyDetails, 0, len(m.Keys))
	for k, info := range m.Keys {
		details = append(details, KeyDetails{
			Key:                k,
			DataSize:           info.DataSize,
			NumPads:            len(info.Pads),
			IsComplete:         info.IsComplete,
			PopulatedPadsCount: info.PopulatedPadsCount,
			Modified:           info.Modified,
		})
	}
	return details
}

// GetStats returns aggregate pad usage. Fails InconsistentState if the
// index was never initialized with a scratchpad size.
func (m *MasterIndex) GetStats() (StorageStats, error) {
	if m.ScratchpadSize == 0 {
		return StorageStats{}, fmt.Errorf("%w: scratchpad size is zero", mutanterr.ErrInconsistentState)
	}
	stats := StorageStats{
		TotalKeys:      len(m.Keys),
		FreePads:       len(m.FreePads),
		PendingPads:    len(m.PendingVerificationPads),
		ScratchpadSize: m.ScratchpadSize,
	}
	for _, info := range m.Keys {
		stats.OccupiedPads += len(info.Pads)
		stats.TotalDataSize += info.DataSize
	}
	return stats, nil
}

// AddFreePad appends (addr, key, counter) to the free list, rejecting the
// insert silently if addr is already present.
func (m *MasterIndex) AddFreePad(addr network.Address, key network.Key, counter uint64) {
	for _, p := range m.FreePads {
		if p.Address == addr {
			return
		}
	}
	m.FreePads = append(m.FreePads, FreePad{Address: addr, Key: key, Counter: counter})
}

// TakeFreePad pops the most recently added free pad (LIFO).
func (m *MasterIndex) TakeFreePad() (FreePad, bool) {
	n := len(m.FreePads)
	if n == 0 {
		return FreePad{}, false
	}
	pad := m.FreePads[n-1]
	m.FreePads = m.FreePads[:n-1]
	return pad, true
}

// ListFreePads returns a snapshot of the free list, for callers that need to
// inspect it without draining (e.g. purge's staleness scan).
func (m *MasterIndex) ListFreePads() []FreePad {
	out := make([]FreePad, len(m.FreePads))
	copy(out, m.FreePads)
	return out
}

// RemoveFreePad drops the free-list entry for addr, if present, reporting
// whether it was found.
func (m *MasterIndex) RemoveFreePad(addr network.Address) bool {
	for i, p := range m.FreePads {
		if p.Address == addr {
			m.FreePads = append(m.FreePads[:i], m.FreePads[i+1:]...)
			return true
		}
	}
	return false
}

// AddPendingPads appends entries not already present (by address) and
// returns how many were actually added.
func (m *MasterIndex) AddPendingPads(pads []PendingPad) int {
	added := 0
	for _, p := range pads {
		exists := false
		for _, existing := range m.PendingVerificationPads {
			if existing.Address == p.Address {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		m.PendingVerificationPads = append(m.PendingVerificationPads, p)
		added++
	}
	return added
}

// TakePendingPads drains and returns every pending-verification entry.
func (m *MasterIndex) TakePendingPads() []PendingPad {
	pads := m.PendingVerificationPads
	m.PendingVerificationPads = nil
	return pads
}

// RemoveFromPending removes the pending entry for addr, if present.
func (m *MasterIndex) RemoveFromPending(addr network.Address) {
	for i, p := range m.PendingVerificationPads {
		if p.Address == addr {
			m.PendingVerificationPads = append(m.PendingVerificationPads[:i], m.PendingVerificationPads[i+1:]...)
			return
		}
	}
}

// canAdvance reports whether the PadStatus transition from -> to is a legal
// forward step in Generated → Allocated → Written → Confirmed.
func canAdvance(from, to network.PadStatus) bool {
	return to > from
}

// UpdatePadStatus mutates the PadInfo for addr within key's KeyInfo to
// newStatus. Backward or sideways transitions fail InconsistentState;
// newStatus must be strictly greater than the pad's current status.
func (m *MasterIndex) UpdatePadStatus(key string, addr network.Address, newStatus network.PadStatus) error {
	info, ok := m.Keys[key]
	if !ok {
		return fmt.Errorf("%w: %s", mutanterr.ErrKeyNotFound, key)
	}
	for i, pad := range info.Pads {
		if pad.Address != addr {
			continue
		}
		if !canAdvance(pad.Status, newStatus) {
			return fmt.Errorf("%w: pad %s cannot move from %s to %s", mutanterr.ErrInconsistentState, addr, pad.Status, newStatus)
		}
		info.Pads[i].Status = newStatus
		m.Keys[key] = info
		return nil
	}
	return fmt.Errorf("%w: pad %s not present in key %s", mutanterr.ErrInconsistentState, addr, key)
}

// MarkKeyComplete sets IsComplete on key's KeyInfo.
func (m *MasterIndex) MarkKeyComplete(key string) error {
	info, ok := m.Keys[key]
	if !ok {
		return fmt.Errorf("%w: %s", mutanterr.ErrKeyNotFound, key)
	}
	info.IsComplete = true
	m.Keys[key] = info
	return nil
}

// ResetIndex reinitializes the index to its default empty state, preserving
// ScratchpadSize.
func (m *MasterIndex) ResetIndex() {
	m.Keys = make(map[string]KeyInfo)
	m.FreePads = nil
	m.PendingVerificationPads = nil
}

// ForceRewritePad resets the PadInfo for addr within key directly to
// Written, bypassing the forward-only check in UpdatePadStatus. update()
// legitimately rewrites an existing pad's content in place, which
// regresses a Confirmed pad back to unconfirmed — a deliberate content
// change, not a violated invariant.
func (m *MasterIndex) ForceRewritePad(key string, addr network.Address) error {
	info, ok := m.Keys[key]
	if !ok {
		return fmt.Errorf("%w: %s", mutanterr.ErrKeyNotFound, key)
	}
	for i, pad := range info.Pads {
		if pad.Address != addr {
			continue
		}
		info.Pads[i].Status = network.StatusWritten
		info.Pads[i].Counter++
		m.Keys[key] = info
		return nil
	}
	return fmt.Errorf("%w: pad %s not present in key %s", mutanterr.ErrInconsistentState, addr, key)
}

// OccupiedAddresses returns the set of pad addresses currently bound to any
// KeyInfo, used by Sync to exclude occupied addresses from the merged free
// list.
func (m *MasterIndex) OccupiedAddresses() map[network.Address]struct{} {
	occupied := make(map[network.Address]struct{})
	for _, info := range m.Keys {
		for _, pad := range info.Pads {
			occupied[pad.Address] = struct{}{}
		}
	}
	return occupied
}
