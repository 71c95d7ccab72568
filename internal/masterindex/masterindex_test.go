package masterindex

import (
	"errors"
	"testing"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

func addr(b byte) network.Address {
	var a network.Address
	a[0] = b
	return a
}

func TestGetKeyInfoAbsent(t *testing.T) {
	m := New(4)
	if _, ok := m.GetKeyInfo("nope"); ok {
		t.Fatalf("expected absent KeyInfo to report ok=false")
	}
}

func TestInsertGetRemoveKeyInfo(t *testing.T) {
	m := New(4)
	info := KeyInfo{DataSize: 10, Pads: []PadInfo{{Address: addr(1), ChunkIndex: 0, Status: network.StatusConfirmed}}}
	m.InsertKeyInfo("k", info)

	got, ok := m.GetKeyInfo("k")
	if !ok || got.DataSize != 10 {
		t.Fatalf("expected inserted KeyInfo back, got %+v ok=%v", got, ok)
	}

	removed, ok := m.RemoveKeyInfo("k")
	if !ok || removed.DataSize != 10 {
		t.Fatalf("expected RemoveKeyInfo to return prior KeyInfo")
	}
	if _, ok := m.GetKeyInfo("k"); ok {
		t.Fatalf("expected key gone after removal")
	}
}

// Scenario 6 (literal): duplicate free-pad add by address is silently
// dropped, keeping the first entry.
func TestAddFreePadDedupesByAddress(t *testing.T) {
	m := New(4)
	x := addr(1)
	var k1, k2 network.Key
	k1[0], k2[0] = 1, 2

	m.AddFreePad(x, k1, 1)
	m.AddFreePad(x, k2, 2)

	if len(m.FreePads) != 1 {
		t.Fatalf("expected exactly one free pad entry for duplicate address, got %d", len(m.FreePads))
	}
	if m.FreePads[0].Counter != 1 {
		t.Fatalf("expected the first insert to win, got counter %d", m.FreePads[0].Counter)
	}
}

func TestTakeFreePadLIFO(t *testing.T) {
	m := New(4)
	var k network.Key
	m.AddFreePad(addr(1), k, 1)
	m.AddFreePad(addr(2), k, 1)

	pad, ok := m.TakeFreePad()
	if !ok || pad.Address != addr(2) {
		t.Fatalf("expected LIFO take to return the most recently added pad")
	}
	if len(m.FreePads) != 1 {
		t.Fatalf("expected one pad left in free list")
	}
}

func TestTakeFreePadEmpty(t *testing.T) {
	m := New(4)
	if _, ok := m.TakeFreePad(); ok {
		t.Fatalf("expected ok=false on empty free list")
	}
}

func TestAddPendingPadsDedupes(t *testing.T) {
	m := New(4)
	var k network.Key
	added := m.AddPendingPads([]PendingPad{{Address: addr(1), Key: k}, {Address: addr(1), Key: k}, {Address: addr(2), Key: k}})
	if added != 2 {
		t.Fatalf("expected 2 pads added (one deduped), got %d", added)
	}
	if len(m.PendingVerificationPads) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(m.PendingVerificationPads))
	}
}

func TestTakePendingPadsDrains(t *testing.T) {
	m := New(4)
	var k network.Key
	m.AddPendingPads([]PendingPad{{Address: addr(1), Key: k}})

	drained := m.TakePendingPads()
	if len(drained) != 1 {
		t.Fatalf("expected one drained pad")
	}
	if len(m.PendingVerificationPads) != 0 {
		t.Fatalf("expected pending list empty after drain")
	}
}

func TestRemoveFromPending(t *testing.T) {
	m := New(4)
	var k network.Key
	m.AddPendingPads([]PendingPad{{Address: addr(1), Key: k}, {Address: addr(2), Key: k}})

	m.RemoveFromPending(addr(1))
	if len(m.PendingVerificationPads) != 1 || m.PendingVerificationPads[0].Address != addr(2) {
		t.Fatalf("expected only addr(2) left pending")
	}
}

func TestUpdatePadStatusForwardTransition(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), ChunkIndex: 0, Status: network.StatusGenerated}}})

	if err := m.UpdatePadStatus("k", addr(1), network.StatusAllocated); err != nil {
		t.Fatalf("expected forward transition to succeed: %v", err)
	}
	info, _ := m.GetKeyInfo("k")
	if info.Pads[0].Status != network.StatusAllocated {
		t.Fatalf("expected status Allocated, got %s", info.Pads[0].Status)
	}
}

func TestUpdatePadStatusRejectsBackward(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), ChunkIndex: 0, Status: network.StatusWritten}}})

	err := m.UpdatePadStatus("k", addr(1), network.StatusGenerated)
	if !errors.Is(err, mutanterr.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState on backward transition, got %v", err)
	}
}

func TestUpdatePadStatusRejectsSideways(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), ChunkIndex: 0, Status: network.StatusWritten}}})

	if err := m.UpdatePadStatus("k", addr(1), network.StatusWritten); !errors.Is(err, mutanterr.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState on no-op transition, got %v", err)
	}
}

func TestUpdatePadStatusKeyNotFound(t *testing.T) {
	m := New(4)
	if err := m.UpdatePadStatus("missing", addr(1), network.StatusAllocated); !errors.Is(err, mutanterr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestUpdatePadStatusPadNotInKey(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), ChunkIndex: 0, Status: network.StatusGenerated}}})

	if err := m.UpdatePadStatus("k", addr(9), network.StatusAllocated); !errors.Is(err, mutanterr.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState for unknown pad address, got %v", err)
	}
}

func TestMarkKeyComplete(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{IsComplete: false})

	if err := m.MarkKeyComplete("k"); err != nil {
		t.Fatalf("MarkKeyComplete: %v", err)
	}
	info, _ := m.GetKeyInfo("k")
	if !info.IsComplete {
		t.Fatalf("expected IsComplete=true")
	}
}

func TestMarkKeyCompleteKeyNotFound(t *testing.T) {
	m := New(4)
	if err := m.MarkKeyComplete("missing"); !errors.Is(err, mutanterr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestResetIndexPreservesScratchpadSize(t *testing.T) {
	m := New(64)
	m.InsertKeyInfo("k", KeyInfo{DataSize: 1})
	var k network.Key
	m.AddFreePad(addr(1), k, 1)

	m.ResetIndex()

	if m.ScratchpadSize != 64 {
		t.Fatalf("expected scratchpad size preserved, got %d", m.ScratchpadSize)
	}
	if len(m.Keys) != 0 || len(m.FreePads) != 0 {
		t.Fatalf("expected keys and free pads cleared")
	}
}

func TestGetStatsRequiresScratchpadSize(t *testing.T) {
	m := &MasterIndex{Keys: make(map[string]KeyInfo)}
	if _, err := m.GetStats(); !errors.Is(err, mutanterr.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState for zero scratchpad size, got %v", err)
	}
}

func TestGetStats(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{DataSize: 10, Pads: []PadInfo{{Address: addr(1)}, {Address: addr(2)}}})
	var k network.Key
	m.AddFreePad(addr(3), k, 1)
	m.AddPendingPads([]PendingPad{{Address: addr(4), Key: k}})

	stats, err := m.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalKeys != 1 || stats.OccupiedPads != 2 || stats.FreePads != 1 || stats.PendingPads != 1 || stats.TotalDataSize != 10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := New(4)
	var k network.Key
	k[0] = 9
	m.InsertKeyInfo("k", KeyInfo{DataSize: 4, Pads: []PadInfo{{Address: addr(1), Key: k, ChunkIndex: 0, Status: network.StatusConfirmed}}, IsComplete: true})
	m.AddFreePad(addr(5), k, 3)

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ScratchpadSize != 4 {
		t.Fatalf("expected scratchpad size 4, got %d", got.ScratchpadSize)
	}
	info, ok := got.GetKeyInfo("k")
	if !ok || info.DataSize != 4 || !info.IsComplete {
		t.Fatalf("expected round-tripped KeyInfo, got %+v ok=%v", info, ok)
	}
	if len(got.FreePads) != 1 || got.FreePads[0].Address != addr(5) {
		t.Fatalf("expected round-tripped free pad")
	}
}

func TestClonePreservesCounterAndIsIndependent(t *testing.T) {
	m := New(4)
	var k network.Key
	k[0] = 9
	m.InsertKeyInfo("k", KeyInfo{DataSize: 4, Pads: []PadInfo{{Address: addr(1), Key: k, ChunkIndex: 0, Status: network.StatusConfirmed, Counter: 3}}, IsComplete: true})
	m.AddFreePad(addr(5), k, 7)

	clone, err := m.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	info, ok := clone.GetKeyInfo("k")
	if !ok || info.Pads[0].Counter != 3 {
		t.Fatalf("expected cloned pad to carry counter 3, got %+v ok=%v", info, ok)
	}
	if len(clone.FreePads) != 1 || clone.FreePads[0].Counter != 7 {
		t.Fatalf("expected cloned free pad to carry counter 7, got %+v", clone.FreePads)
	}

	// Mutating the original after cloning must not be visible on the clone.
	m.InsertKeyInfo("k2", KeyInfo{DataSize: 1})
	if _, ok := clone.GetKeyInfo("k2"); ok {
		t.Fatalf("expected clone to be unaffected by mutation of the original")
	}
}

func TestPadInfoCounterRoundTripsThroughMarshal(t *testing.T) {
	m := New(4)
	var k network.Key
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), Key: k, ChunkIndex: 0, Status: network.StatusWritten, Counter: 5}}})

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	info, ok := got.GetKeyInfo("k")
	if !ok || info.Pads[0].Counter != 5 {
		t.Fatalf("expected pad counter 5 to round-trip, got %+v ok=%v", info, ok)
	}
}

func TestForceRewritePadIncrementsCounter(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), ChunkIndex: 0, Status: network.StatusConfirmed, Counter: 2}}})

	if err := m.ForceRewritePad("k", addr(1)); err != nil {
		t.Fatalf("ForceRewritePad: %v", err)
	}
	info, _ := m.GetKeyInfo("k")
	if info.Pads[0].Status != network.StatusWritten {
		t.Fatalf("expected status Written after force rewrite, got %s", info.Pads[0].Status)
	}
	if info.Pads[0].Counter != 3 {
		t.Fatalf("expected counter incremented to 3, got %d", info.Pads[0].Counter)
	}
}

func TestOccupiedAddresses(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1)}, {Address: addr(2)}}})

	occupied := m.OccupiedAddresses()
	if len(occupied) != 2 {
		t.Fatalf("expected 2 occupied addresses, got %d", len(occupied))
	}
	if _, ok := occupied[addr(1)]; !ok {
		t.Fatalf("expected addr(1) occupied")
	}
}
