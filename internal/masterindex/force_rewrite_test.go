package masterindex

import (
	"errors"
	"testing"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

func TestForceRewritePadRegressesConfirmed(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1), Status: network.StatusConfirmed}}})

	if err := m.ForceRewritePad("k", addr(1)); err != nil {
		t.Fatalf("ForceRewritePad: %v", err)
	}
	info, _ := m.GetKeyInfo("k")
	if info.Pads[0].Status != network.StatusWritten {
		t.Fatalf("expected status Written after forced rewrite, got %s", info.Pads[0].Status)
	}
}

func TestForceRewritePadKeyNotFound(t *testing.T) {
	m := New(4)
	if err := m.ForceRewritePad("missing", addr(1)); !errors.Is(err, mutanterr.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestForceRewritePadUnknownAddress(t *testing.T) {
	m := New(4)
	m.InsertKeyInfo("k", KeyInfo{Pads: []PadInfo{{Address: addr(1)}}})
	if err := m.ForceRewritePad("k", addr(9)); !errors.Is(err, mutanterr.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}
}
