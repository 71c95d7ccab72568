// Package localnet is a file-backed reference implementation of
// network.Adapter. It stores each pad as a file named by its hex address
// under a directory, written atomically (temp file + rename).
//
// It exists for tests and for standing up a local MutAnt instance before
// wiring a real Autonomi (or any other) network client; it is not the
// production network layer, which is an external collaborator.
package localnet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mutant/internal/atomicfile"
	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// Adapter stores pads as files under Dir.
type Adapter struct {
	dir string

	mu       sync.Mutex
	counters map[network.Address]uint64 // write generation, for InconsistentState detection
}

var _ network.Adapter = (*Adapter)(nil)

// New creates an Adapter rooted at dir, creating dir if necessary.
func New(dir string) (*Adapter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create localnet directory %s: %w", dir, err)
	}
	return &Adapter{dir: dir, counters: make(map[network.Address]uint64)}, nil
}

func (a *Adapter) path(addr network.Address) string {
	return filepath.Join(a.dir, addr.String())
}

func (a *Adapter) PutPad(_ context.Context, key network.Key, data []byte, hint network.PadStatus) (network.Address, error) {
	addr := network.DeriveAddress(key)

	a.mu.Lock()
	defer a.mu.Unlock()

	_, existsOnDisk := a.counters[addr]
	if _, statErr := os.Stat(a.path(addr)); statErr == nil {
		existsOnDisk = true
	}

	if hint == network.StatusGenerated && existsOnDisk {
		return network.Address{}, fmt.Errorf("%w: pad %s already exists but caller hinted create",
			mutanterr.ErrInconsistentState, addr)
	}

	if err := atomicfile.Write(a.path(addr), data); err != nil {
		return network.Address{}, err
	}
	a.counters[addr] = a.counters[addr] + 1
	return addr, nil
}

func (a *Adapter) GetPad(_ context.Context, addr network.Address) ([]byte, error) {
	data, err := os.ReadFile(a.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pad %s not found: %w", addr, os.ErrNotExist)
		}
		return nil, err
	}
	return data, nil
}

func (a *Adapter) Exists(_ context.Context, addr network.Address) (bool, error) {
	_, err := os.Stat(a.path(addr))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

