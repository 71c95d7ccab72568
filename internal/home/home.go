// Package home manages the mutant home directory layout.
//
// The home directory owns all persistent state that isn't itself a
// network scratchpad: the CLI-local settings file and, per wallet, a
// local cache of the decoded MasterIndex plus (when the localnet adapter
// is in use) that wallet's pad storage root. The MasterIndex is per-wallet
// state: multiple wallets imply multiple independent homes under the
// same root, keyed by wallet ID.
//
// Layout:
//
//	<root>/
//	  config.json                (CLI-local settings: wallet key, backend choice)
//	  wallets/
//	    <wallet-id>/
//	      index-cache.cbor        (local cache of the MasterIndex blob)
//	      pads/                   (localnet adapter storage root, if selected)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents a mutant home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/mutant
//   - macOS:   ~/Library/Application Support/mutant
//   - Windows: %APPDATA%/mutant
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "mutant")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the CLI-local settings file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.json")
}

// WalletDir returns the per-wallet directory for walletID.
func (d Dir) WalletDir(walletID string) string {
	return filepath.Join(d.root, "wallets", walletID)
}

// IndexCachePath returns the local MasterIndex cache path for walletID.
func (d Dir) IndexCachePath(walletID string) string {
	return filepath.Join(d.WalletDir(walletID), "index-cache.cbor")
}

// PadsDir returns the localnet adapter storage root for walletID.
func (d Dir) PadsDir(walletID string) string {
	return filepath.Join(d.WalletDir(walletID), "pads")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}

// EnsureWalletDir creates walletID's per-wallet directory if it doesn't
// exist.
func (d Dir) EnsureWalletDir(walletID string) error {
	if err := os.MkdirAll(d.WalletDir(walletID), 0o750); err != nil {
		return fmt.Errorf("create wallet directory for %s: %w", walletID, err)
	}
	return nil
}
