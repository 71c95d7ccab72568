// Package network defines the NetworkAdapter capability the core consumes.
// The adapter itself — authentication, payment, the actual Autonomi wire
// protocol — is an external collaborator; this package only fixes the
// boundary the core programs against, plus the address/key types every
// adapter implementation shares.
package network

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
)

// Address is an opaque, network-visible identifier derived from a pad's
// public key. Equality is byte-exact.
type Address [32]byte

// String returns the lowercase hex encoding, for logging and as an object
// key in the reference adapters.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address (never a valid pad).
func (a Address) IsZero() bool { return a == Address{} }

// PadStatus is the per-pad write-state hint passed to PutPad. It lets the
// adapter distinguish a first write (which must create the pad) from a
// rewrite (which must update it in place).
type PadStatus int

const (
	StatusGenerated PadStatus = iota
	StatusAllocated
	StatusWritten
	StatusConfirmed
)

func (s PadStatus) String() string {
	switch s {
	case StatusGenerated:
		return "Generated"
	case StatusAllocated:
		return "Allocated"
	case StatusWritten:
		return "Written"
	case StatusConfirmed:
		return "Confirmed"
	default:
		return "Unknown"
	}
}

// Key is the secret signing material for a pad. Only the owner holds it;
// it is required to write or release a pad. Key is a secret: callers must
// never log it or serialize it outside the MasterIndex itself.
type Key [32]byte

// DeriveAddress computes the Address for a Key by deriving its Ed25519
// public key. Every NetworkAdapter implementation must agree on this
// mapping since an address is, by definition, derived from a pad's public
// key.
func DeriveAddress(key Key) Address {
	seed := key[:]
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	var addr Address
	copy(addr[:], pub)
	return addr
}

// Adapter is the capability the core consumes to read and write
// scratchpads. Implementations must be safe for concurrent use.
type Adapter interface {
	// PutPad writes data to the pad owned by key. hint tells the adapter
	// whether this is expected to be a create (StatusGenerated) or an
	// update (StatusWritten or later). If the caller hints a create but
	// the pad already exists, PutPad must fail with
	// mutanterr.ErrInconsistentState rather than silently falling back to
	// an update — the caller's PadStatus bookkeeping is stale and must be
	// corrected before retrying.
	PutPad(ctx context.Context, key Key, data []byte, hint PadStatus) (Address, error)

	// GetPad returns the current decrypted contents of the pad at addr.
	GetPad(ctx context.Context, addr Address) ([]byte, error)

	// Exists reports whether a pad is present at addr.
	Exists(ctx context.Context, addr Address) (bool, error)
}
