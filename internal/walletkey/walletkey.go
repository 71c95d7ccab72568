// Package walletkey turns a user-supplied wallet private key into the
// deterministic signing key for the index scratchpad. Every other pad key
// is minted fresh by padlifecycle; only the index scratchpad's key must be
// rederivable from the wallet alone, the way the Rust original's wallet
// module turns a hex private key into network secret material (see
// original_source/mutant-lib/src/network/wallet.rs), adapted here to HKDF
// rather than a bare SHA-256 so distinct derived purposes (index key today,
// future per-vault keys) can't collide.
package walletkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// indexKeyInfo is the HKDF info parameter binding the derived key to its
// single defined purpose, so deriving a different purpose's key later
// (e.g. a per-vault key) can never collide with this one.
const indexKeyInfo = "mutant-index-scratchpad-v1"

// ParsePrivateKeyHex decodes a hex-encoded wallet private key.
func ParsePrivateKeyHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not valid hex: %v", mutanterr.ErrInvalidInput, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: private key is empty", mutanterr.ErrInvalidInput)
	}
	return b, nil
}

// DeriveIndexKey deterministically derives the index scratchpad's PadKey
// from a wallet private key, so the same wallet always locates the same
// master index on the network.
func DeriveIndexKey(walletPrivateKey []byte) (network.Key, error) {
	r := hkdf.New(sha256.New, walletPrivateKey, nil, []byte(indexKeyInfo))
	var key network.Key
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return network.Key{}, fmt.Errorf("derive index key: %w", err)
	}
	return key, nil
}
