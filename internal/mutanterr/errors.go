// Package mutanterr defines the sentinel error taxonomy shared by every
// core package. Callers use errors.Is/errors.As against these values and
// types rather than matching on message text.
package mutanterr

import (
	"errors"
	"fmt"
)

var (
	// Input errors.
	ErrKeyNotFound      = errors.New("key not found")
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrChunking         = errors.New("chunking error")

	// Resource errors.
	ErrInsufficientFreePads = errors.New("insufficient free pads")

	// Durability errors.
	ErrMasterIndexNotFound = errors.New("master index not found")
	ErrUploadIncomplete    = errors.New("upload incomplete")

	// State errors.
	ErrInconsistentState = errors.New("inconsistent state")

	// Cancellation.
	ErrOperationCancelled = errors.New("operation cancelled")

	// Serialization errors.
	ErrSerialization   = errors.New("serialization error")
	ErrDeserialization = errors.New("deserialization error")
)

// IncompleteDataError reports a reassembly whose length does not match the
// size recorded in the KeyInfo.
type IncompleteDataError struct {
	Expected uint64
	Actual   uint64
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("incomplete data: expected %d bytes, got %d", e.Expected, e.Actual)
}

// StorageError wraps an opaque NetworkAdapter failure. The core never
// inspects the wrapped error beyond Unwrap; it surfaces it verbatim.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError. Returns nil if err is nil.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Err: err}
}
