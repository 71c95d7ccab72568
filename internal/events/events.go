// Package events defines the progress/cancellation contract between the
// Data Manager and its callers. A callback observes an event and returns
// whether the operation should continue; returning false (or an error)
// aborts the operation and the Data Manager runs its compensation path.
package events

import "context"

// PutEvent is the sum type of progress events a store/update/reserve
// operation emits. Each concrete type implements putEvent via an
// unexported marker method, the idiomatic Go rendering of a closed enum.
type PutEvent interface {
	putEvent()
}

type PutStarting struct{ TotalChunks int }

type PutChunkWritten struct{ ChunkIndex int }

type PutReservingScratchpads struct{ Needed int }

type PutConfirmReservation struct {
	Needed             int
	DataSize           uint64
	TotalSpace         uint64
	FreeSpace          uint64
	CurrentScratchpads int
	EstimatedCost      float64
}

type PutComplete struct{}

func (PutStarting) putEvent()             {}
func (PutChunkWritten) putEvent()         {}
func (PutReservingScratchpads) putEvent() {}
func (PutConfirmReservation) putEvent()   {}
func (PutComplete) putEvent()             {}

// GetEvent is the sum type of progress events a fetch operation emits.
type GetEvent interface {
	getEvent()
}

type GetIndexLookup struct{}

type GetStarting struct{ TotalChunks int }

type GetChunkFetched struct{ ChunkIndex int }

type GetReassembling struct{}

type GetComplete struct{}

func (GetIndexLookup) getEvent()   {}
func (GetStarting) getEvent()      {}
func (GetChunkFetched) getEvent()  {}
func (GetReassembling) getEvent()  {}
func (GetComplete) getEvent()      {}

// PutCallback observes a PutEvent and reports whether the operation should
// continue. An error return is propagated to the caller of Store/Update;
// a false continue (with a nil error) is translated by the Data Manager
// into mutanterr.ErrOperationCancelled.
type PutCallback func(ctx context.Context, event PutEvent) (bool, error)

// GetCallback is the Fetch-side analogue of PutCallback.
type GetCallback func(ctx context.Context, event GetEvent) (bool, error)

// InvokePut calls cb if non-nil and normalizes the no-callback case to
// "continue" (internal/logging.Default applies the same always-injected,
// possibly-nil collaborator idea to *slog.Logger).
func InvokePut(ctx context.Context, cb PutCallback, event PutEvent) (bool, error) {
	if cb == nil {
		return true, nil
	}
	return cb(ctx, event)
}

// InvokeGet is the Fetch-side analogue of InvokePut.
func InvokeGet(ctx context.Context, cb GetCallback, event GetEvent) (bool, error) {
	if cb == nil {
		return true, nil
	}
	return cb(ctx, event)
}
