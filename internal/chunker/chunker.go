// Package chunker splits a byte payload into fixed-size pieces and
// reassembles them. Pure, total functions: no I/O, no logging, no
// allocation beyond what the output requires.
package chunker

import (
	"fmt"

	"mutant/internal/mutanterr"
)

// Chunk splits data into pieces of at most padSize bytes. The last piece
// may be shorter; all others are exactly padSize. Empty data produces an
// empty (nil) slice of chunks. padSize == 0 fails.
func Chunk(data []byte, padSize int) ([][]byte, error) {
	if padSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size cannot be zero", mutanterr.ErrChunking)
	}
	if len(data) == 0 {
		return nil, nil
	}

	n := (len(data) + padSize - 1) / padSize
	chunks := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * padSize
		end := start + padSize
		if end > len(data) {
			end = len(data)
		}
		chunks[i] = data[start:end]
	}
	return chunks, nil
}

// Reassemble concatenates an ordered slice of chunk slots, where each slot
// is either the chunk's bytes or nil (missing). Every slot must be
// present and the concatenation must equal expectedSize, or Reassemble
// fails.
func Reassemble(slots [][]byte, expectedSize uint64) ([]byte, error) {
	total := 0
	for i, s := range slots {
		if s == nil {
			return nil, fmt.Errorf("%w: Missing chunk at index %d", mutanterr.ErrDeserialization, i)
		}
		total += len(s)
	}

	out := make([]byte, 0, total)
	for _, s := range slots {
		out = append(out, s...)
	}

	if uint64(len(out)) != expectedSize {
		return nil, fmt.Errorf("%w: reassembled size %d does not match expected size %d",
			mutanterr.ErrDeserialization, len(out), expectedSize)
	}
	return out, nil
}
