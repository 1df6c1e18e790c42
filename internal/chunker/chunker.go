// Package chunker splits data assets into fixed-size pieces.
//
// Every piece except the last has exactly the requested size; the last one
// holds the remainder. Concatenating the pieces in order reproduces the input.
package chunker

import (
	"fmt"

	"github.com/dmitrijs2005/databazaar/internal/common"
)

// DefaultChunkSize is used when the caller does not pick a chunk size.
const DefaultChunkSize = 1 << 20

// Split divides buf into consecutive slices of size bytes.
//
// The returned slices alias buf; callers that need to mutate a chunk must
// copy it first. Split fails with common.ErrInvalidInput when buf is empty or
// size is not positive.
func Split(buf []byte, size int) ([][]byte, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("split: empty buffer: %w", common.ErrInvalidInput)
	}
	if size <= 0 {
		return nil, fmt.Errorf("split: chunk size %d: %w", size, common.ErrInvalidInput)
	}

	chunks := make([][]byte, 0, Count(int64(len(buf)), size))
	for offset := 0; offset < len(buf); offset += size {
		end := offset + size
		if end > len(buf) {
			end = len(buf)
		}
		chunks = append(chunks, buf[offset:end:end])
	}

	return chunks, nil
}

// Count returns how many chunks Split produces for total bytes.
// It returns 0 for a non-positive total or size.
func Count(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	s := int64(size)
	return int((total + s - 1) / s)
}
