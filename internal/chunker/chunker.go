// Package chunker splits extracted pages into overlapping, size-bounded
// chunks suitable for vector indexing. Chunking is deterministic: the same
// pages and parameters always yield the same chunk sequence and offsets,
// which keeps re-ingestion idempotent.
package chunker

import (
	"errors"
	"fmt"

	"rag-knowledge-backend/models"
)

var (
	// ErrBadChunkSize is returned when the target size is not positive.
	ErrBadChunkSize = errors.New("chunker: chunk size must be positive")
	// ErrBadOverlap is returned when the overlap is negative or not smaller
	// than the chunk size.
	ErrBadOverlap = errors.New("chunker: overlap must be in [0, size)")
)

// ChunkPages walks each page with a sliding window of width size advancing by
// size-overlap runes. The final window of a page may be shorter and is
// emitted as-is. Page boundaries are hard chunk boundaries so citations stay
// page-accurate. Chunk indices are assigned sequentially across the whole
// document in page order, starting at 0.
//
// An empty page yields no chunks; a page shorter than size yields exactly one
// chunk covering the whole page. Offsets are rune offsets within the page
// text, so chunk.Text == page.Text[start:end] when sliced by runes.
func ChunkPages(pages []models.Page, size, overlap int) ([]models.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadChunkSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: got overlap=%d size=%d", ErrBadOverlap, overlap, size)
	}

	step := size - overlap
	var chunks []models.Chunk
	index := 0

	for _, page := range pages {
		runes := []rune(page.Text)
		n := len(runes)
		if n == 0 {
			continue
		}
		for start := 0; start < n; start += step {
			end := start + size
			if end > n {
				end = n
			}
			chunks = append(chunks, models.Chunk{
				Index: index,
				Page:  page.Number,
				Start: start,
				End:   end,
				Text:  string(runes[start:end]),
			})
			index++
			if end == n {
				break
			}
		}
	}

	return chunks, nil
}
