// Package chunker splits extracted document text into overlapping
// fixed-width passages suitable for embedding.
package chunker

import (
	"errors"
	"fmt"
)

const (
	// DefaultChunkSize is the default passage width in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the default number of characters shared
	// between consecutive passages.
	DefaultChunkOverlap = 200

	// FloorChunkSize is the smallest width the indexing recovery path
	// will re-chunk down to when a provider rejects a batch for size.
	FloorChunkSize = 100
)

// ErrConfig is returned when the chunking parameters are invalid.
var ErrConfig = errors.New("invalid chunking configuration")

// Chunker slides a fixed-width character window over text blocks.
// Splitting is pure: identical input and parameters always produce an
// identical passage sequence.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window parameters and returns a Chunker.
// The overlap must be strictly smaller than the size, otherwise the
// window could never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window width.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks each text block independently; passages never span two
// blocks. A block no longer than the window yields exactly one passage
// equal to that block.
func (c *Chunker) Split(blocks []string) []string {
	var passages []string
	for _, block := range blocks {
		passages = append(passages, c.splitBlock(block)...)
	}
	return passages
}

// splitBlock windows a single block. Widths are counted in runes so a
// multi-byte character is never cut in half. The window stops once it
// reaches the end of the block; a trailing stride that would only
// re-emit overlap is not produced.
func (c *Chunker) splitBlock(block string) []string {
	runes := []rune(block)
	if len(runes) <= c.size {
		return []string{block}
	}

	stride := c.size - c.overlap
	var passages []string
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		passages = append(passages, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return passages
}
