// Package extract turns uploaded document bytes into text blocks ready
// for chunking.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the extractor
	// does not handle.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed is returned when the document bytes cannot be
	// decoded as text.
	ErrExtractionFailed = errors.New("document extraction failed")
)

// plainTextExts are the extensions treated as plain text. A file with
// no extension is treated as plain text too.
var plainTextExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".text":     true,
}

// Extract decodes the document and splits it into blocks on blank
// lines. Block boundaries survive chunking: the chunker never merges
// text across blocks.
func Extract(filename string, data []byte) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !plainTextExts[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrExtractionFailed, filename)
	}

	return SplitBlocks(string(data)), nil
}

// SplitBlocks splits text into blocks separated by one or more blank
// lines. Blocks are trimmed; empty blocks are dropped.
func SplitBlocks(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	blocks := []string{}
	for _, raw := range strings.Split(normalized, "\n\n") {
		block := strings.TrimSpace(raw)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}
