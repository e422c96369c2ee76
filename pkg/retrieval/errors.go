package retrieval

import "errors"

var (
	// ErrEmptyDocument is returned when a document yields no text to index.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrIndexingFailed is returned when zero passages end up indexed
	// after all recovery attempts.
	ErrIndexingFailed = errors.New("indexing failed for every passage")

	// ErrSessionNotFound is returned when a session exists neither in
	// the cache nor in the durable store.
	ErrSessionNotFound = errors.New("session not found")
)
