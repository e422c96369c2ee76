// Package session holds retrieval sessions and their persistence.
// A session binds one indexed document to a stable identifier; its
// vectors and metadata live in a file pair under the storage directory.
package session

import (
	"errors"

	"github.com/google/uuid"

	"github.com/papercomputeco/folio/pkg/vector"
)

// ErrNotFound is returned when no session exists for an identifier.
var ErrNotFound = errors.New("session not found")

// MetadataV1 is the current metadata file version.
const MetadataV1 = 1

// Session is one document's retrieval state.
type Session struct {
	ID           string
	Filename     string
	OriginalText string
	Index        *vector.Index
}

// New creates an empty session with a fresh UUID.
func New() *Session {
	return &Session{
		ID:    uuid.NewString(),
		Index: vector.NewIndex(),
	}
}

// ChunksCount reports how many passages the session has indexed.
func (s *Session) ChunksCount() int {
	if s.Index == nil {
		return 0
	}
	return s.Index.Len()
}

// Info is the listing view of a persisted session.
type Info struct {
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	ChunksCount int    `json:"chunks_count"`
}
