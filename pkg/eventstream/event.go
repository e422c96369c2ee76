package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentIndexed is emitted after a document is chunked,
	// embedded, and persisted into a session.
	EventTypeDocumentIndexed = "folio.document.indexed"
)

// DocumentIndexedEvent is a transport-neutral event payload for an
// indexed document.
type DocumentIndexedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	SessionID     string    `json:"session_id"`
	Filename      string    `json:"filename"`
	ChunksCount   int       `json:"chunks_count"`
	SkippedCount  int       `json:"skipped_count,omitempty"`
}
