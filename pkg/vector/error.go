package vector

import "errors"

var (
	// ErrBadFormat is returned when decoding a serialized index that is
	// truncated, corrupt, or of an unknown version.
	ErrBadFormat = errors.New("invalid vector index format")
)
