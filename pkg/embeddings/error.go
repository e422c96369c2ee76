package embeddings

import "errors"

var (
	// ErrLimitExceeded is returned when a batch exceeds the provider's
	// per-request token ceiling. The indexing path recovers from this by
	// re-chunking and retrying smaller pieces.
	ErrLimitExceeded = errors.New("embedding request exceeds provider limit")

	// ErrProvider is returned for any other upstream failure: network,
	// auth, malformed input, or a provider-side error.
	ErrProvider = errors.New("embedding provider failed")
)
