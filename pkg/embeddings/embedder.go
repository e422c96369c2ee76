// Package embeddings defines the embedding provider boundary.
package embeddings

import "context"

// Embedder provides text embedding capabilities. Drivers perform no
// retries; recovery from provider limits is the caller's concern.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in one provider call, returning
	// one vector per input in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the width of the vectors this embedder produces.
	Dimensions() int

	// Close releases any resources held by the embedder.
	Close() error
}
