// Package llm defines the text-generation boundary used by the chat
// endpoint. Retrieval itself never depends on this package.
package llm

import (
	"context"
	"errors"
)

// ErrChat is the sentinel for chat provider failures.
var ErrChat = errors.New("chat provider error")

// Request is one grounded chat turn: the retrieved context plus the
// user's question.
type Request struct {
	SystemContext string
	UserMessage   string

	// Model overrides the provider's configured model when set.
	Model string
}

// Token is one element of a streamed response. Err is set on the final
// token when the stream ends abnormally.
type Token struct {
	Content string
	Err     error
}

// Provider produces chat completions.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (<-chan Token, error)
	Close() error
}
