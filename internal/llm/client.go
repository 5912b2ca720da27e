package llm

import (
	"context"
	"errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

var (
	// ErrUnavailable covers transport failures, timeouts and provider 5xx.
	ErrUnavailable = errors.New("generation provider unavailable")
	// ErrRateLimited is a provider 429.
	ErrRateLimited = errors.New("generation provider rate limited")
	// ErrRejected means the provider refused the prompt (safety block, bad request).
	ErrRejected = errors.New("generation provider rejected prompt")
)

// Client generates a reply for an ordered conversation. Implementations must
// bound the call with a timeout and fail with one of the sentinel errors
// above rather than hang.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
