// Package provider talks to text-generation backends. It builds multimodal
// payloads, wraps calls in a rate-limit retry policy and picks the configured
// provider for a request.
package provider

import "context"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat message sent to a backend.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Generator produces text for a prompt. Backends are decoupled from the
// caller: the outline service only sees this interface.
type Generator interface {
	// GenerateText sends one request and returns the generated text.
	GenerateText(ctx context.Context, req TextRequest) (string, error)

	// Name returns the backend kind (e.g., "openai").
	Name() string
}
