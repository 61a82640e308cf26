package provider

import "strings"

// TextRequest is a normalized generation request.
type TextRequest struct {
	Prompt          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Images          []Image
	// SystemPrompt is sent as a leading system message when non-empty.
	SystemPrompt string
}

// model returns the request model, or fallback when the request has none.
func (r TextRequest) model(fallback string) string {
	if m := strings.TrimSpace(r.Model); m != "" {
		return m
	}
	return fallback
}

// messages composes the optional system message and the user message.
func (r TextRequest) messages(user Content) []Message {
	msgs := make([]Message, 0, 2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: TextContent(r.SystemPrompt)})
	}
	return append(msgs, Message{Role: RoleUser, Content: user})
}
