package provider

import (
	"context"
	"strings"

	"github.com/redink/outliner/internal/config"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOllamaHost    = "http://localhost:11434"
)

// NewFromConfig builds the backend for p.Type.
func NewFromConfig(ctx context.Context, p config.Provider, opts ...ClientOption) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "", "openai", "openai_compatible":
		base := p.BaseURL
		if strings.TrimSpace(base) == "" {
			base = defaultOpenAIBaseURL
		}
		return NewChatCompletions(base, p.APIKey, opts...)
	case "ollama":
		host := p.BaseURL
		if strings.TrimSpace(host) == "" {
			host = defaultOllamaHost
		}
		return NewOllama(host, p.Model, opts...)
	case "google_gemini", "gemini":
		return NewGemini(ctx, p.BaseURL, p.Model, p.APIKey, opts...)
	default:
		return nil, config.NewError(
			"use one of: openai_compatible, ollama, google_gemini",
			"provider %q has unsupported type %q", p.Name, p.Type)
	}
}
