package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redink/outliner/internal/config"
	"github.com/redink/outliner/internal/imagecompress"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	requestTimeout      = 300 * time.Second
	maxResponseBytes    = 16 << 20 // 16 MiB
)

type clientOptions struct {
	httpClient *http.Client
	compressor Compressor
}

// ClientOption customizes a backend client.
type ClientOption func(*clientOptions)

// WithHTTPClient replaces the default client, which has a 300s timeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithCompressor replaces the default JPEG compressor.
func WithCompressor(c Compressor) ClientOption {
	return func(o *clientOptions) { o.compressor = c }
}

func buildOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		httpClient: &http.Client{Timeout: requestTimeout},
		compressor: imagecompress.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ChatCompletionsClient calls an OpenAI-compatible /v1/chat/completions
// endpoint. Credentials are checked once, at construction.
type ChatCompletionsClient struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	compressor Compressor
}

// NewChatCompletions creates a client for baseURL (without the /v1 suffix).
func NewChatCompletions(baseURL, apiKey string, opts ...ClientOption) (*ChatCompletionsClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, config.NewError(
			"set api_key on the provider, or add TEXT_API_KEY (or BLTCY_API_KEY) to the environment or .env and restart",
			"text API key is not configured")
	}
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return nil, config.NewError(
			"set base_url on the provider or TEXT_API_BASE_URL in the environment",
			"text API base URL is not configured")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, &config.Error{
			Msg:    fmt.Sprintf("parsing text API base URL %q", base),
			Remedy: "use an absolute URL such as https://api.openai.com",
			Err:    err,
		}
	}

	o := buildOptions(opts)
	return &ChatCompletionsClient{
		client:     o.httpClient,
		endpoint:   strings.TrimRight(base, "/") + chatCompletionsPath,
		apiKey:     apiKey,
		compressor: o.compressor,
	}, nil
}

func (c *ChatCompletionsClient) Name() string { return "openai" }

// Endpoint returns the full chat completions URL.
func (c *ChatCompletionsClient) Endpoint() string { return c.endpoint }

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// GenerateText sends a single request. Non-200 responses become
// *APIRequestError; 200 responses without choices[0].message.content become
// *MalformedResponseError.
func (c *ChatCompletionsClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	content, err := BuildContent(req.Prompt, req.Images, c.compressor)
	if err != nil {
		return "", fmt.Errorf("building message content: %w", err)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.messages(content),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("text API transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIRequestError{
			StatusCode: resp.StatusCode,
			Body:       Truncate(strings.TrimSpace(string(raw)), MaxErrorText),
			Endpoint:   c.endpoint,
			Model:      req.Model,
		}
	}
	return extractContent(raw)
}

func extractContent(raw []byte) (string, error) {
	var decoded struct {
		Choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil ||
		len(decoded.Choices) == 0 ||
		decoded.Choices[0].Message == nil ||
		decoded.Choices[0].Message.Content == nil {
		return "", &MalformedResponseError{Body: Truncate(string(raw), MaxErrorText)}
	}
	return *decoded.Choices[0].Message.Content, nil
}
