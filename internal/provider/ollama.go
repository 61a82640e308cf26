package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaClient generates text with a local Ollama instance. Images are sent
// as raw bytes; Ollama cannot fetch image URLs.
type OllamaClient struct {
	client     *api.Client
	host       string
	model      string
	compressor Compressor
}

// NewOllama creates an OllamaClient connected to the given host and model.
func NewOllama(host, model string, opts ...ClientOption) (*OllamaClient, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama host URL: %w", err)
	}
	o := buildOptions(opts)
	return &OllamaClient{
		client:     api.NewClient(base, o.httpClient),
		host:       strings.TrimRight(host, "/"),
		model:      model,
		compressor: o.compressor,
	}, nil
}

func (o *OllamaClient) Name() string { return "ollama" }

// GenerateText converts the request to an Ollama chat request so callers stay
// decoupled from the Ollama client library.
func (o *OllamaClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	images := make([]api.ImageData, 0, len(req.Images))
	for i, img := range req.Images {
		if img.IsURL() {
			return "", fmt.Errorf("image %d: ollama cannot fetch image URLs, send the image bytes instead", i)
		}
		data, err := compress(o.compressor, img.Data)
		if err != nil {
			return "", fmt.Errorf("image %d: %w", i, err)
		}
		images = append(images, api.ImageData(data))
	}

	var messages []api.Message
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: RoleUser, Content: req.Prompt, Images: images})

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxOutputTokens > 0 {
		options["num_predict"] = req.MaxOutputTokens
	}

	model := req.model(o.model)
	stream := false
	var final api.ChatResponse
	err := o.client.Chat(ctx, &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		final = resp
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", &APIRequestError{
				StatusCode: statusErr.StatusCode,
				Body:       Truncate(statusErr.ErrorMessage, MaxErrorText),
				Endpoint:   o.host + "/api/chat",
				Model:      model,
			}
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	if strings.TrimSpace(final.Message.Content) == "" {
		return "", &MalformedResponseError{Body: "empty message from model " + model}
	}
	return final.Message.Content, nil
}
