package provider

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"

	"github.com/redink/outliner/internal/config"
)

// GeminiClient generates text with the Gemini API.
type GeminiClient struct {
	client     *genai.Client
	endpoint   string
	model      string
	compressor Compressor
}

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com"

// NewGemini creates a GeminiClient. baseURL may be empty for the public API.
func NewGemini(ctx context.Context, baseURL, model, apiKey string, opts ...ClientOption) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, config.NewError(
			"set api_key on the provider, or TEXT_API_KEY in the environment",
			"gemini API key is not configured")
	}
	o := buildOptions(opts)

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	endpoint := defaultGeminiEndpoint
	if base := strings.TrimSpace(baseURL); base != "" {
		endpoint = strings.TrimRight(base, "/")
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint + "/"}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &config.Error{Msg: "creating gemini client", Err: err}
	}
	return &GeminiClient{client: client, endpoint: endpoint, model: model, compressor: o.compressor}, nil
}

func (g *GeminiClient) Name() string { return "google_gemini" }

func (g *GeminiClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for i, img := range req.Images {
		if img.IsURL() {
			parts = append(parts, genai.NewPartFromURI(img.URL, mimeFromURL(img.URL)))
			continue
		}
		data, err := compress(g.compressor, img.Data)
		if err != nil {
			return "", fmt.Errorf("image %d: %w", i, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimetype.Detect(data).String()))
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	model := req.model(g.model)
	resp, err := g.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &APIRequestError{
				StatusCode: apiErr.Code,
				Body:       Truncate(apiErr.Message, MaxErrorText),
				Endpoint:   g.endpoint + "/models/" + model + ":generateContent",
				Model:      model,
			}
		}
		return "", fmt.Errorf("gemini content request: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := "no candidates"
		if len(resp.Candidates) > 0 {
			reason = "finish reason " + string(resp.Candidates[0].FinishReason)
		}
		return "", &MalformedResponseError{Body: "no text in gemini response (" + reason + ")"}
	}
	return text, nil
}

func mimeFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if t := mime.TypeByExtension(path.Ext(u.Path)); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return "image/png"
}
