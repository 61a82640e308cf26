package provider

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redink/outliner/internal/logger"
)

func TestGeminiGenerateText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), "path %s", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"[封面] Gemini"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), srv.URL, "gemini-test", "k",
		WithHTTPClient(srv.Client()), WithCompressor(&fakeCompressor{}))
	require.NoError(t, err)

	text, err := g.GenerateText(context.Background(), TextRequest{
		Prompt:      "outline",
		Temperature: 1,
		Images:      []Image{ImageFromURL("https://example.com/photo.jpg")},
	})
	require.NoError(t, err)
	assert.Equal(t, "[封面] Gemini", text)

	contents := body["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "outline", parts[0].(map[string]any)["text"])
	fileData := parts[1].(map[string]any)["fileData"].(map[string]any)
	assert.Equal(t, "https://example.com/photo.jpg", fileData["fileUri"])
	assert.Equal(t, "image/jpeg", fileData["mimeType"])
}

func TestGeminiEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"finishReason":"SAFETY"}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), srv.URL, "gemini-test", "k", WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = g.GenerateText(context.Background(), TextRequest{Prompt: "p"})
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Body, "SAFETY")
}

func TestMimeFromURL(t *testing.T) {
	assert.Equal(t, "image/jpeg", mimeFromURL("https://example.com/a.jpg?x=1"))
	assert.Equal(t, "image/png", mimeFromURL("https://example.com/a.png"))
	assert.Equal(t, "image/png", mimeFromURL("https://example.com/no-extension"))
}

func TestGeminiAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), srv.URL, "gemini-test", "k", WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = g.GenerateText(context.Background(), TextRequest{Prompt: "p"})
	var apiErr *APIRequestError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "gemini-test", apiErr.Model)
	assert.True(t, IsRateLimited(err))
}

type countingGenerator struct {
	Generator
	calls int
}

func (c *countingGenerator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	c.calls++
	return c.Generator.GenerateText(ctx, req)
}

func TestGeminiUnreachableIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	g, err := NewGemini(context.Background(), addr, "gemini-2.0-flash-exp", "k",
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	require.NoError(t, err)

	counted := &countingGenerator{Generator: g}
	var waits []int
	r := WithRetry(counted, RetryPolicy{MaxRetries: 3, Delay: noWait(&waits), Logger: logger.Discard()})

	_, err = r.GenerateText(context.Background(), TextRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generateContent")
	assert.NotErrorIs(t, err, ErrExhaustedRetries)

	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, 1, counted.calls)
	assert.Empty(t, waits)
}
