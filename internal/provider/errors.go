package provider

import (
	"errors"
	"fmt"
)

// MaxErrorText bounds raw response or error text embedded in messages.
const MaxErrorText = 500

// ErrExhaustedRetries matches *ExhaustedRetriesError with errors.Is.
var ErrExhaustedRetries = errors.New("retries exhausted")

// APIRequestError is a non-200 response from a text API.
type APIRequestError struct {
	StatusCode int
	Body       string
	Endpoint   string
	Model      string
}

func (e *APIRequestError) Error() string {
	return fmt.Sprintf("text API request failed (status %d)\nendpoint: %s\nmodel: %s\ndetails: %s",
		e.StatusCode, e.Endpoint, e.Model, e.Body)
}

// MalformedResponseError is a 200 response without generated text.
type MalformedResponseError struct {
	Body string
}

func (e *MalformedResponseError) Error() string {
	return "text API response has no generated text; the API may not follow the OpenAI " +
		"chat format, the request may have been filtered, or the model returned nothing\nresponse: " + e.Body
}

// ExhaustedRetriesError is returned once every attempt was rate limited. The
// last underlying error is intentionally dropped.
type ExhaustedRetriesError struct {
	Attempts int
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("text API still failing after %d attempts\n"+
		"likely causes: sustained throttling or exhausted quota, an unstable network, "+
		"or the API being temporarily down\n"+
		"try again later, or contact the API provider", e.Attempts)
}

func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrExhaustedRetries }

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
