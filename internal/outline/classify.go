package outline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redink/outliner/internal/config"
	"github.com/redink/outliner/internal/provider"
)

// Class is the user-facing category of a generation failure.
type Class string

const (
	ClassAuth    Class = "auth"
	ClassModel   Class = "model"
	ClassNetwork Class = "network"
	ClassQuota   Class = "quota"
	ClassConfig  Class = "config"
	ClassGeneric Class = "generic"
)

// Classify maps err to a Class. Typed errors decide by their fields; anything
// else falls back to keywords in its message.
func Classify(err error) Class {
	if err == nil {
		return ClassGeneric
	}

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ClassConfig
	}
	if errors.Is(err, provider.ErrExhaustedRetries) {
		return ClassQuota
	}
	var apiErr *provider.APIRequestError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return ClassAuth
		case 404:
			return ClassModel
		case 429:
			return ClassQuota
		}
		// The message always names the model, so only the body is telling.
		return classifyText(apiErr.Body)
	}
	var malformed *provider.MalformedResponseError
	if errors.As(err, &malformed) {
		return ClassGeneric
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}

	return classifyText(err.Error())
}

// classifyText checks keywords in a fixed order; the first match wins.
func classifyText(text string) Class {
	msg := strings.ToLower(text)
	switch {
	case containsAny(msg, "api_key", "unauthorized", "401"):
		return ClassAuth
	case containsAny(msg, "model", "404"):
		return ClassModel
	case containsAny(msg, "timeout", "connection", "连接"):
		return ClassNetwork
	case containsAny(msg, "rate", "429", "quota"):
		return ClassQuota
	default:
		return ClassGeneric
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type guidance struct {
	title  string
	causes []string
	fix    string
}

var guides = map[Class]guidance{
	ClassAuth: {
		title:  "API authentication failed.",
		causes: []string{"the API key is invalid or expired", "the API key has no access to this model"},
		fix:    "check the provider's api_key with 'outliner config show' and update it",
	},
	ClassModel: {
		title:  "Model access failed.",
		causes: []string{"the model name is wrong", "the account has no access to the model"},
		fix:    "check the provider's model name in text_providers.yaml",
	},
	ClassNetwork: {
		title:  "Network connection failed.",
		causes: []string{"the network is unstable", "the API is temporarily unavailable", "base_url is wrong"},
		fix:    "check the network connection and base_url, then try again later",
	},
	ClassQuota: {
		title:  "API quota limit reached.",
		causes: []string{"too many API calls in a short time", "the account quota is used up"},
		fix:    "wait for the quota to reset, or upgrade the API plan",
	},
	ClassConfig: {
		title:  "Text provider configuration is invalid.",
		causes: []string{"the active provider is missing or has no API key", "the prompt template cannot be loaded"},
		fix:    "follow the fix line above, or run 'outliner setup'",
	},
	ClassGeneric: {
		title: "Outline generation failed.",
		causes: []string{
			"the text API config or key is wrong",
			"a network problem",
			"the model is unreachable or does not exist",
		},
		fix: "check text_providers.yaml",
	},
}

// Describe renders the remediation message for err's class. The error text is
// embedded, cut to provider.MaxErrorText characters.
func Describe(err error) string {
	g := guides[Classify(err)]
	detail := ""
	if err != nil {
		detail = provider.Truncate(err.Error(), provider.MaxErrorText)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\ndetails: %s\npossible causes:\n", g.title, detail)
	for i, c := range g.causes {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	fmt.Fprintf(&b, "fix: %s", g.fix)
	return b.String()
}
