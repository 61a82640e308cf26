package provider

import (
	"strings"

	"github.com/redink/outliner/internal/config"
)

const pickProviderRemedy = "choose an available provider with 'outliner config set active_provider <name>'"

// Select picks the provider for a request. Without image needs it is always
// the active provider. With image needs it is the active provider when that
// one accepts images, else the first image-capable provider in registry order,
// else the active provider anyway. The chosen provider must have an API key.
func Select(cfg *config.Config, needsImageSupport bool) (string, config.Provider, error) {
	if cfg == nil || len(cfg.Providers) == 0 {
		return "", config.Provider{}, config.NewError(
			"add a provider with 'outliner setup' or edit text_providers.yaml",
			"no text providers are configured")
	}

	var (
		selected config.Provider
		found    bool
	)
	if needsImageSupport {
		selected, found = selectImageCapable(cfg)
	}
	if !found {
		active, ok := cfg.Providers.Lookup(cfg.ActiveProvider)
		if !ok {
			return "", config.Provider{}, config.NewError(pickProviderRemedy,
				"text provider %q not found; available: %s",
				cfg.ActiveProvider, strings.Join(cfg.Providers.Names(), ", "))
		}
		selected = active
	}

	if strings.TrimSpace(selected.APIKey) == "" {
		return "", config.Provider{}, config.NewError(
			"run 'outliner config set providers."+selected.Name+".api_key <key>'",
			"text provider %q has no API key", selected.Name)
	}
	return selected.Name, selected, nil
}

func selectImageCapable(cfg *config.Config) (config.Provider, bool) {
	var first *config.Provider
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if !p.SupportsImageInput() {
			continue
		}
		if p.Name == cfg.ActiveProvider {
			return *p, true
		}
		if first == nil {
			first = p
		}
	}
	if first == nil {
		return config.Provider{}, false
	}
	return *first, true
}
