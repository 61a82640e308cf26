package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redink/outliner/internal/config"
)

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update a configuration value",
	Long: `Update a configuration value. Supported keys:
  active_provider                  provider used for text-only requests
  prompt_template                  path to a custom prompt template ("" for built-in)
  honor_provider_settings          send each provider's model/temperature (true/false)
  log.level                        debug, info, warn or error
  log.format                       text or json
  server.addr                      listen address for 'outliner serve'
  providers.<name>.<field>         field is one of type, model, api_key, base_url,
                                   supports_images, temperature, max_output_tokens`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configSetCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], strings.TrimSpace(args[1])
	path := configPath()

	cfg, err := config.LoadFile(path)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}

	switch {
	case key == "active_provider":
		if _, ok := cfg.Providers.Lookup(value); !ok {
			return fmt.Errorf("unknown provider %q; available: %s", value, strings.Join(cfg.Providers.Names(), ", "))
		}
		cfg.ActiveProvider = value
	case key == "prompt_template":
		cfg.PromptTemplate = value
	case key == "honor_provider_settings":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.HonorProviderSettings = b
	case key == "log.level":
		cfg.Log.Level = value
	case key == "log.format":
		if value != "text" && value != "json" {
			return fmt.Errorf("log.format must be text or json")
		}
		cfg.Log.Format = value
	case key == "server.addr":
		cfg.Server.Addr = value
	case strings.HasPrefix(key, "providers."):
		if err := setProviderField(cfg, strings.TrimPrefix(key, "providers."), value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTo(path, cfg); err != nil {
		return err
	}

	shown := value
	if strings.HasSuffix(key, ".api_key") {
		shown = maskKey(value)
	}
	_, _ = fmt.Fprintf(ioOut, "Set %s = %s\n", key, shown)
	return nil
}

func setProviderField(cfg *config.Config, rest, value string) error {
	i := strings.LastIndex(rest, ".")
	if i <= 0 {
		return fmt.Errorf("expected providers.<name>.<field>")
	}
	name, field := rest[:i], rest[i+1:]

	idx := cfg.Providers.Index(name)
	if idx < 0 {
		return fmt.Errorf("unknown provider %q; add it with 'outliner setup'", name)
	}
	p := &cfg.Providers[idx]

	switch field {
	case "type":
		p.Type = value
	case "model":
		if value == "" {
			return fmt.Errorf("model cannot be empty")
		}
		p.Model = value
	case "api_key":
		p.APIKey = value
	case "base_url":
		p.BaseURL = value
	case "supports_images":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		p.SupportsImages = &b
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		p.Temperature = f
	case "max_output_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		p.MaxOutputTokens = n
	default:
		return fmt.Errorf("unknown provider field: %s", field)
	}
	return nil
}
