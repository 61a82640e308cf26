// Package config manages the provider registry file at ~/.outliner/text_providers.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider = "google_gemini"
	fileName        = "text_providers.yaml"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Provider is one configured text-generation backend.
type Provider struct {
	Name            string  `yaml:"-"`
	Type            string  `yaml:"type" validate:"required"`
	Model           string  `yaml:"model" validate:"required"`
	Temperature     float64 `yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	MaxOutputTokens int     `yaml:"max_output_tokens,omitempty" validate:"gte=0"`
	APIKey          string  `yaml:"api_key,omitempty"`
	BaseURL         string  `yaml:"base_url,omitempty" validate:"omitempty,url"`
	SupportsImages  *bool   `yaml:"supports_images,omitempty"`
}

// SupportsImageInput reports the image capability, which defaults to true.
func (p Provider) SupportsImageInput() bool {
	return p.SupportsImages == nil || *p.SupportsImages
}

// Providers keeps the order in which providers appear in the file. That order
// is the registry iteration order used by provider selection.
type Providers []Provider

// Lookup returns the provider with the given name.
func (ps Providers) Lookup(name string) (Provider, bool) {
	if i := ps.Index(name); i >= 0 {
		return ps[i], true
	}
	return Provider{}, false
}

// Index returns the position of name, or -1.
func (ps Providers) Index(name string) int {
	for i, p := range ps {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Names lists provider names in registry order.
func (ps Providers) Names() []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

func (ps *Providers) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: providers must be a mapping of name to settings", node.Line)
	}
	out := make(Providers, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if out.Index(name) >= 0 {
			return fmt.Errorf("line %d: duplicate provider %q", node.Content[i].Line, name)
		}
		var p Provider
		if err := node.Content[i+1].Decode(&p); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
		p.Name = name
		out = append(out, p)
	}
	*ps = out
	return nil
}

func (ps Providers) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range ps {
		var value yaml.Node
		if err := value.Encode(p); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: p.Name},
			&value,
		)
	}
	return node, nil
}

type Config struct {
	ActiveProvider string    `yaml:"active_provider"`
	Providers      Providers `yaml:"providers"`
	PromptTemplate string    `yaml:"prompt_template,omitempty"`
	// HonorProviderSettings sends the selected provider's model, temperature
	// and token limit instead of the fixed request defaults.
	HonorProviderSettings bool   `yaml:"honor_provider_settings,omitempty"`
	Log                   Log    `yaml:"log,omitempty"`
	Server                Server `yaml:"server,omitempty"`
}

type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

type Server struct {
	Addr string `yaml:"addr,omitempty"`
}

// UpsertProvider replaces the provider with the same name or appends it.
func (c *Config) UpsertProvider(p Provider) {
	if i := c.Providers.Index(p.Name); i >= 0 {
		c.Providers[i] = p
		return
	}
	c.Providers = append(c.Providers, p)
}

// Validate checks every provider entry.
func (c *Config) Validate() error {
	for _, p := range c.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return NewError("give every provider a non-empty name", "provider with empty name")
		}
		if err := validate.Struct(p); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return NewError(
					"edit the provider in "+fileName+" or run 'outliner config set'",
					"provider %q: field %s fails %q", p.Name, fe.Field(), fe.Tag(),
				)
			}
			return &Error{Msg: fmt.Sprintf("provider %q", p.Name), Err: err}
		}
	}
	return nil
}

// Dir returns the config directory path (~/.outliner).
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".outliner")
}

// Path returns the config file path. OUTLINER_CONFIG overrides the default
// ~/.outliner/text_providers.yaml.
func Path() string {
	if p := ReadEnv().ConfigPath; p != "" {
		return p
	}
	return filepath.Join(Dir(), fileName)
}

// Exists checks if the config file exists.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}

// Load reads the config at Path(). Returns ErrNotFound if it doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads, validates and applies environment secrets to the config at path.
func LoadFrom(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, ReadEnv())
	return cfg, nil
}

// LoadFile reads and validates the config at path as written, without
// environment overrides. Use it when the config will be saved back.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadFrom(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{
			Msg:    fmt.Sprintf("parsing %s", path),
			Remedy: "check YAML indentation and syntax",
			Err:    err,
		}
	}
	if strings.TrimSpace(cfg.ActiveProvider) == "" {
		cfg.ActiveProvider = DefaultProvider
	}
	return &cfg, nil
}

// Save writes the config to Path(), creating the directory if needed.
func Save(cfg *Config) error {
	return SaveTo(Path(), cfg)
}

// SaveTo writes the config to path.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	// API keys live in this file.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Marshal encodes cfg as YAML, keeping provider order.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Default returns a config with a single Gemini provider and no API key.
func Default() *Config {
	return &Config{
		ActiveProvider: DefaultProvider,
		Providers: Providers{{
			Name:            DefaultProvider,
			Type:            "google_gemini",
			Model:           "gemini-2.0-flash-exp",
			Temperature:     1.0,
			MaxOutputTokens: 8000,
		}},
		Log:    Log{Level: "info", Format: "text"},
		Server: Server{Addr: ":8080"},
	}
}
