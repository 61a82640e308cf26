// Package outline turns a topic, and optionally reference images, into a
// paged outline using the configured text provider.
package outline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/redink/outliner/internal/config"
	"github.com/redink/outliner/internal/prompt"
	"github.com/redink/outliner/internal/provider"
)

// Request defaults sent unless the config opts into provider settings.
const (
	DefaultModel           = "gpt-4o"
	DefaultTemperature     = 1.0
	DefaultMaxOutputTokens = 8000
)

// Result is the outcome of one Generate call. Failures are values, never
// panics or returned errors.
type Result struct {
	Success   bool   `json:"success"`
	Outline   string `json:"outline,omitempty"`
	Pages     []Page `json:"pages"`
	HasImages bool   `json:"has_images"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// GeneratorFactory builds the backend for a selected provider.
type GeneratorFactory func(ctx context.Context, p config.Provider) (provider.Generator, error)

// Service generates outlines. It holds only read-only state and may be
// shared between goroutines.
type Service struct {
	cfg     *config.Config
	tmpl    *prompt.Template
	factory GeneratorFactory
	retry   provider.RetryPolicy
	log     *slog.Logger
	metrics *Metrics
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(s *Service) { s.factory = f }
}

func WithRetryPolicy(p provider.RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService checks the registry and template up front so that a broken
// setup fails here rather than on the first request.
func NewService(cfg *config.Config, tmpl *prompt.Template, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, config.NewError("run 'outliner setup'", "no text provider configuration loaded")
	}
	if len(cfg.Providers) == 0 {
		return nil, config.NewError(
			"add a provider with 'outliner setup' or edit text_providers.yaml",
			"no text providers are configured")
	}
	if cfg.ActiveProvider == "" {
		return nil, config.NewError(
			"run 'outliner config set active_provider <name>'",
			"active_provider is not set; available: %v", cfg.Providers.Names())
	}
	if tmpl == nil {
		return nil, config.NewError("set prompt_template to a readable file", "no prompt template loaded")
	}

	s := &Service{
		cfg:   cfg,
		tmpl:  tmpl,
		retry: provider.DefaultRetryPolicy(),
		log:   slog.Default(),
		factory: func(ctx context.Context, p config.Provider) (provider.Generator, error) {
			return provider.NewFromConfig(ctx, p)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Debug("outline service ready",
		"active_provider", cfg.ActiveProvider,
		"template", tmpl.Name())
	return s, nil
}

// Generate produces an outline for topic. Any failure is classified and
// reported in Result.Error.
func (s *Service) Generate(ctx context.Context, topic string, images []provider.Image) Result {
	start := time.Now()
	id := uuid.NewString()
	log := s.log.With("request_id", id)
	hasImages := len(images) > 0

	log.InfoContext(ctx, "generating outline",
		"topic", provider.Truncate(topic, 50),
		"images", len(images))

	name, text, err := s.generate(ctx, log, topic, images)
	if err != nil {
		class := Classify(err)
		log.ErrorContext(ctx, "outline generation failed",
			"provider", name,
			"class", class,
			"error", err)
		s.metrics.observe(name, class, false, time.Since(start))
		return Result{Success: false, Error: Describe(err), RequestID: id}
	}

	pages := Parse(text)
	log.InfoContext(ctx, "outline parsed",
		"provider", name,
		"pages", len(pages),
		"chars", len(text),
		"elapsed", time.Since(start).Round(time.Millisecond))
	s.metrics.observe(name, "", true, time.Since(start))

	return Result{
		Success:   true,
		Outline:   text,
		Pages:     pages,
		HasImages: hasImages,
		RequestID: id,
	}
}

func (s *Service) generate(ctx context.Context, log *slog.Logger, topic string, images []provider.Image) (string, string, error) {
	needsImages := len(images) > 0
	name, p, err := provider.Select(s.cfg, needsImages)
	if err != nil {
		return "", "", err
	}
	log.InfoContext(ctx, "provider selected",
		"provider", name,
		"type", p.Type,
		"needs_images", needsImages,
		"supports_images", p.SupportsImageInput())

	backend, err := s.factory(ctx, p)
	if err != nil {
		return name, "", err
	}
	policy := s.retry
	if policy.Logger == nil {
		policy.Logger = log
	}
	gen := provider.WithRetry(backend, policy)

	text, err := s.tmpl.Render(topic, len(images))
	if err != nil {
		return name, "", err
	}

	req := s.request(p)
	req.Prompt = text
	req.Images = images
	log.DebugContext(ctx, "calling text backend",
		"backend", gen.Name(),
		"model", req.Model,
		"temperature", req.Temperature,
		"max_output_tokens", req.MaxOutputTokens)

	out, err := gen.GenerateText(ctx, req)
	return name, out, err
}

// request picks the generation parameters. Provider settings apply only when
// the config opts in; zero values still fall back to the defaults.
func (s *Service) request(p config.Provider) provider.TextRequest {
	req := provider.TextRequest{
		Model:           DefaultModel,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
	if !s.cfg.HonorProviderSettings {
		return req
	}
	if p.Model != "" {
		req.Model = p.Model
	}
	if p.Temperature != 0 {
		req.Temperature = p.Temperature
	}
	if p.MaxOutputTokens != 0 {
		req.MaxOutputTokens = p.MaxOutputTokens
	}
	return req
}
