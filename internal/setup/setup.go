// Package setup runs the interactive wizard that adds or updates a text
// provider in the registry file. Nothing is written until the user confirms.
package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/redink/outliner/internal/config"
)

const (
	defaultOpenAIBase  = "https://api.openai.com"
	defaultOllamaHost  = "http://localhost:11434"
	defaultOpenAIModel = "gpt-4o"
	defaultGeminiModel = "gemini-2.0-flash-exp"
	ollamaPlaceholder  = "ollama"
)

type backend struct {
	typ   string
	label string
}

var backends = []backend{
	{typ: "openai_compatible", label: "OpenAI-compatible chat completions API"},
	{typ: "google_gemini", label: "Google Gemini"},
	{typ: "ollama", label: "Local Ollama"},
}

// wizard shares one buffered reader across prompts so that lines typed ahead
// are not lost between questions.
type wizard struct {
	in  *bufio.Reader
	out io.Writer
}

// Run executes the interactive setup flow against the config file at path.
// in and out are injectable for testability.
func Run(path string, in io.Reader, out io.Writer) error {
	w := &wizard{in: bufio.NewReader(in), out: out}

	_, _ = fmt.Fprintln(out, "Outliner Setup")
	_, _ = fmt.Fprintln(out, "==============")

	cfg, err := config.LoadFile(path)
	switch {
	case errors.Is(err, config.ErrNotFound):
		defaults := config.Default()
		cfg = &config.Config{Log: defaults.Log, Server: defaults.Server}
	case err != nil:
		return err
	default:
		_, _ = fmt.Fprintf(out, "Existing providers: %s (active: %s)\n",
			strings.Join(cfg.Providers.Names(), ", "), cfg.ActiveProvider)
	}

	p, err := w.provider()
	if err != nil {
		return err
	}

	if existing, ok := cfg.Providers.Lookup(p.Name); ok {
		_, _ = fmt.Fprintf(out, "\nProvider %q already exists (type %s, model %s).\n", p.Name, existing.Type, existing.Model)
		if !w.confirm("Replace it?", false) {
			return fmt.Errorf("setup cancelled, %q left unchanged", p.Name)
		}
	}
	cfg.UpsertProvider(p)

	if cfg.ActiveProvider == "" || cfg.ActiveProvider == p.Name {
		cfg.ActiveProvider = p.Name
	} else if w.confirm(fmt.Sprintf("Make %q the active provider (currently %q)?", p.Name, cfg.ActiveProvider), true) {
		cfg.ActiveProvider = p.Name
	}

	if p.Type != "openai_compatible" && !cfg.HonorProviderSettings {
		_, _ = fmt.Fprintf(out, "\nBy default every request asks for model %s.\n", defaultOpenAIModel)
		if w.confirm("Send each provider's own model and temperature instead?", true) {
			cfg.HonorProviderSettings = true
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTo(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\nConfig saved to %s\n", path)
	_, _ = fmt.Fprintln(out, "Ready! Try: outliner 秋季穿搭分享")
	return nil
}

func (w *wizard) provider() (config.Provider, error) {
	_, _ = fmt.Fprintln(w.out, "\nProvider type:")
	for i, b := range backends {
		_, _ = fmt.Fprintf(w.out, "  %d. %s (%s)\n", i+1, b.typ, b.label)
	}
	idx, err := w.choose("Select type", len(backends))
	if err != nil {
		return config.Provider{}, err
	}
	typ := backends[idx].typ

	p := config.Provider{
		Type:            typ,
		Temperature:     1.0,
		MaxOutputTokens: 8000,
	}
	p.Name = w.ask("Provider name", typ)

	switch typ {
	case "openai_compatible":
		p.BaseURL = w.ask("Base URL", defaultOpenAIBase)
		p.Model = w.ask("Model", defaultOpenAIModel)
		p.APIKey = w.ask("API key (empty reads TEXT_API_KEY at runtime)", "")
	case "google_gemini":
		p.Model = w.ask("Model", defaultGeminiModel)
		p.APIKey = w.ask("API key (empty reads TEXT_API_KEY at runtime)", "")
	case "ollama":
		p.BaseURL = w.ask("Ollama host", defaultOllamaHost)
		if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
			return config.Provider{}, fmt.Errorf("invalid URL %q: %w", p.BaseURL, err)
		}
		if !isOllamaReachable(p.BaseURL) {
			return config.Provider{}, fmt.Errorf("ollama is not reachable at %s. Start it with: ollama serve", p.BaseURL)
		}
		_, _ = fmt.Fprintln(w.out, "[ok] Ollama is running")
		client, err := ollamaClient(p.BaseURL)
		if err != nil {
			return config.Provider{}, err
		}
		if p.Model, err = w.selectModel(client); err != nil {
			return config.Provider{}, err
		}
		// Ollama ignores the key, but every selected provider must carry one.
		p.APIKey = ollamaPlaceholder
	}

	if !w.confirm("Does this model accept images?", true) {
		no := false
		p.SupportsImages = &no
	}
	return p, nil
}

func (w *wizard) selectModel(client *api.Client) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := client.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing models: %w", err)
	}

	if len(models.Models) == 0 {
		return w.pullRecommendedModel(client)
	}

	_, _ = fmt.Fprintln(w.out, "\nAvailable models:")
	for i, m := range models.Models {
		_, _ = fmt.Fprintf(w.out, "  %d. %s\n", i+1, m.Name)
	}
	idx, err := w.choose("Select model", len(models.Models))
	if err != nil {
		return "", err
	}

	selected := models.Models[idx].Name
	_, _ = fmt.Fprintf(w.out, "[ok] Selected: %s\n", selected)
	return selected, nil
}

func (w *wizard) pullRecommendedModel(client *api.Client) (string, error) {
	_, _ = fmt.Fprintln(w.out, "\nNo models found. Pull a recommended model?")
	_, _ = fmt.Fprintln(w.out, "  1. qwen2.5:7b    (good Chinese output, ~4.7GB)")
	_, _ = fmt.Fprintln(w.out, "  2. llava:7b      (accepts images, ~4.7GB)")
	_, _ = fmt.Fprintln(w.out, "  3. Skip")
	_, _ = fmt.Fprint(w.out, "\nSelect [1]: ")

	var model string
	switch input := w.readLine(); input {
	case "", "1":
		model = "qwen2.5:7b"
	case "2":
		model = "llava:7b"
	case "3":
		return "", fmt.Errorf("no model selected. Pull a model manually with: ollama pull <model>")
	default:
		return "", fmt.Errorf("invalid selection: %s", input)
	}

	_, _ = fmt.Fprintf(w.out, "Pulling %s (this may take a few minutes)...\n", model)

	// Model pulls can be large (GBs).
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	err := client.Pull(ctx, &api.PullRequest{Model: model}, func(resp api.ProgressResponse) error {
		if resp.Total > 0 {
			pct := float64(resp.Completed) / float64(resp.Total) * 100
			_, _ = fmt.Fprintf(w.out, "\r  %.0f%% downloaded", pct)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("pulling model: %w", err)
	}
	_, _ = fmt.Fprintf(w.out, "\n[ok] %s ready\n", model)
	return model, nil
}

// choose reads a 1-based selection; empty input picks the first entry.
func (w *wizard) choose(label string, n int) (int, error) {
	_, _ = fmt.Fprintf(w.out, "\n%s [1]: ", label)
	input := w.readLine()
	if input == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(input)
	if err != nil || i < 1 || i > n {
		return 0, fmt.Errorf("invalid selection: %s", input)
	}
	return i - 1, nil
}

func (w *wizard) ask(label, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		_, _ = fmt.Fprintf(w.out, "%s: ", label)
	}
	if v := w.readLine(); v != "" {
		return v
	}
	return def
}

func (w *wizard) confirm(prompt string, defaultYes bool) bool {
	hint := "[Y/n]"
	if !defaultYes {
		hint = "[y/N]"
	}
	_, _ = fmt.Fprintf(w.out, "%s %s: ", prompt, hint)

	switch strings.ToLower(w.readLine()) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}

// readLine reads a single line, trimming whitespace. EOF yields "".
func (w *wizard) readLine() string {
	line, _ := w.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func ollamaClient(host string) (*api.Client, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing host URL: %w", err)
	}
	// Callers bound each call with a context; a pull may run for many minutes.
	return api.NewClient(base, &http.Client{}), nil
}

func isOllamaReachable(host string) bool {
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(host)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
