package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/redink/outliner/internal/config"
	"github.com/redink/outliner/internal/logger"
	"github.com/redink/outliner/internal/outline"
	"github.com/redink/outliner/internal/prompt"
	"github.com/redink/outliner/internal/provider"
	"github.com/redink/outliner/internal/server"
)

var (
	configFlag  string
	envFileFlag string
	imageFlags  []string
	jsonFlag    bool
	timeoutFlag time.Duration
)

// Package-level function variables for testability.
// Tests override these to avoid real provider calls.
var (
	newOutliner = func(cfg *config.Config, log *slog.Logger, opts ...outline.Option) (server.Generator, error) {
		tmpl, err := prompt.Load(cfg.PromptTemplate)
		if err != nil {
			return nil, err
		}
		return outline.NewService(cfg, tmpl, append([]outline.Option{outline.WithLogger(log)}, opts...)...)
	}
	ioIn  io.Reader = os.Stdin
	ioOut io.Writer = os.Stdout
	ioErr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "outliner [topic]",
	Short: "Generate paged post outlines from a topic",
	Long: `Outliner asks the configured text provider for a paged outline of a
social post and prints it page by page.

Examples:
  outliner 秋季穿搭分享
  outliner --image cover.png --image https://example.com/shop.jpg 咖啡店探店
  outliner --json 周末露营清单`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadDotEnv,
	RunE:              runOutline,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to text_providers.yaml (default ~/.outliner/text_providers.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "dotenv file with TEXT_API_KEY and friends")
	rootCmd.Flags().StringArrayVarP(&imageFlags, "image", "i", nil, "reference image file or http(s) URL (repeatable)")
	rootCmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full result as JSON")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 10*time.Minute, "give up after this long, retries included")
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadDotEnv(cmd *cobra.Command, args []string) error {
	if envFileFlag == "" {
		return nil
	}
	if err := godotenv.Load(envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFileFlag, err)
	}
	return nil
}

func runOutline(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, "warn")

	images, err := loadImages(imageFlags)
	if err != nil {
		return err
	}

	svc, err := newOutliner(cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutFlag)
	defer cancel()

	res := svc.Generate(ctx, topic, images)

	if jsonFlag {
		enc := json.NewEncoder(ioOut)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else if res.Success {
		printPages(ioOut, res.Pages)
	}

	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

func printPages(w io.Writer, pages []outline.Page) {
	for _, p := range pages {
		_, _ = fmt.Fprintf(w, "\n── page %d/%d · %s ──\n%s\n", p.Index+1, len(pages), p.Type, p.Content)
	}
	_, _ = fmt.Fprintln(w)
}

// loadImages reads local files and passes http(s) URLs through.
func loadImages(refs []string) ([]provider.Image, error) {
	images := make([]provider.Image, 0, len(refs))
	for _, ref := range refs {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			images = append(images, provider.ImageFromURL(ref))
			continue
		}
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
			return nil, fmt.Errorf("%s is %s, not an image", ref, mt.String())
		}
		images = append(images, provider.ImageFromBytes(data))
	}
	return images, nil
}

func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.Path()
}

// loadConfig reads the registry with environment secrets applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath())
	if errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("no config found at %s. Run 'outliner setup' to get started", configPath())
	}
	return cfg, err
}

// newLogger logs to stderr so stdout carries only the outline. fallback is
// the level used when neither the config nor the environment sets one.
func newLogger(cfg *config.Config, fallback string) *slog.Logger {
	level := cfg.Log.Level
	if level == "" {
		level = fallback
	}
	return logger.New(level, cfg.Log.Format, ioErr)
}
