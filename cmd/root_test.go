package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/redink/outliner/internal/config"
	"github.com/redink/outliner/internal/outline"
	"github.com/redink/outliner/internal/provider"
	"github.com/redink/outliner/internal/server"
)

// mockOutliner records calls and returns a fixed result.
type mockOutliner struct {
	result outline.Result
	topic  string
	images []provider.Image
}

func (m *mockOutliner) Generate(_ context.Context, topic string, images []provider.Image) outline.Result {
	m.topic = topic
	m.images = images
	return m.result
}

// saveCmdVars saves the package-level vars and returns a restore function.
func saveCmdVars(t *testing.T) func() {
	t.Helper()
	origNewOutliner := newOutliner
	origListen := listenAndServe
	origIoIn, origIoOut, origIoErr := ioIn, ioOut, ioErr
	origConfig, origImages, origJSON, origTimeout, origAddr := configFlag, imageFlags, jsonFlag, timeoutFlag, addrFlag
	return func() {
		newOutliner = origNewOutliner
		listenAndServe = origListen
		ioIn, ioOut, ioErr = origIoIn, origIoOut, origIoErr
		configFlag, imageFlags, jsonFlag, timeoutFlag, addrFlag = origConfig, origImages, origJSON, origTimeout, origAddr
	}
}

// setupTestConfig writes cfg to a temp file and points --config at it.
func setupTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	for _, k := range []string{"TEXT_API_KEY", "BLTCY_API_KEY", "TEXT_API_BASE_URL", "OUTLINER_CONFIG", "OUTLINER_LOG_LEVEL", "OUTLINER_LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "text_providers.yaml")
	if cfg != nil {
		if err := config.SaveTo(path, cfg); err != nil {
			t.Fatalf("save config: %v", err)
		}
	}
	configFlag = path
	return path
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers[0].APIKey = "test-key-123456"
	return cfg
}

func TestRunOutline(t *testing.T) {
	pages := []outline.Page{
		{Index: 0, Type: outline.PageCover, Content: "[封面] Intro"},
		{Index: 1, Type: outline.PageSummary, Content: "[总结] Wrap"},
	}
	pngPath := filepath.Join(t.TempDir(), "ref.png")
	if err := os.WriteFile(pngPath, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600); err != nil {
		t.Fatal(err)
	}
	textPath := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(textPath, []byte("just words"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		args       []string
		images     []string
		json       bool
		noConfig   bool
		result     outline.Result
		wantErr    string
		wantOut    []string
		wantTopic  string
		wantImages int
	}{
		{
			name:      "prints pages",
			args:      []string{"autumn", "outfits"},
			result:    outline.Result{Success: true, Pages: pages},
			wantOut:   []string{"page 1/2 · cover", "[封面] Intro", "page 2/2 · summary"},
			wantTopic: "autumn outfits",
		},
		{
			name:       "images from file and url",
			args:       []string{"coffee"},
			images:     []string{pngPath, "https://example.com/a.jpg"},
			result:     outline.Result{Success: true, Pages: pages, HasImages: true},
			wantTopic:  "coffee",
			wantImages: 2,
		},
		{
			name:    "json output",
			args:    []string{"coffee"},
			json:    true,
			result:  outline.Result{Success: true, Outline: "[封面] Intro", Pages: pages, RequestID: "r1"},
			wantOut: []string{`"success": true`, `"type": "cover"`, `"request_id": "r1"`, "[封面] Intro"},
		},
		{
			name:    "failure returns classified error",
			args:    []string{"coffee"},
			result:  outline.Result{Success: false, Error: "API quota limit reached."},
			wantErr: "API quota limit reached.",
		},
		{
			name:    "json failure still prints result",
			args:    []string{"coffee"},
			json:    true,
			result:  outline.Result{Success: false, Error: "boom"},
			wantErr: "boom",
			wantOut: []string{`"success": false`, `"error": "boom"`},
		},
		{
			name:     "no config",
			args:     []string{"coffee"},
			noConfig: true,
			wantErr:  "outliner setup",
		},
		{
			name:    "missing image file",
			args:    []string{"coffee"},
			images:  []string{filepath.Join(t.TempDir(), "nope.png")},
			wantErr: "reading image",
		},
		{
			name:    "non-image file",
			args:    []string{"coffee"},
			images:  []string{textPath},
			wantErr: "not an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restore := saveCmdVars(t)
			defer restore()

			if tt.noConfig {
				setupTestConfig(t, nil)
			} else {
				setupTestConfig(t, testConfig())
			}

			mock := &mockOutliner{result: tt.result}
			newOutliner = func(*config.Config, *slog.Logger, ...outline.Option) (server.Generator, error) {
				return mock, nil
			}
			out := &bytes.Buffer{}
			ioOut = out
			ioErr = &bytes.Buffer{}
			imageFlags = tt.images
			jsonFlag = tt.json

			err := runOutline(rootCmd, tt.args)

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q, got:\n%s", want, out.String())
				}
			}
			if tt.wantTopic != "" && mock.topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", mock.topic, tt.wantTopic)
			}
			if len(mock.images) != tt.wantImages {
				t.Errorf("images = %d, want %d", len(mock.images), tt.wantImages)
			}
		})
	}
}

func TestRunOutlineJSONIsValid(t *testing.T) {
	restore := saveCmdVars(t)
	defer restore()
	setupTestConfig(t, testConfig())

	newOutliner = func(*config.Config, *slog.Logger, ...outline.Option) (server.Generator, error) {
		return &mockOutliner{result: outline.Result{Success: true, Outline: "<b>x</b>", Pages: []outline.Page{{Type: outline.PageContent, Content: "<b>x</b>"}}}}, nil
	}
	out := &bytes.Buffer{}
	ioOut = out
	jsonFlag = true

	if err := runOutline(rootCmd, []string{"t"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got outline.Result
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Outline != "<b>x</b>" {
		t.Errorf("Outline = %q", got.Outline)
	}
	if !strings.Contains(out.String(), `"<b>x</b>"`) {
		t.Error("HTML should not be escaped in CLI output")
	}
}

func TestRunOutlineRealServiceConfigError(t *testing.T) {
	restore := saveCmdVars(t)
	defer restore()

	cfg := testConfig()
	cfg.PromptTemplate = filepath.Join(t.TempDir(), "missing.txt")
	setupTestConfig(t, cfg)
	ioOut = &bytes.Buffer{}
	ioErr = &bytes.Buffer{}

	err := runOutline(rootCmd, []string{"t"})
	if err == nil || !strings.Contains(err.Error(), "reading prompt template") {
		t.Fatalf("error = %v, want prompt template error", err)
	}
}

func TestRunOutlineNoArgsShowsHelp(t *testing.T) {
	restore := saveCmdVars(t)
	defer restore()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	defer rootCmd.SetOut(nil)

	if err := runOutline(rootCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "outliner [topic]") {
		t.Errorf("help output missing usage, got:\n%s", out)
	}
}

func TestLoadDotEnv(t *testing.T) {
	restore := saveCmdVars(t)
	defer restore()
	origEnvFile := envFileFlag
	defer func() { envFileFlag = origEnvFile }()

	// godotenv never overrides a variable that is already set, even to "".
	t.Setenv("OUTLINER_DOTENV_TEST", "")
	_ = os.Unsetenv("OUTLINER_DOTENV_TEST")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OUTLINER_DOTENV_TEST=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	envFileFlag = filepath.Join(t.TempDir(), "missing.env")
	if err := loadDotEnv(rootCmd, nil); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}

	envFileFlag = path
	if err := loadDotEnv(rootCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("OUTLINER_DOTENV_TEST"); got != "from-dotenv" {
		t.Errorf("OUTLINER_DOTENV_TEST = %q, want from-dotenv", got)
	}
}

func TestRunServe(t *testing.T) {
	restore := saveCmdVars(t)
	defer restore()

	cfg := testConfig()
	cfg.Server.Addr = ":9999"
	setupTestConfig(t, cfg)
	ioErr = &bytes.Buffer{}

	var gotAddr string
	var gotOpts int
	newOutliner = func(_ *config.Config, _ *slog.Logger, opts ...outline.Option) (server.Generator, error) {
		gotOpts = len(opts)
		return &mockOutliner{}, nil
	}
	listenAndServe = func(_ *cobra.Command, srv *server.Server, addr string) error {
		gotAddr = addr
		if srv == nil {
			t.Error("server is nil")
		}
		return nil
	}

	if err := runServe(serveCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != ":9999" {
		t.Errorf("addr = %q, want :9999", gotAddr)
	}
	if gotOpts != 1 {
		t.Errorf("options = %d, want metrics option", gotOpts)
	}

	addrFlag = "127.0.0.1:7000"
	if err := runServe(serveCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != "127.0.0.1:7000" {
		t.Errorf("addr = %q, want flag value", gotAddr)
	}
}
