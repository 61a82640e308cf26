// Package prompt renders the outline request sent to the text backend.
// The template text is data: it comes from a file named in the config, or
// from the built-in default when none is set.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/redink/outliner/internal/config"
)

//go:embed outline_prompt.txt
var defaultTemplate string

// imageAdvisory is appended when the user supplied reference images.
const imageAdvisory = "\n\n注意：用户提供了 %d 张参考图片，请在生成大纲时考虑这些图片的内容和风格。" +
	"这些图片可能是产品图、个人照片或场景图，请根据图片内容来优化大纲，使生成的内容与图片相关联。"

// Template is a parsed outline prompt. It is read-only after Load and safe
// for concurrent use.
type Template struct {
	name string
	tmpl *template.Template
}

type data struct {
	Topic string
}

// Load reads the template at path, or the built-in default when path is empty.
func Load(path string) (*Template, error) {
	if strings.TrimSpace(path) == "" {
		return Parse("default", defaultTemplate)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, config.NewError(
			"fix prompt_template in the config, or remove it to use the built-in prompt",
			"reading prompt template %s: %v", path, err)
	}
	return Parse(path, string(raw))
}

// Parse compiles text as an outline template. The topic is available as {{.Topic}}.
func Parse(name, text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, config.NewError("put the prompt text in the file", "prompt template %s is empty", name)
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &config.Error{
			Msg:    "parsing prompt template " + name,
			Remedy: "the topic placeholder is {{.Topic}}",
			Err:    err,
		}
	}
	return &Template{name: name, tmpl: t}, nil
}

// Default returns the built-in template.
func Default() *Template {
	t, err := Parse("default", defaultTemplate)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string { return t.name }

// Render substitutes topic and, when imageCount > 0, appends the reference
// image note.
func (t *Template) Render(topic string, imageCount int) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, data{Topic: topic}); err != nil {
		return "", fmt.Errorf("rendering prompt template %s: %w", t.name, err)
	}
	if imageCount > 0 {
		fmt.Fprintf(&b, imageAdvisory, imageCount)
	}
	return b.String(), nil
}
