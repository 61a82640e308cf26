package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MaxImageSizeKB is the size ceiling byte images are compressed to.
const MaxImageSizeKB = 200

const imageDataURIPrefix = "data:image/png;base64,"

// Compressor shrinks image bytes to at most maxSizeKB kilobytes.
type Compressor interface {
	Compress(data []byte, maxSizeKB int) ([]byte, error)
}

// Image is a reference image: raw bytes or an already-resolvable URL.
type Image struct {
	Data []byte
	URL  string
}

func ImageFromBytes(data []byte) Image { return Image{Data: data} }

func ImageFromURL(url string) Image { return Image{URL: url} }

// IsURL reports whether the image is passed by reference.
func (i Image) IsURL() bool { return i.Data == nil }

// Part is one typed block of multimodal content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Content is message content: plain text, or an ordered list of parts.
type Content struct {
	Text  string
	Parts []Part
}

func TextContent(text string) Content { return Content{Text: text} }

// IsMultimodal reports whether the content carries typed parts.
func (c Content) IsMultimodal() bool { return len(c.Parts) > 0 }

// MarshalJSON encodes plain content as a JSON string and multimodal content
// as an array of parts.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultimodal() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// BuildContent returns text unchanged when there are no images. Otherwise it
// returns a text part followed by one image_url part per image, in input
// order. Byte images are compressed and embedded as data URIs; URL images
// pass through.
func BuildContent(text string, images []Image, c Compressor) (Content, error) {
	if len(images) == 0 {
		return TextContent(text), nil
	}

	parts := make([]Part, 0, len(images)+1)
	parts = append(parts, Part{Type: "text", Text: text})

	for i, img := range images {
		url := img.URL
		if !img.IsURL() {
			data, err := compress(c, img.Data)
			if err != nil {
				return Content{}, fmt.Errorf("image %d: %w", i, err)
			}
			url = imageDataURIPrefix + base64.StdEncoding.EncodeToString(data)
		}
		parts = append(parts, Part{Type: "image_url", ImageURL: &ImageURL{URL: url}})
	}
	return Content{Text: text, Parts: parts}, nil
}

func compress(c Compressor, data []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("no image compressor configured")
	}
	out, err := c.Compress(data, MaxImageSizeKB)
	if err != nil {
		return nil, fmt.Errorf("compressing image: %w", err)
	}
	return out, nil
}
