// Package imagecompress shrinks reference images before they are embedded in
// a request.
package imagecompress

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	startQuality = 85
	minQuality   = 40
	qualityStep  = 15
	scaleStep    = 0.75
	minDimension = 64
)

// JPEG re-encodes images as JPEG, lowering quality and then resolution until
// the result fits.
type JPEG struct{}

// New returns the default compressor.
func New() JPEG { return JPEG{} }

// Compress returns data untouched when it already fits in maxSizeKB.
func (JPEG) Compress(data []byte, maxSizeKB int) ([]byte, error) {
	limit := maxSizeKB * 1024
	if len(data) <= limit {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	for {
		for q := startQuality; q >= minQuality; q -= qualityStep {
			buf.Reset()
			if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
				return nil, fmt.Errorf("encoding image: %w", err)
			}
			if buf.Len() <= limit {
				return buf.Bytes(), nil
			}
		}

		b := img.Bounds()
		w := int(float64(b.Dx()) * scaleStep)
		if w < minDimension || int(float64(b.Dy())*scaleStep) < minDimension {
			// Smallest attempt is as good as it gets.
			return buf.Bytes(), nil
		}
		img = imaging.Resize(img, w, 0, imaging.Lanczos)
	}
}
