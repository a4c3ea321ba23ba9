package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// normalize fits a rendered page to width and encodes it as format.
// Transparent areas are flattened onto white.
func normalize(data []byte, width int, format Format) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}

	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(85))
	default:
		err = imaging.Encode(&buf, flat, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
