package thumbnail

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPage is returned for a page outside 1..page count.
	ErrInvalidPage = errors.New("invalid page")
	// ErrInvalidResolution is returned for an unknown resolution class.
	ErrInvalidResolution = errors.New("invalid resolution")
	// ErrThumbnailFailed wraps every render failure; see FailedError.
	ErrThumbnailFailed = errors.New("thumbnail failed")
)

// FailedError carries the human-readable reason of a failed render.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return ErrThumbnailFailed.Error() + ": " + e.Reason
}

func (e *FailedError) Unwrap() error {
	return ErrThumbnailFailed
}

// Resolution is a thumbnail size class.
type Resolution string

const (
	ResolutionSmall  Resolution = "small"
	ResolutionMedium Resolution = "medium"
	ResolutionLarge  Resolution = "large"
)

// DefaultResolution is used when a request names none.
const DefaultResolution = ResolutionMedium

var widths = map[Resolution]int{
	ResolutionSmall:  200,
	ResolutionMedium: 600,
	ResolutionLarge:  1200,
}

// ParseResolution parses a resolution class; empty means DefaultResolution.
func ParseResolution(s string) (Resolution, error) {
	if s == "" {
		return DefaultResolution, nil
	}
	r := Resolution(strings.ToLower(s))
	if _, ok := widths[r]; !ok {
		return "", fmt.Errorf("%w: %q (want small, medium or large)", ErrInvalidResolution, s)
	}
	return r, nil
}

// Width returns the target pixel width.
func (r Resolution) Width() int {
	if w, ok := widths[r]; ok {
		return w
	}
	return widths[DefaultResolution]
}

// Format is the encoded image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("unsupported thumbnail format %q", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}
