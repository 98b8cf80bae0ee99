package ports

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
)

// Renderer abstracts image processing for frame export and preview.
type Renderer interface {
	// EncodeImage encodes an image to the specified format.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage resizes an image to the specified dimensions.
	ResizeImage(img image.Image, width, height int) image.Image

	// Annotate returns a copy of img with text drawn as a caption.
	Annotate(img image.Image, text string, style TextStyle) image.Image
}

// TextStyle defines caption rendering properties.
type TextStyle struct {
	FontSize   float64
	FontPath   string
	Color      color.Color
	Background color.Color
	Align      TextAlign
}

// TextAlign specifies text alignment.
type TextAlign int

const (
	AlignLeft TextAlign = iota
	AlignCenter
	AlignRight
)

// ImageFormat specifies image encoding format.
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota
	FormatPNG
	FormatBMP
)

func (f ImageFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	default:
		return "unknown"
	}
}

// ContentType returns the MIME type of the format.
func (f ImageFormat) ContentType() string {
	return "image/" + f.String()
}

// FormatFromPath picks the image format from a file extension.
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".bmp":
		return FormatBMP, nil
	default:
		return 0, fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
}
