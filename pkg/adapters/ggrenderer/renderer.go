// Package ggrenderer implements ports.Renderer with the gg drawing library
// and golang.org/x/image for scaling and BMP output.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/user/framecue/pkg/ports"
)

// Renderer implements ports.Renderer using the gg library.
type Renderer struct{}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{}
}

// EncodeImage encodes an image to the specified format. quality only
// applies to JPEG.
func (r *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case ports.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	case ports.FormatBMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode BMP: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %d", format)
	}

	return buf.Bytes(), nil
}

// ResizeImage resizes an image to the specified dimensions.
func (r *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Annotate returns a copy of img with text drawn on a bar along the bottom
// edge.
func (r *Renderer) Annotate(img image.Image, text string, style ports.TextStyle) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)

	if style.FontPath != "" && style.FontSize > 0 {
		// The built-in face is used when the font cannot be loaded.
		_ = dc.LoadFontFace(style.FontPath, style.FontSize)
	}

	_, textHeight := dc.MeasureString(text)
	pad := textHeight / 2
	barHeight := textHeight + 2*pad
	top := float64(b.Dy()) - barHeight

	if style.Background != nil {
		dc.SetColor(style.Background)
		dc.DrawRectangle(0, top, float64(b.Dx()), barHeight)
		dc.Fill()
	}

	fg := style.Color
	if fg == nil {
		fg = color.White
	}
	dc.SetColor(fg)

	x, ax := pad, 0.0
	switch style.Align {
	case ports.AlignCenter:
		x, ax = float64(b.Dx())/2, 0.5
	case ports.AlignRight:
		x, ax = float64(b.Dx())-pad, 1.0
	}
	dc.DrawStringAnchored(text, x, top+barHeight/2, ax, 0.5)

	return dc.Image()
}

// Ensure Renderer implements ports.Renderer
var _ ports.Renderer = (*Renderer)(nil)
