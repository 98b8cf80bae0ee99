package mocks

import (
	"image"

	"github.com/user/framecue/pkg/ports"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	EncodeImageFunc func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc func(img image.Image, width, height int) image.Image
	AnnotateFunc    func(img image.Image, text string, style ports.TextStyle) image.Image

	// Annotations records every caption passed to Annotate.
	Annotations []string
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte(format.String()), nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (m *Renderer) Annotate(img image.Image, text string, style ports.TextStyle) image.Image {
	m.Annotations = append(m.Annotations, text)
	if m.AnnotateFunc != nil {
		return m.AnnotateFunc(img, text, style)
	}
	return img
}

var _ ports.Renderer = (*Renderer)(nil)
