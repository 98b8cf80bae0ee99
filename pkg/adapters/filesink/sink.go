// Package filesink writes exported frames to image files.
package filesink

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// Options configures how frames are written.
type Options struct {
	// Quality is the JPEG quality (1-100). Zero uses the encoder default.
	Quality int
	// Overlay burns the frame's timecode and number into the picture.
	Overlay bool
	// FontPath optionally selects a TrueType font for the overlay.
	FontPath string
}

// Sink saves frames through a FileSystem. The output path is a pattern:
// when it contains a printf verb (for example frame_%06d.png) the frame
// number is substituted, otherwise every frame is written to the same path.
type Sink struct {
	pattern  string
	format   ports.ImageFormat
	fs       ports.FileSystem
	renderer ports.Renderer
	opts     Options
}

// New creates a sink. The image format is chosen from the pattern's
// extension (.png, .jpg, .jpeg, .bmp); any other extension is an error.
func New(pattern string, fs ports.FileSystem, renderer ports.Renderer, opts Options) (*Sink, error) {
	format, err := ports.FormatFromPath(pattern)
	if err != nil {
		return nil, err
	}
	return &Sink{
		pattern:  pattern,
		format:   format,
		fs:       fs,
		renderer: renderer,
		opts:     opts,
	}, nil
}

// Format returns the image format derived from the pattern.
func (s *Sink) Format() ports.ImageFormat {
	return s.format
}

// PathFor returns the file a frame number is written to.
func (s *Sink) PathFor(frame int) string {
	if strings.Contains(s.pattern, "%") {
		return fmt.Sprintf(s.pattern, frame)
	}
	return s.pattern
}

// SaveFrame encodes f and writes it, returning the path written.
func (s *Sink) SaveFrame(f *ports.Frame, info ports.MediaInfo) (string, error) {
	var img image.Image = f.Image()
	if s.opts.Overlay {
		caption := fmt.Sprintf("%s  frame %d/%d",
			timebase.Timecode(timebase.FrameToTime(f.Number, info.FrameRate)), f.Number, info.FrameCount)
		img = s.renderer.Annotate(img, caption, ports.TextStyle{
			FontSize:   16,
			FontPath:   s.opts.FontPath,
			Color:      color.White,
			Background: color.RGBA{A: 160},
			Align:      ports.AlignLeft,
		})
	}

	data, err := s.renderer.EncodeImage(img, s.format, s.opts.Quality)
	if err != nil {
		return "", fmt.Errorf("encode frame %d: %w", f.Number, err)
	}
	path := s.PathFor(f.Number)
	if err := s.fs.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
