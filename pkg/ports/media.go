package ports

import (
	"context"
	"image"
	"path"
	"path/filepath"
	"strings"

	"github.com/user/framecue/pkg/timebase"
)

// LocationKind distinguishes network sources from local files.
type LocationKind int

const (
	// LocalFile is an absolute path on the local filesystem.
	LocalFile LocationKind = iota
	// RemoteURL is an http:// or https:// URL, kept verbatim.
	RemoteURL
)

// Location is a classified path-or-URL. Classification happens once, in
// package source; every opener consumes the result instead of re-deriving it.
type Location struct {
	Kind LocationKind
	// Path is the absolute local path or the untouched URL.
	Path string
}

// IsURL reports whether l is a network source.
func (l Location) IsURL() bool {
	return l.Kind == RemoteURL
}

// Name returns the file name shown to users.
func (l Location) Name() string {
	if l.IsURL() {
		p := l.Path
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		return path.Base(p)
	}
	return filepath.Base(l.Path)
}

func (l Location) String() string {
	return l.Path
}

// MediaInfo describes an opened video. Fields are fixed for the lifetime of
// the source once Open succeeds.
type MediaInfo struct {
	Location   Location
	Width      int
	Height     int
	FrameRate  timebase.Rational
	TimeBase   timebase.Rational
	FrameCount int
	Codec      string
	Backend    string
}

// Duration returns the stream length in seconds.
func (m MediaInfo) Duration() float64 {
	return timebase.FrameToTime(m.FrameCount, m.FrameRate)
}

// LastFrame returns the highest valid frame number, or -1 for an empty stream.
func (m MediaInfo) LastFrame() int {
	return m.FrameCount - 1
}

// Clamp limits frame to [0, FrameCount-1].
func (m MediaInfo) Clamp(frame int) int {
	if frame > m.FrameCount-1 {
		frame = m.FrameCount - 1
	}
	if frame < 0 {
		frame = 0
	}
	return frame
}

// InRange reports whether frame is a valid frame number.
func (m MediaInfo) InRange(frame int) bool {
	return frame >= 0 && frame < m.FrameCount
}

// Frame is a decoded picture: packed RGB24 rows of Stride bytes.
type Frame struct {
	// Number is the frame's actual presentation frame number.
	Number int
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewFrame allocates a tightly packed RGB frame.
func NewFrame(number, width, height int) *Frame {
	return &Frame{
		Number: number,
		Width:  width,
		Height: height,
		Stride: width * 3,
		Pix:    make([]byte, width*height*3),
	}
}

// Image converts the frame to an RGBA image for encoding and drawing.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+f.Width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// MediaSource is an opened video. Implementations are not safe for
// concurrent use; the controller serializes every call.
type MediaSource interface {
	// Info returns the immutable stream metadata.
	Info() MediaInfo

	// SeekToFrame decodes and returns exactly frame, or fails with
	// ErrFrameOutOfRange / ErrFrameUnavailable.
	SeekToFrame(ctx context.Context, frame int) (*Frame, error)

	// FrameRange returns frames start..end inclusive in ascending order,
	// seeking once.
	FrameRange(ctx context.Context, start, end int) ([]*Frame, error)

	// NextFrame returns the frame after the last one returned.
	NextFrame(ctx context.Context) (*Frame, error)

	// PreviousFrame returns the frame before the last one returned.
	PreviousFrame(ctx context.Context) (*Frame, error)

	// Close releases the decoder and container handles.
	Close() error
}

// Opener opens a classified location with a concrete backend.
type Opener interface {
	Open(ctx context.Context, loc Location) (MediaSource, error)
}

// Display presents decoded frames. Present must not retain f after the
// next call.
type Display interface {
	Present(f *Frame, info MediaInfo)
}
