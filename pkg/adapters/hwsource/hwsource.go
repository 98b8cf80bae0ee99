// Package hwsource is the hardware decoding backend. Each request asks the
// platform for the picture at an exact presentation time with zero
// tolerance and verifies the time of the picture it got back; a mismatch is
// reported as ports.ErrFrameUnavailable instead of showing a neighbour.
//
// On macOS (cgo) pictures come from AVFoundation's image generator. Elsewhere
// ffmpeg is run with -hwaccel auto and the picture time is read back from
// the showinfo filter.
package hwsource

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// Backend is the MediaInfo.Backend value of sources opened here.
const Backend = "hardware"

// Options configures the opener.
type Options struct {
	// FFmpegPath and FFprobePath override binary discovery where ffmpeg
	// is used.
	FFmpegPath  string
	FFprobePath string
	// NetworkTimeout bounds opening a URL source.
	NetworkTimeout time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// defaultNetworkTimeout applies when Options.NetworkTimeout is unset.
const defaultNetworkTimeout = 20 * time.Second

func networkTimeout(opts Options) time.Duration {
	if opts.NetworkTimeout <= 0 {
		return defaultNetworkTimeout
	}
	return opts.NetworkTimeout
}

// openTimeout bounds loading a video's metadata: the network timeout, or
// less when ctx expires sooner.
func openTimeout(ctx context.Context, opts Options) time.Duration {
	timeout := networkTimeout(opts)
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = max(left, 0)
		}
	}
	return timeout
}

// grabber produces exact pictures from one opened video.
type grabber interface {
	info() ports.MediaInfo
	// grab returns count consecutive pictures starting at first together
	// with the presentation time in seconds each one reports.
	grab(ctx context.Context, first, count int) ([]grabbed, error)
	close() error
}

type grabbed struct {
	pix    []byte
	actual float64
}

// Opener opens videos with the platform grabber.
type Opener struct {
	opts Options
	log  ports.Logger
}

// NewOpener creates a hardware opener.
func NewOpener(opts Options, log ports.Logger) *Opener {
	return &Opener{opts: opts, log: log.WithComponent("hwsource")}
}

// Open probes loc and returns a MediaSource that grabs frames on demand.
func (o *Opener) Open(ctx context.Context, loc ports.Location) (ports.MediaSource, error) {
	g, err := openGrabber(ctx, loc, o.opts, o.log)
	if err != nil {
		return nil, err
	}
	info := g.info()
	o.log.Debug("Opened %s: %dx%d @ %s, %d frames", loc.Name(), info.Width, info.Height, info.FrameRate, info.FrameCount)
	return &Source{g: g, info: info, log: o.log, metrics: o.opts.Metrics, cursor: -1}, nil
}

// Source implements ports.MediaSource on a grabber.
type Source struct {
	g       grabber
	info    ports.MediaInfo
	log     ports.Logger
	metrics *metrics.Metrics

	cursor int
	closed bool
}

// Info returns the stream metadata.
func (s *Source) Info() ports.MediaInfo {
	return s.info
}

// SeekToFrame grabs exactly frame or fails with ErrFrameUnavailable.
func (s *Source) SeekToFrame(ctx context.Context, frame int) (*ports.Frame, error) {
	frames, err := s.FrameRange(ctx, frame, frame)
	if err != nil {
		return nil, err
	}
	return frames[0], nil
}

// FrameRange grabs start..end inclusive. All frames are verified; the first
// mismatch fails the whole range.
func (s *Source) FrameRange(ctx context.Context, start, end int) ([]*ports.Frame, error) {
	if s.closed {
		return nil, ports.ErrClosed
	}
	if start == end && !s.info.InRange(start) {
		return nil, ports.OutOfRange(start, s.info.FrameCount)
	}
	if start < 0 || end >= s.info.FrameCount || start > end {
		return nil, &ports.FrameError{
			Frame: start,
			Err:   fmt.Errorf("%w: range %d-%d of %d frames", ports.ErrFrameOutOfRange, start, end, s.info.FrameCount),
		}
	}

	pics, err := s.g.grab(ctx, start, end-start+1)
	if err != nil {
		return nil, &ports.FrameError{Frame: start, Err: err}
	}

	frames := make([]*ports.Frame, 0, len(pics))
	for i, pic := range pics {
		want := start + i
		got := actualFrame(pic.actual, s.info.FrameRate)
		if got != want {
			s.log.Debug("Requested frame %d, platform returned frame %d (%.6fs)", want, got, pic.actual)
			return nil, &ports.FrameError{
				Frame: want,
				Err:   fmt.Errorf("%w: decoder returned frame %d", ports.ErrFrameUnavailable, got),
			}
		}
		s.metrics.IncDecoded(Backend)
		frames = append(frames, &ports.Frame{
			Number: want,
			Width:  s.info.Width,
			Height: s.info.Height,
			Stride: s.info.Width * 3,
			Pix:    pic.pix,
		})
	}
	if len(frames) != end-start+1 {
		return nil, &ports.FrameError{
			Frame: start + len(frames),
			Err:   fmt.Errorf("%w: stream ended early", ports.ErrFrameUnavailable),
		}
	}
	s.cursor = end
	return frames, nil
}

// NextFrame grabs the frame after the cursor.
func (s *Source) NextFrame(ctx context.Context) (*ports.Frame, error) {
	return s.SeekToFrame(ctx, s.cursor+1)
}

// PreviousFrame grabs the frame before the cursor.
func (s *Source) PreviousFrame(ctx context.Context) (*ports.Frame, error) {
	if s.cursor <= 0 {
		return nil, ports.OutOfRange(s.cursor-1, s.info.FrameCount)
	}
	return s.SeekToFrame(ctx, s.cursor-1)
}

// Close releases the platform resources.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.g.close()
}

// actualFrame maps a reported picture time back to a frame number. Platform
// times are rounded to their own time scale, so the nearest frame is used.
func actualFrame(seconds float64, rate timebase.Rational) int {
	return int(math.Round(seconds * rate.Float64()))
}

var _ ports.MediaSource = (*Source)(nil)
var _ ports.Opener = (*Opener)(nil)
