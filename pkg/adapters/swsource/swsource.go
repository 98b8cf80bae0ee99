// Package swsource is the software decoding backend: the MP4 sample tables
// are indexed with mp4ff, access units are decoded by an ffmpeg pipe, and
// the seek engine turns that forward-only stream into exact frame access.
package swsource

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/user/framecue/pkg/adapters/ffmpegdec"
	"github.com/user/framecue/pkg/adapters/httprange"
	"github.com/user/framecue/pkg/adapters/mp4index"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/seek"
)

// Backend is the MediaInfo.Backend value of sources opened here.
const Backend = "software"

// Options configures the opener.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// NetworkTimeout bounds connecting to a URL source.
	NetworkTimeout time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Opener opens H.264 MP4 files and URLs.
type Opener struct {
	fs   ports.FileSystem
	opts Options
	log  ports.Logger
}

// NewOpener creates an opener reading local files through fs.
func NewOpener(fs ports.FileSystem, opts Options, log ports.Logger) *Opener {
	return &Opener{fs: fs, opts: opts, log: log.WithComponent("swsource")}
}

// Open indexes the container and returns a frame-accurate MediaSource.
func (o *Opener) Open(ctx context.Context, loc ports.Location) (ports.MediaSource, error) {
	ffmpeg, err := ffmpegdec.Find("ffmpeg", o.opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrUnsupportedFormat, err)
	}

	r, err := o.openReader(ctx, loc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ix, err := mp4index.Build(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", loc.Name(), err)
	}
	rate, err := ix.FrameRate()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", loc.Name(), err)
	}
	o.log.Debug("Indexed %d samples, %d keyframes in %v", ix.FrameCount(), len(ix.Keyframes()), time.Since(start))

	info := ports.MediaInfo{
		Location:   loc,
		Width:      ix.Width,
		Height:     ix.Height,
		FrameRate:  rate,
		TimeBase:   ix.TimeBase(),
		FrameCount: ix.FrameCount(),
		Codec:      string(ix.Codec),
		Backend:    Backend,
	}
	return seek.New(newStream(r, ix, ffmpeg, o.log, o.opts.Metrics), info, o.log), nil
}

func (o *Opener) openReader(ctx context.Context, loc ports.Location) (io.ReadSeekCloser, error) {
	if loc.IsURL() {
		return httprange.Open(ctx, loc.Path, httprange.Options{Timeout: o.opts.NetworkTimeout})
	}
	return o.fs.Open(loc.Path)
}

var _ ports.Opener = (*Opener)(nil)
