// Package smartsource selects the decoding backend for a video and falls
// back from software to hardware decoding when the software path cannot
// handle the container or codec.
package smartsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/framecue/pkg/adapters/hwsource"
	"github.com/user/framecue/pkg/adapters/swsource"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
)

// Backend names a decoding strategy.
type Backend string

const (
	// BackendAuto tries software decoding first, then hardware.
	BackendAuto Backend = "auto"
	// BackendSoftware uses the keyframe seek engine over an ffmpeg decode pipe.
	BackendSoftware Backend = "software"
	// BackendHardware uses the platform's zero tolerance frame grabber.
	BackendHardware Backend = "hardware"
)

// ErrUnknownBackend is returned for an unrecognized backend name.
var ErrUnknownBackend = errors.New("smartsource: unknown backend")

// ParseBackend parses "auto", "software" or "hardware". An empty string is auto.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendSoftware, BackendHardware:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q (want auto, software or hardware)", ErrUnknownBackend, s)
	}
}

// Options configures backend selection and the backends themselves.
type Options struct {
	Backend        Backend
	FFmpegPath     string
	FFprobePath    string
	NetworkTimeout time.Duration
	Metrics        *metrics.Metrics
}

// Opener implements ports.Opener by delegating to the selected backend.
type Opener struct {
	backend  Backend
	software ports.Opener
	hardware ports.Opener
	log      ports.Logger
}

// New creates an opener with the real backends. Local files are read
// through fs.
func New(fs ports.FileSystem, opts Options, log ports.Logger) (*Opener, error) {
	sw := swsource.NewOpener(fs, swsource.Options{
		FFmpegPath:     opts.FFmpegPath,
		NetworkTimeout: opts.NetworkTimeout,
		Metrics:        opts.Metrics,
	}, log)
	hw := hwsource.NewOpener(hwsource.Options{
		FFmpegPath:     opts.FFmpegPath,
		FFprobePath:    opts.FFprobePath,
		NetworkTimeout: opts.NetworkTimeout,
		Metrics:        opts.Metrics,
	}, log)
	return NewWithOpeners(opts.Backend, sw, hw, log)
}

// NewWithOpeners creates an opener over explicit backends.
func NewWithOpeners(backend Backend, software, hardware ports.Opener, log ports.Logger) (*Opener, error) {
	backend, err := ParseBackend(string(backend))
	if err != nil {
		return nil, err
	}
	return &Opener{
		backend:  backend,
		software: software,
		hardware: hardware,
		log:      log,
	}, nil
}

// Backend returns the configured strategy.
func (o *Opener) Backend() Backend {
	return o.backend
}

// Open opens loc with the configured backend.
//
// The selection flow:
//   - software: keyframe seek over an ffmpeg pipe (H.264 in MP4 only)
//   - hardware: zero tolerance grabber (AVFoundation on macOS, ffmpeg -hwaccel elsewhere)
//   - auto: software, then hardware if software reports an unsupported format
func (o *Opener) Open(ctx context.Context, loc ports.Location) (ports.MediaSource, error) {
	switch o.backend {
	case BackendSoftware:
		return o.software.Open(ctx, loc)
	case BackendHardware:
		return o.hardware.Open(ctx, loc)
	}

	src, err := o.software.Open(ctx, loc)
	if err == nil || !errors.Is(err, ports.ErrUnsupportedFormat) {
		return src, err
	}
	o.log.Info("Software decoding unavailable for %s (%v), using hardware backend", loc.Name(), err)

	src, hwErr := o.hardware.Open(ctx, loc)
	if hwErr != nil {
		return nil, fmt.Errorf("%w (software: %v)", hwErr, err)
	}
	return src, nil
}

var _ ports.Opener = (*Opener)(nil)
