package mocks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// MediaSource is a mock implementation of ports.MediaSource. Frames are 1x1
// pictures whose pixel encodes the frame number.
type MediaSource struct {
	mu     sync.Mutex
	info   ports.MediaInfo
	cursor int
	closed bool

	seekCalls  []int
	nextCalls  int
	closeCalls int

	inflight    int32
	maxInflight int32

	// Delay, when set, is slept (honoring ctx) before returning frame.
	Delay func(frame int) time.Duration

	SeekToFrameFunc func(ctx context.Context, frame int) (*ports.Frame, error)
	CloseFunc       func() error
}

// NewMediaSource creates a mock source with count frames at rate.
func NewMediaSource(path string, count int, rate timebase.Rational) *MediaSource {
	return &MediaSource{
		info: ports.MediaInfo{
			Location:   ports.Location{Kind: ports.LocalFile, Path: path},
			Width:      1,
			Height:     1,
			FrameRate:  rate,
			TimeBase:   rate.Inverse(),
			FrameCount: count,
			Codec:      "h264",
			Backend:    "mock",
		},
		cursor: -1,
	}
}

// MockFrame builds the 1x1 frame the mock returns for n.
func MockFrame(n int) *ports.Frame {
	return &ports.Frame{Number: n, Width: 1, Height: 1, Stride: 3, Pix: []byte{byte(n), byte(n >> 8), byte(n >> 16)}}
}

func (m *MediaSource) Info() ports.MediaInfo {
	return m.info
}

func (m *MediaSource) SeekToFrame(ctx context.Context, frame int) (*ports.Frame, error) {
	m.mu.Lock()
	m.seekCalls = append(m.seekCalls, frame)
	m.mu.Unlock()
	return m.produce(ctx, frame)
}

func (m *MediaSource) NextFrame(ctx context.Context) (*ports.Frame, error) {
	m.mu.Lock()
	m.nextCalls++
	target := m.cursor + 1
	m.mu.Unlock()
	return m.produce(ctx, target)
}

func (m *MediaSource) PreviousFrame(ctx context.Context) (*ports.Frame, error) {
	m.mu.Lock()
	target := m.cursor - 1
	m.mu.Unlock()
	return m.SeekToFrame(ctx, target)
}

func (m *MediaSource) FrameRange(ctx context.Context, start, end int) ([]*ports.Frame, error) {
	if start < 0 || end >= m.info.FrameCount || start > end {
		return nil, ports.OutOfRange(start, m.info.FrameCount)
	}
	var frames []*ports.Frame
	for n := start; n <= end; n++ {
		f, err := m.produce(ctx, n)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (m *MediaSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MediaSource) produce(ctx context.Context, frame int) (*ports.Frame, error) {
	n := atomic.AddInt32(&m.inflight, 1)
	defer atomic.AddInt32(&m.inflight, -1)
	for {
		peak := atomic.LoadInt32(&m.maxInflight)
		if n <= peak || atomic.CompareAndSwapInt32(&m.maxInflight, peak, n) {
			break
		}
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ports.ErrClosed
	}

	if m.Delay != nil {
		if d := m.Delay(frame); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	var (
		f   *ports.Frame
		err error
	)
	if m.SeekToFrameFunc != nil {
		f, err = m.SeekToFrameFunc(ctx, frame)
	} else if !m.info.InRange(frame) {
		err = ports.OutOfRange(frame, m.info.FrameCount)
	} else {
		f = MockFrame(frame)
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cursor = f.Number
	m.mu.Unlock()
	return f, nil
}

// SeekCalls returns the frames passed to SeekToFrame.
func (m *MediaSource) SeekCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.seekCalls...)
}

// NextCalls returns how many times NextFrame was called.
func (m *MediaSource) NextCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextCalls
}

// Closed reports whether Close was called.
func (m *MediaSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MaxConcurrent returns the highest number of overlapping decode calls seen.
func (m *MediaSource) MaxConcurrent() int {
	return int(atomic.LoadInt32(&m.maxInflight))
}

var _ ports.MediaSource = (*MediaSource)(nil)

// Opener is a mock implementation of ports.Opener. Sources are looked up by
// location path.
type Opener struct {
	mu      sync.Mutex
	sources map[string]*MediaSource
	opened  []ports.Location

	OpenFunc func(ctx context.Context, loc ports.Location) (ports.MediaSource, error)
}

// NewOpener creates an opener serving the given sources.
func NewOpener(sources ...*MediaSource) *Opener {
	o := &Opener{sources: make(map[string]*MediaSource)}
	for _, s := range sources {
		o.sources[s.info.Location.Path] = s
	}
	return o
}

func (o *Opener) Open(ctx context.Context, loc ports.Location) (ports.MediaSource, error) {
	o.mu.Lock()
	o.opened = append(o.opened, loc)
	src, ok := o.sources[loc.Path]
	o.mu.Unlock()

	if o.OpenFunc != nil {
		return o.OpenFunc(ctx, loc)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrSourceNotFound, loc.Path)
	}
	src.info.Location = loc
	return src, nil
}

// Opened returns every location passed to Open.
func (o *Opener) Opened() []ports.Location {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ports.Location(nil), o.opened...)
}

var _ ports.Opener = (*Opener)(nil)

// Display is a mock implementation of ports.Display that records presented
// frame numbers.
type Display struct {
	mu      sync.Mutex
	frames  []int
	updated chan struct{}
}

// NewDisplay creates a recording display.
func NewDisplay() *Display {
	return &Display{updated: make(chan struct{}, 1)}
}

func (d *Display) Present(f *ports.Frame, info ports.MediaInfo) {
	d.mu.Lock()
	d.frames = append(d.frames, f.Number)
	d.mu.Unlock()
	select {
	case d.updated <- struct{}{}:
	default:
	}
}

// Frames returns every presented frame number in order.
func (d *Display) Frames() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.frames...)
}

// Last returns the most recently presented frame number.
func (d *Display) Last() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return 0, false
	}
	return d.frames[len(d.frames)-1], true
}

// WaitFor blocks until frame is the last presented frame or timeout elapses.
func (d *Display) WaitFor(frame int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if last, ok := d.Last(); ok && last == frame {
			return true
		}
		select {
		case <-d.updated:
		case <-deadline:
			return false
		}
	}
}

var _ ports.Display = (*Display)(nil)
