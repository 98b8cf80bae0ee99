// Package controller owns the currently loaded video and serializes every
// seek against it. Requests from the timeline, the autoplay ticker and the
// remote channel all funnel through one Controller, which coalesces scrub
// bursts and guarantees that only the newest surviving request is displayed.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/source"
	"github.com/user/framecue/pkg/timebase"
)

// ErrSuperseded is returned to a caller whose request was overtaken by a
// newer one before its frame could be displayed.
var ErrSuperseded = errors.New("controller: request superseded")

// State is the playback state.
type State int

const (
	// Idle means no video is loaded.
	Idle State = iota
	// Ready means a video is loaded and paused.
	Ready
	// Playing means the autoplay ticker is running.
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	// Debounce is the coalescing window for timeline scrubs.
	Debounce time.Duration
	// RemoteDebounce is the coalescing window for remote timecodes.
	RemoteDebounce time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// DefaultOptions returns the standard windows.
func DefaultOptions() Options {
	return Options{
		Debounce:       50 * time.Millisecond,
		RemoteDebounce: 30 * time.Millisecond,
	}
}

type requestKind int

const (
	seekRequest requestKind = iota
	nextRequest
	prevRequest
)

type request struct {
	seq     uint64
	kind    requestKind
	frame   int
	lenient bool
	window  time.Duration
}

// Controller is the playback/scrub state machine.
type Controller struct {
	opener   ports.Opener
	resolver *source.Resolver
	display  ports.Display
	log      ports.Logger
	metrics  *metrics.Metrics
	opts     Options

	// decodeMu admits one decode at a time against src.
	decodeMu sync.Mutex

	mu      sync.Mutex
	cond    *sync.Cond
	src     ports.MediaSource
	info    ports.MediaInfo
	state   State
	current int
	// decoded is the frame the source cursor sits on, or -1 when unknown.
	decoded int
	lastErr error

	seq   uint64
	shown uint64

	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	loadSeq   uint64
	loaded    uint64

	pending *request

	playID     uint64
	playCancel context.CancelFunc
	remotePlay bool

	closed bool
	stop   chan struct{}
	bg     sync.WaitGroup
}

// New creates a controller and starts its drain loop. Call Close to stop it.
func New(opener ports.Opener, resolver *source.Resolver, display ports.Display, log ports.Logger, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.RemoteDebounce <= 0 {
		opts.RemoteDebounce = DefaultOptions().RemoteDebounce
	}
	genCtx, genCancel := context.WithCancel(context.Background())
	c := &Controller{
		opener:    opener,
		resolver:  resolver,
		display:   display,
		log:       log.WithComponent("controller"),
		metrics:   opts.Metrics,
		opts:      opts,
		decoded:   -1,
		genCtx:    genCtx,
		genCancel: genCancel,
		stop:      make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	c.bg.Add(1)
	go c.drain()
	return c
}

// State returns the playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the displayed frame number.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Info returns the metadata of the loaded video. ok is false when Idle.
func (c *Controller) Info() (info ports.MediaInfo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, c.src != nil
}

// LastError returns the most recent surfaced seek or load failure.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) nextSeqLocked() uint64 {
	c.seq++
	return c.seq
}

// Seek displays frame exactly. Out-of-range frames fail with
// ports.ErrFrameOutOfRange and leave the display unchanged.
func (c *Controller) Seek(ctx context.Context, frame int) (*ports.Frame, error) {
	c.mu.Lock()
	if c.src == nil {
		c.mu.Unlock()
		return nil, ports.ErrNoSource
	}
	if !c.info.InRange(frame) {
		total := c.info.FrameCount
		c.mu.Unlock()
		return nil, ports.OutOfRange(frame, total)
	}
	req := &request{seq: c.nextSeqLocked(), kind: seekRequest, frame: frame}
	c.mu.Unlock()

	return c.execute(ctx, req)
}

// SeekTime displays the frame at seconds using the video's exact frame rate.
func (c *Controller) SeekTime(ctx context.Context, seconds float64) (*ports.Frame, error) {
	info, ok := c.Info()
	if !ok {
		return nil, ports.ErrNoSource
	}
	if seconds < 0 {
		return nil, &ports.FrameError{Frame: -1, Err: fmt.Errorf("%w: negative time %v", ports.ErrFrameOutOfRange, seconds)}
	}
	return c.Seek(ctx, timebase.TimeToFrame(seconds, info.FrameRate))
}

// Scrub queues a timeline request. Bursts are coalesced so only the latest
// request of each debounce window is decoded. Out-of-range frames are
// clamped instead of rejected.
func (c *Controller) Scrub(frame int) {
	c.enqueue(frame, c.opts.Debounce)
}

// ScrubTime queues a timeline request by time.
func (c *Controller) ScrubTime(seconds float64) {
	info, ok := c.Info()
	if !ok {
		return
	}
	c.Scrub(timebase.TimeToFrame(seconds, info.FrameRate))
}

func (c *Controller) enqueue(frame int, window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.src == nil {
		return
	}
	if c.pending != nil {
		c.metrics.IncCoalesced()
		// The window keeps running from the first request in the burst.
		window = c.pending.window
	}
	c.pending = &request{
		seq:     c.nextSeqLocked(),
		kind:    seekRequest,
		frame:   frame,
		lenient: true,
		window:  window,
	}
	c.cond.Signal()
}

// Step moves delta frames from the displayed one, stopping at either end.
func (c *Controller) Step(ctx context.Context, delta int) (*ports.Frame, error) {
	c.mu.Lock()
	if c.src == nil {
		c.mu.Unlock()
		return nil, ports.ErrNoSource
	}
	req := &request{seq: c.nextSeqLocked(), kind: seekRequest, frame: c.current + delta, lenient: true}
	switch delta {
	case 1:
		req.kind = nextRequest
	case -1:
		req.kind = prevRequest
	}
	c.mu.Unlock()

	return c.execute(ctx, req)
}

// drain executes the pending slot. It sleeps for the first request's window
// so later requests in the same burst overwrite the slot instead of queuing.
func (c *Controller) drain() {
	defer c.bg.Done()
	for {
		c.mu.Lock()
		for c.pending == nil && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		window := c.pending.window
		c.mu.Unlock()

		timer := time.NewTimer(window)
		select {
		case <-timer.C:
		case <-c.stop:
			timer.Stop()
			return
		}

		c.mu.Lock()
		req := c.pending
		c.pending = nil
		c.mu.Unlock()
		if req == nil {
			continue
		}

		if _, err := c.execute(context.Background(), req); err != nil && !errors.Is(err, ErrSuperseded) {
			c.report(err)
		}
	}
}

// execute runs req against the current source. Results are only displayed if
// the source was not replaced meanwhile and no newer request was displayed.
func (c *Controller) execute(ctx context.Context, req *request) (*ports.Frame, error) {
	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()

	c.mu.Lock()
	if c.src == nil {
		c.mu.Unlock()
		return nil, ports.ErrNoSource
	}
	if req.seq < c.shown {
		c.mu.Unlock()
		c.metrics.IncSuperseded()
		return nil, ErrSuperseded
	}
	src, info, gen, genCtx := c.src, c.info, c.gen, c.genCtx
	synced := c.decoded >= 0 && c.decoded == c.current

	target := req.frame
	switch req.kind {
	case nextRequest:
		target = c.current + 1
	case prevRequest:
		target = c.current - 1
	}
	if req.lenient {
		target = info.Clamp(target)
		if req.kind != seekRequest && target == c.current {
			// Stepping past either end is a no-op.
			req.kind = seekRequest
		}
	}
	c.mu.Unlock()

	if !info.InRange(target) {
		return nil, ports.OutOfRange(target, info.FrameCount)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(genCtx, cancel)
	defer stopAfter()

	start := time.Now()
	var (
		f   *ports.Frame
		err error
	)
	switch {
	case req.kind == nextRequest && synced:
		f, err = src.NextFrame(dctx)
	case req.kind == prevRequest && synced:
		f, err = src.PreviousFrame(dctx)
	default:
		f, err = src.SeekToFrame(dctx, target)
	}
	c.metrics.ObserveSeek(time.Since(start), err)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.metrics.IncSuperseded()
		return nil, ErrSuperseded
	}
	if err != nil {
		c.decoded = -1
		c.mu.Unlock()
		return nil, err
	}
	c.decoded = f.Number
	if req.seq < c.shown {
		c.mu.Unlock()
		c.metrics.IncSuperseded()
		return nil, ErrSuperseded
	}
	c.shown = req.seq
	c.current = f.Number
	c.mu.Unlock()

	c.present(f, info)
	return f, nil
}

func (c *Controller) present(f *ports.Frame, info ports.MediaInfo) {
	c.metrics.FramePresented(f.Number)
	if c.display != nil {
		c.display.Present(f, info)
	}
}

// report surfaces an asynchronous failure once.
func (c *Controller) report(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.log.Error("Seek failed: %v", err)
}

// Load classifies raw and replaces the current video with it.
func (c *Controller) Load(ctx context.Context, raw string) error {
	loc, err := c.resolver.Classify(raw)
	if err != nil {
		c.failLoad(raw, err)
		return err
	}
	return c.LoadLocation(ctx, loc)
}

// LoadLocation opens loc and, on success, makes it the current video at
// frame 0. On failure the previously loaded video stays active and displayed.
// The new source is opened before the old one is closed, so a failed open
// never leaves the controller without a video.
func (c *Controller) LoadLocation(ctx context.Context, loc ports.Location) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ports.ErrClosed
	}
	c.loadSeq++
	myLoad := c.loadSeq
	c.mu.Unlock()

	c.log.Info("Loading %s", loc)
	src, err := c.opener.Open(ctx, loc)
	if err != nil {
		c.failLoad(loc.Path, err)
		return err
	}

	c.mu.Lock()
	if c.closed || myLoad < c.loaded {
		// A later load already won.
		c.mu.Unlock()
		_ = src.Close()
		return ErrSuperseded
	}
	c.loaded = myLoad
	c.stopPlayLocked()
	c.genCancel()
	c.gen++
	c.genCtx, c.genCancel = context.WithCancel(context.Background())
	old := c.src
	c.src = src
	c.info = src.Info()
	c.state = Ready
	c.current = 0
	c.decoded = -1
	c.lastErr = nil
	req := &request{seq: c.nextSeqLocked(), kind: seekRequest, frame: 0}
	if c.pending != nil {
		// Requests that arrived while opening target the new video.
		c.pending.seq = c.nextSeqLocked()
	}
	c.mu.Unlock()

	c.metrics.IncLoad(nil)

	// Waits for any in-flight decode on the old source, which was canceled
	// above and whose result will be discarded.
	c.decodeMu.Lock()
	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Warn("Closing previous video failed: %v", err)
		}
	}
	c.decodeMu.Unlock()

	info := src.Info()
	c.log.Info("Loaded %s: %dx%d, %s fps, %d frames (%s)",
		loc.Name(), info.Width, info.Height, info.FrameRate, info.FrameCount, info.Backend)

	if _, err := c.execute(ctx, req); err != nil && !errors.Is(err, ErrSuperseded) {
		c.report(err)
		return fmt.Errorf("decode first frame: %w", err)
	}
	return nil
}

func (c *Controller) failLoad(what string, err error) {
	c.metrics.IncLoad(err)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.log.Error("Failed to load %s: %v", what, err)
}

// Play starts the autoplay ticker at the video's exact frame interval.
// Playback from the last frame restarts at frame 0.
func (c *Controller) Play() error {
	c.mu.Lock()
	if c.src == nil {
		c.mu.Unlock()
		return ports.ErrNoSource
	}
	if c.state == Playing {
		c.mu.Unlock()
		return nil
	}
	rewind := c.current >= c.info.LastFrame()
	interval := timebase.FrameDuration(c.info.FrameRate)
	ctx, cancel := context.WithCancel(c.genCtx)
	c.playID++
	id := c.playID
	c.playCancel = cancel
	c.state = Playing
	c.mu.Unlock()

	if rewind {
		if _, err := c.Seek(ctx, 0); err != nil && !errors.Is(err, ErrSuperseded) {
			c.finishPlay(id)
			return err
		}
	}

	c.log.Debug("Playing at %v per frame", interval)
	c.bg.Add(1)
	go c.playLoop(ctx, id, interval)
	return nil
}

func (c *Controller) playLoop(ctx context.Context, id uint64, interval time.Duration) {
	defer c.bg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		req := &request{seq: c.nextSeqLocked(), kind: nextRequest}
		c.mu.Unlock()

		_, err := c.execute(ctx, req)
		switch {
		case err == nil, errors.Is(err, ErrSuperseded):
		case errors.Is(err, ports.ErrFrameOutOfRange):
			c.log.Debug("End of stream reached")
			c.finishPlay(id)
			return
		case ctx.Err() != nil:
			return
		default:
			c.report(err)
			c.finishPlay(id)
			return
		}
	}
}

func (c *Controller) finishPlay(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playID == id && c.state == Playing {
		c.stopPlayLocked()
		c.state = Ready
	}
}

// Pause stops the autoplay ticker.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing {
		return
	}
	c.stopPlayLocked()
	c.state = Ready
}

func (c *Controller) stopPlayLocked() {
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
}

// Close stops playback and the drain loop and closes the current video.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopPlayLocked()
	c.genCancel()
	c.pending = nil
	close(c.stop)
	c.cond.Broadcast()
	src := c.src
	c.src = nil
	c.state = Idle
	c.mu.Unlock()

	c.bg.Wait()

	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()
	if src != nil {
		return src.Close()
	}
	return nil
}
