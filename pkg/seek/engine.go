// Package seek implements frame-accurate seeking over a forward-only decode
// stream: a coarse backward seek to the keyframe at or before the target's
// whole second, then sequential decode until the target frame is reached.
package seek

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// Picture is one decoded picture in presentation order.
type Picture struct {
	PTS    int64
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Stream is a container + decoder pair that can be repositioned at keyframes
// and then decoded forward.
type Stream interface {
	// SeekBackward positions the stream at the last keyframe whose
	// timestamp is at or before pts (in time-base units) and flushes any
	// decoder state.
	SeekBackward(ctx context.Context, pts int64) error

	// Decode returns the next picture in presentation order, or io.EOF.
	Decode(ctx context.Context) (*Picture, error)

	// Close releases the stream.
	Close() error
}

// Engine turns a Stream into a ports.MediaSource. It tracks a decode cursor
// so stepping forward never needs a seek.
type Engine struct {
	stream Stream
	info   ports.MediaInfo
	log    ports.Logger

	cursor     int
	positioned bool
	closed     bool

	decoded int
	seeks   int
}

// New creates an engine over stream. info must carry the exact frame rate,
// time base and frame count.
func New(stream Stream, info ports.MediaInfo, log ports.Logger) *Engine {
	return &Engine{
		stream: stream,
		info:   info,
		log:    log.WithComponent("seek"),
		cursor: -1,
	}
}

// Info returns the stream metadata.
func (e *Engine) Info() ports.MediaInfo {
	return e.info
}

// Current returns the frame number of the last returned frame, or -1.
func (e *Engine) Current() int {
	return e.cursor
}

// Decoded returns how many pictures have been pulled from the stream.
func (e *Engine) Decoded() int {
	return e.decoded
}

// Seeks returns how many container seeks have been issued.
func (e *Engine) Seeks() int {
	return e.seeks
}

// SeekToFrame returns the picture whose computed frame number equals target.
// If the stream has no picture with exactly that number (variable frame
// rate, truncated file) the first picture past it is returned and its
// Number reports which frame it actually is.
func (e *Engine) SeekToFrame(ctx context.Context, target int) (*ports.Frame, error) {
	if e.closed {
		return nil, ports.ErrClosed
	}
	if !e.info.InRange(target) {
		return nil, ports.OutOfRange(target, e.info.FrameCount)
	}
	if e.positioned && target == e.cursor+1 {
		return e.NextFrame(ctx)
	}

	sec := timebase.WholeSeconds(target, e.info.FrameRate)
	for {
		pts := timebase.SecondsToPTS(sec, e.info.TimeBase)
		if err := e.stream.SeekBackward(ctx, pts); err != nil {
			e.positioned = false
			return nil, &ports.FrameError{Frame: target, Err: fmt.Errorf("seek to %ds: %w", sec, err)}
		}
		e.seeks++

		pic, n, err := e.decode(ctx)
		if err != nil {
			e.positioned = false
			if errors.Is(err, io.EOF) {
				return nil, &ports.FrameError{Frame: target, Err: ports.ErrFrameUnavailable}
			}
			return nil, &ports.FrameError{Frame: target, Err: err}
		}

		// The keyframe landed after the target; back off one second.
		if n > target && sec > 0 {
			e.log.Debug("Landed on frame %d past target %d, retrying from %ds", n, target, sec-1)
			sec--
			continue
		}

		for n < target {
			next, nn, err := e.decode(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				e.positioned = false
				return nil, &ports.FrameError{Frame: target, Err: err}
			}
			pic, n = next, nn
		}

		if n != target {
			e.log.Debug("Frame %d not present in stream, returning frame %d", target, n)
		}
		e.cursor = n
		e.positioned = true
		return toFrame(pic, n), nil
	}
}

// NextFrame decodes the frame after the cursor without seeking.
func (e *Engine) NextFrame(ctx context.Context) (*ports.Frame, error) {
	if e.closed {
		return nil, ports.ErrClosed
	}
	target := e.cursor + 1
	if !e.info.InRange(target) {
		return nil, ports.OutOfRange(target, e.info.FrameCount)
	}
	if !e.positioned {
		return e.SeekToFrame(ctx, target)
	}

	for {
		pic, n, err := e.decode(ctx)
		if errors.Is(err, io.EOF) {
			return nil, ports.OutOfRange(target, e.info.FrameCount)
		}
		if err != nil {
			e.positioned = false
			return nil, &ports.FrameError{Frame: target, Err: err}
		}
		if n <= e.cursor {
			continue
		}
		e.cursor = n
		return toFrame(pic, n), nil
	}
}

// PreviousFrame seeks to the frame before the cursor.
func (e *Engine) PreviousFrame(ctx context.Context) (*ports.Frame, error) {
	if e.closed {
		return nil, ports.ErrClosed
	}
	if e.cursor <= 0 {
		return nil, ports.OutOfRange(e.cursor-1, e.info.FrameCount)
	}
	return e.SeekToFrame(ctx, e.cursor-1)
}

// FrameRange seeks once to start and decodes through end inclusive.
func (e *Engine) FrameRange(ctx context.Context, start, end int) ([]*ports.Frame, error) {
	if e.closed {
		return nil, ports.ErrClosed
	}
	if start < 0 || end >= e.info.FrameCount || start > end {
		return nil, &ports.FrameError{
			Frame: start,
			Err:   fmt.Errorf("%w: range %d-%d of %d frames", ports.ErrFrameOutOfRange, start, end, e.info.FrameCount),
		}
	}

	first, err := e.SeekToFrame(ctx, start)
	if err != nil {
		return nil, err
	}
	frames := make([]*ports.Frame, 0, end-start+1)
	frames = append(frames, first)
	for e.cursor < end {
		f, err := e.NextFrame(ctx)
		if err != nil {
			return frames, fmt.Errorf("range %d-%d: %w", start, end, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Close releases the underlying stream.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.positioned = false
	return e.stream.Close()
}

func (e *Engine) decode(ctx context.Context) (*Picture, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	pic, err := e.stream.Decode(ctx)
	if err != nil {
		return nil, 0, err
	}
	e.decoded++
	return pic, timebase.PTSToFrame(pic.PTS, e.info.TimeBase, e.info.FrameRate), nil
}

func toFrame(pic *Picture, n int) *ports.Frame {
	return &ports.Frame{
		Number: n,
		Width:  pic.Width,
		Height: pic.Height,
		Stride: pic.Stride,
		Pix:    pic.Pix,
	}
}

var _ ports.MediaSource = (*Engine)(nil)
