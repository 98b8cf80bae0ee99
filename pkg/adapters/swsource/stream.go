package swsource

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/framecue/pkg/adapters/ffmpegdec"
	"github.com/user/framecue/pkg/adapters/mp4index"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/seek"
)

// reorderDepth bounds how far a picture's presentation position may lie from
// its decode position. H.264 allows at most 16 reference frames.
const reorderDepth = 32

var errNotPositioned = errors.New("swsource: decode before seek")

// stream implements seek.Stream. Every SeekBackward restarts the decoder at
// a keyframe; a feeder goroutine writes access units from there to the end
// of the file while Decode pulls pictures.
//
// A restart does not wait for the previous feeder: it may be blocked on a
// stalled reader. Feeders take rmu around each sample read, and Close closes
// the reader before waiting for them.
type stream struct {
	r       io.ReadSeekCloser
	ix      *mp4index.Index
	ffmpeg  string
	log     ports.Logger
	metrics *metrics.Metrics

	rmu     sync.Mutex
	feeders sync.WaitGroup

	pipe  *ffmpegdec.Pipe
	feed  *feeder
	queue *ptsQueue
}

func newStream(r io.ReadSeekCloser, ix *mp4index.Index, ffmpeg string, log ports.Logger, m *metrics.Metrics) *stream {
	return &stream{r: r, ix: ix, ffmpeg: ffmpeg, log: log, metrics: m}
}

func (s *stream) SeekBackward(ctx context.Context, pts int64) error {
	s.stop()
	if err := ctx.Err(); err != nil {
		return err
	}

	k := s.ix.KeyframeBefore(pts)
	pipe, err := ffmpegdec.Start(s.ffmpeg, s.ix.Width, s.ix.Height)
	if err != nil {
		return err
	}
	s.log.Debug("Decoding from keyframe %d (pts %d)", k, s.ix.Samples[k].PTS)

	s.pipe = pipe
	s.queue = newPTSQueue(s.ix.Samples[k:])
	s.feed = s.startFeeder(k, pipe)
	return nil
}

func (s *stream) Decode(ctx context.Context) (*seek.Picture, error) {
	if s.pipe == nil {
		return nil, errNotPositioned
	}

	pix, err := s.pipe.ReadFrame(ctx)
	if errors.Is(err, io.EOF) {
		select {
		case <-s.feed.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.feed.err != nil {
			return nil, s.feed.err
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	pts, ok := s.queue.pop()
	if !ok {
		s.log.Debug("Decoder produced more pictures than samples")
		return nil, io.EOF
	}
	s.metrics.IncDecoded(Backend)
	return &seek.Picture{
		PTS:    pts,
		Width:  s.pipe.Width(),
		Height: s.pipe.Height(),
		Stride: s.pipe.Width() * 3,
		Pix:    pix,
	}, nil
}

// stop kills the running decoder and tells its feeder to quit.
func (s *stream) stop() {
	if s.pipe == nil {
		return
	}
	close(s.feed.quit)
	_ = s.pipe.Close()
	s.pipe, s.feed, s.queue = nil, nil, nil
}

func (s *stream) Close() error {
	s.stop()
	err := s.r.Close()
	s.feeders.Wait()
	return err
}

func (s *stream) readSample(i int) ([]byte, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return s.ix.ReadSample(s.r, i)
}

// feeder writes samples start..end to the decoder. err is valid once done
// is closed.
type feeder struct {
	quit chan struct{}
	done chan struct{}
	err  error
}

func (s *stream) startFeeder(start int, pipe *ffmpegdec.Pipe) *feeder {
	f := &feeder{quit: make(chan struct{}), done: make(chan struct{})}
	s.feeders.Add(1)
	go func() {
		defer s.feeders.Done()
		defer close(f.done)
		defer pipe.CloseInput()

		for i := start; i < len(s.ix.Samples); i++ {
			select {
			case <-f.quit:
				return
			default:
			}
			au, err := s.readSample(i)
			if err != nil {
				f.err = fmt.Errorf("read sample %d: %w", i, err)
				return
			}
			if _, err := pipe.Write(au); err != nil {
				// The decoder is gone; ReadFrame reports why.
				return
			}
		}
	}()
	return f
}

// ptsQueue hands out presentation timestamps in ascending order while the
// decoder emits pictures in presentation order.
type ptsQueue struct {
	samples []mp4index.Sample
	next    int
	h       int64Heap
}

func newPTSQueue(samples []mp4index.Sample) *ptsQueue {
	return &ptsQueue{samples: samples}
}

func (q *ptsQueue) pop() (int64, bool) {
	for q.next < len(q.samples) && q.h.Len() < reorderDepth {
		heap.Push(&q.h, q.samples[q.next].PTS)
		q.next++
	}
	if q.h.Len() == 0 {
		return 0, false
	}
	return heap.Pop(&q.h).(int64), true
}

type int64Heap []int64

func (h int64Heap) Len() int            { return len(h) }
func (h int64Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h int64Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *int64Heap) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *int64Heap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
