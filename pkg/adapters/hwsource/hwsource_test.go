package hwsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/framecue/pkg/adapters/logger"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// fakeGrabber reports picture times at 60000/1001 fps. Frame n is reported
// as frame n+wrong[n].
type fakeGrabber struct {
	meta   ports.MediaInfo
	wrong  map[int]int
	calls  int
	closed bool
}

func newFakeSource(count int, wrong map[int]int) (*Source, *fakeGrabber) {
	g := &fakeGrabber{
		meta: ports.MediaInfo{
			Width:      2,
			Height:     1,
			FrameRate:  timebase.R(60000, 1001),
			TimeBase:   timebase.R(1, 60000),
			FrameCount: count,
			Backend:    Backend,
		},
		wrong: wrong,
	}
	return &Source{g: g, info: g.meta, log: logger.NewNoop(), cursor: -1}, g
}

func (g *fakeGrabber) info() ports.MediaInfo { return g.meta }

func (g *fakeGrabber) grab(ctx context.Context, first, count int) ([]grabbed, error) {
	g.calls++
	pics := make([]grabbed, 0, count)
	for n := first; n < first+count; n++ {
		reported := n + g.wrong[n]
		pics = append(pics, grabbed{
			pix:    []byte{byte(n), 0, 0, byte(n), 0, 0},
			actual: timebase.FrameToTime(reported, g.meta.FrameRate),
		})
	}
	return pics, nil
}

func (g *fakeGrabber) close() error {
	g.closed = true
	return nil
}

func TestSource_ExactFrames(t *testing.T) {
	src, _ := newFakeSource(6780, nil)
	ctx := context.Background()

	f, err := src.SeekToFrame(ctx, 1000)
	if err != nil {
		t.Fatalf("SeekToFrame(1000): %v", err)
	}
	if f.Number != 1000 || f.Pix[0] != byte(1000%256) {
		t.Errorf("got frame %d", f.Number)
	}

	next, err := src.NextFrame(ctx)
	if err != nil || next.Number != 1001 {
		t.Errorf("NextFrame = %v, %v", next, err)
	}
	prev, err := src.PreviousFrame(ctx)
	if err != nil || prev.Number != 1000 {
		t.Errorf("PreviousFrame = %v, %v", prev, err)
	}

	frames, err := src.FrameRange(ctx, 6770, 6779)
	if err != nil {
		t.Fatalf("FrameRange: %v", err)
	}
	if len(frames) != 10 || frames[9].Number != 6779 {
		t.Errorf("FrameRange returned %d frames", len(frames))
	}
}

func TestSource_MismatchIsFrameUnavailable(t *testing.T) {
	src, _ := newFakeSource(100, map[int]int{42: 1, 50: -1})
	ctx := context.Background()

	for _, n := range []int{42, 50} {
		_, err := src.SeekToFrame(ctx, n)
		if !errors.Is(err, ports.ErrFrameUnavailable) {
			t.Errorf("SeekToFrame(%d): expected ErrFrameUnavailable, got %v", n, err)
		}
		var fe *ports.FrameError
		if !errors.As(err, &fe) || fe.Frame != n {
			t.Errorf("SeekToFrame(%d): expected FrameError for %d, got %v", n, n, err)
		}
	}

	if _, err := src.FrameRange(ctx, 40, 45); !errors.Is(err, ports.ErrFrameUnavailable) {
		t.Errorf("FrameRange over a bad frame: expected ErrFrameUnavailable, got %v", err)
	}
	if _, err := src.SeekToFrame(ctx, 43); err != nil {
		t.Errorf("SeekToFrame(43): %v", err)
	}
}

func TestSource_Bounds(t *testing.T) {
	src, g := newFakeSource(10, nil)
	ctx := context.Background()

	for _, n := range []int{-1, 10} {
		if _, err := src.SeekToFrame(ctx, n); !errors.Is(err, ports.ErrFrameOutOfRange) {
			t.Errorf("SeekToFrame(%d): expected ErrFrameOutOfRange, got %v", n, err)
		}
	}
	if _, err := src.FrameRange(ctx, 5, 3); !errors.Is(err, ports.ErrFrameOutOfRange) {
		t.Errorf("reversed range: expected ErrFrameOutOfRange, got %v", err)
	}
	if _, err := src.PreviousFrame(ctx); !errors.Is(err, ports.ErrFrameOutOfRange) {
		t.Errorf("PreviousFrame before any frame: expected ErrFrameOutOfRange, got %v", err)
	}
	if g.calls != 0 {
		t.Errorf("out-of-range requests reached the grabber %d times", g.calls)
	}

	if _, err := src.SeekToFrame(ctx, 9); err != nil {
		t.Fatal(err)
	}
	if _, err := src.NextFrame(ctx); !errors.Is(err, ports.ErrFrameOutOfRange) {
		t.Errorf("NextFrame past the end: expected ErrFrameOutOfRange, got %v", err)
	}
}

func TestSource_Close(t *testing.T) {
	src, g := newFakeSource(10, nil)
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if !g.closed {
		t.Error("grabber not closed")
	}
	if _, err := src.SeekToFrame(context.Background(), 0); !errors.Is(err, ports.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenTimeout(t *testing.T) {
	bg := context.Background()
	if got := openTimeout(bg, Options{}); got != defaultNetworkTimeout {
		t.Errorf("unset timeout = %v, want %v", got, defaultNetworkTimeout)
	}
	if got := openTimeout(bg, Options{NetworkTimeout: 2 * time.Second}); got != 2*time.Second {
		t.Errorf("configured timeout = %v, want 2s", got)
	}

	ctx, cancel := context.WithTimeout(bg, 500*time.Millisecond)
	defer cancel()
	if got := openTimeout(ctx, Options{NetworkTimeout: 10 * time.Second}); got <= 0 || got > 500*time.Millisecond {
		t.Errorf("timeout = %v, want at most the context's 500ms", got)
	}
	if got := openTimeout(ctx, Options{NetworkTimeout: 100 * time.Millisecond}); got != 100*time.Millisecond {
		t.Errorf("timeout = %v, want the shorter network timeout", got)
	}

	expired, cancel2 := context.WithDeadline(bg, time.Now().Add(-time.Second))
	defer cancel2()
	if got := openTimeout(expired, Options{}); got != 0 {
		t.Errorf("expired context timeout = %v, want 0", got)
	}
}
