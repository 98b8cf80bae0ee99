package swsource

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/framecue/pkg/adapters/ffmpegdec"
	"github.com/user/framecue/pkg/adapters/logger"
	"github.com/user/framecue/pkg/adapters/mp4index"
)

// stallingReader behaves like a network body that stops delivering data:
// once stalled, reads block until Close.
type stallingReader struct {
	*os.File
	stalled   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func newStallingReader(f *os.File) *stallingReader {
	return &stallingReader{File: f, closed: make(chan struct{})}
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if r.stalled.Load() {
		<-r.closed
		return 0, errors.New("reader closed")
	}
	return r.File.Read(p)
}

func (r *stallingReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return r.File.Close()
}

func TestStream_StalledReaderDoesNotBlockRestartOrClose(t *testing.T) {
	path, _ := testClip(t)
	ffmpeg, err := ffmpegdec.Find("ffmpeg", "")
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ix, err := mp4index.Build(f)
	if err != nil {
		f.Close()
		t.Fatalf("Build: %v", err)
	}
	r := newStallingReader(f)
	r.stalled.Store(true)

	s := newStream(r, ix, ffmpeg, logger.NewNoop(), nil)
	ctx := context.Background()
	if err := s.SeekBackward(ctx, 0); err != nil {
		t.Fatalf("SeekBackward: %v", err)
	}

	dctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	_, err = s.Decode(dctx)
	cancel()
	if err == nil {
		t.Fatal("expected Decode to fail while the reader is stalled")
	}

	restarted := make(chan error, 1)
	go func() { restarted <- s.SeekBackward(ctx, 0) }()
	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("SeekBackward after stall: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SeekBackward blocked behind the stalled feeder")
	}

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on the stalled reader")
	}
}
