package swsource

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/user/framecue/pkg/adapters/ffmpegdec"
	"github.com/user/framecue/pkg/adapters/logger"
	"github.com/user/framecue/pkg/adapters/mp4index"
	"github.com/user/framecue/pkg/adapters/osfilesystem"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

func TestPTSQueue_SortsWithinReorderWindow(t *testing.T) {
	// Decode order I P B B P B B with presentation order 0 3 1 2 6 4 5.
	pts := []int64{0, 3, 1, 2, 6, 4, 5}
	samples := make([]mp4index.Sample, len(pts))
	for i, p := range pts {
		samples[i].PTS = p
	}
	q := newPTSQueue(samples)
	for want := int64(0); want < 7; want++ {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("pop = %d, %v; want %d", got, ok, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("expected an empty queue")
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "notes.mp4")
	if err := os.WriteFile(garbage, []byte("not a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := NewOpener(osfilesystem.New(), Options{}, logger.NewNoop())
	ctx := context.Background()

	_, err := o.Open(ctx, ports.Location{Kind: ports.LocalFile, Path: garbage})
	if !errors.Is(err, ports.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	if !ffmpegdec.Available("ffmpeg") {
		t.Skip("ffmpeg not available")
	}
	_, err = o.Open(ctx, ports.Location{Kind: ports.LocalFile, Path: filepath.Join(dir, "missing.mp4")})
	if !errors.Is(err, ports.ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

// testClip encodes 50 frames at 25 fps with B-frames and a keyframe every
// 10 frames and returns its path with every frame decoded as rgb24.
func testClip(t *testing.T) (string, [][]byte) {
	t.Helper()
	ffmpeg, err := ffmpegdec.Find("ffmpeg", "")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	encode := exec.Command(ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=25",
		"-frames:v", "50",
		"-c:v", "libx264", "-g", "10", "-bf", "2", "-pix_fmt", "yuv420p",
		path,
	)
	if out, err := encode.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg could not encode test clip: %v: %s", err, out)
	}

	var raw bytes.Buffer
	decode := exec.Command(ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-fps_mode", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "rgb24", "pipe:1",
	)
	decode.Stdout = &raw
	if err := decode.Run(); err != nil {
		t.Skipf("ffmpeg could not decode test clip: %v", err)
	}
	const size = 64 * 48 * 3
	if raw.Len() != 50*size {
		t.Fatalf("reference decode produced %d bytes, want %d", raw.Len(), 50*size)
	}
	frames := make([][]byte, 50)
	for i := range frames {
		frames[i] = raw.Bytes()[i*size : (i+1)*size]
	}
	return path, frames
}

func checkExactFrames(t *testing.T, src ports.MediaSource, reference [][]byte) {
	t.Helper()
	ctx := context.Background()

	info := src.Info()
	if info.FrameCount != 50 || info.FrameRate != timebase.R(25, 1) {
		t.Fatalf("info = %+v", info)
	}
	if info.Width != 64 || info.Height != 48 || info.Backend != Backend || info.Codec != "h264" {
		t.Errorf("info = %+v", info)
	}

	for _, target := range []int{23, 0, 49, 10, 9, 31, 30} {
		f, err := src.SeekToFrame(ctx, target)
		if err != nil {
			t.Fatalf("SeekToFrame(%d): %v", target, err)
		}
		if f.Number != target {
			t.Fatalf("SeekToFrame(%d) returned frame %d", target, f.Number)
		}
		if !bytes.Equal(f.Pix, reference[target]) {
			t.Errorf("SeekToFrame(%d) pixels differ from a full decode", target)
		}
	}

	if _, err := src.SeekToFrame(ctx, 50); !errors.Is(err, ports.ErrFrameOutOfRange) {
		t.Errorf("expected ErrFrameOutOfRange for frame 50, got %v", err)
	}

	frames, err := src.FrameRange(ctx, 17, 22)
	if err != nil {
		t.Fatalf("FrameRange: %v", err)
	}
	for i, f := range frames {
		if f.Number != 17+i || !bytes.Equal(f.Pix, reference[17+i]) {
			t.Errorf("FrameRange[%d] = frame %d", i, f.Number)
		}
	}

	next, err := src.NextFrame(ctx)
	if err != nil || next.Number != 23 {
		t.Fatalf("NextFrame = %v, %v; want 23", next, err)
	}
	prev, err := src.PreviousFrame(ctx)
	if err != nil || prev.Number != 22 || !bytes.Equal(prev.Pix, reference[22]) {
		t.Fatalf("PreviousFrame = %v, %v; want 22", prev, err)
	}
}

func TestSoftwareSource_LocalFile(t *testing.T) {
	path, reference := testClip(t)

	o := NewOpener(osfilesystem.New(), Options{}, logger.NewNoop())
	src, err := o.Open(context.Background(), ports.Location{Kind: ports.LocalFile, Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	checkExactFrames(t, src, reference)
}

func TestSoftwareSource_URL(t *testing.T) {
	path, reference := testClip(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}))
	defer srv.Close()

	o := NewOpener(osfilesystem.New(), Options{}, logger.NewNoop())
	src, err := o.Open(context.Background(), ports.Location{Kind: ports.RemoteURL, Path: srv.URL + "/clip.mp4"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	checkExactFrames(t, src, reference)
}

func TestSoftwareSource_Closed(t *testing.T) {
	path, _ := testClip(t)

	o := NewOpener(osfilesystem.New(), Options{}, logger.NewNoop())
	src, err := o.Open(context.Background(), ports.Location{Kind: ports.LocalFile, Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.SeekToFrame(context.Background(), 0); !errors.Is(err, ports.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
