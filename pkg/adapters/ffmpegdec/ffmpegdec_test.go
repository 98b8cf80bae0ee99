package ffmpegdec

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestFind_CustomPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg-custom")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Find("ffmpeg", bin)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != bin {
		t.Errorf("Find = %q, want %q", got, bin)
	}

	_, err = Find("ffmpeg", filepath.Join(dir, "missing"))
	if !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound for a missing custom path, got %v", err)
	}
}

func TestFind_EnvironmentVariable(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "probe")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FFPROBE_PATH", bin)
	got, err := Find("ffprobe", "")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != bin {
		t.Errorf("Find = %q, want %q", got, bin)
	}

	t.Setenv("FFPROBE_PATH", filepath.Join(dir, "missing"))
	if _, err := Find("ffprobe", ""); !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound for a missing FFPROBE_PATH, got %v", err)
	}
}

func TestStart_InvalidSize(t *testing.T) {
	if _, err := Start("ffmpeg", 0, 10); err == nil {
		t.Error("expected an error for a zero width")
	}
}

// elementaryStream encodes a short Annex B clip, skipping when ffmpeg or
// libx264 is unavailable.
func elementaryStream(t *testing.T, frames string) (string, []byte) {
	t.Helper()
	ffmpeg, err := Find("ffmpeg", "")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	out := filepath.Join(t.TempDir(), "clip.h264")
	cmd := exec.Command(ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=25",
		"-frames:v", frames,
		"-c:v", "libx264", "-bf", "2", "-g", "5", "-pix_fmt", "yuv420p",
		"-f", "h264", out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg could not encode test clip: %v: %s", err, output)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return ffmpeg, data
}

func TestPipe_DecodesEveryPicture(t *testing.T) {
	ffmpeg, data := elementaryStream(t, "12")

	p, err := Start(ffmpeg, 64, 48)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	go func() {
		_, _ = p.Write(data)
		_ = p.CloseInput()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	count := 0
	for {
		buf, err := p.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", count, err)
		}
		if len(buf) != 64*48*3 {
			t.Fatalf("picture %d has %d bytes", count, len(buf))
		}
		count++
	}
	if count != 12 {
		t.Errorf("decoded %d pictures, want 12", count)
	}
}

func TestPipe_CancelKillsDecoder(t *testing.T) {
	ffmpeg, _ := elementaryStream(t, "1")

	p, err := Start(ffmpeg, 64, 48)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	// Nothing is written, so the read can only end through cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := p.ReadFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
