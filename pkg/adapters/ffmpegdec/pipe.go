package ffmpegdec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Pipe is a running ffmpeg process that reads an Annex B H.264 elementary
// stream on stdin and writes packed rgb24 pictures in presentation order on
// stdout.
//
// Writes and reads happen on different goroutines: the writer must keep
// feeding access units while the reader pulls pictures, otherwise the
// process blocks on a full pipe.
type Pipe struct {
	width     int
	height    int
	frameSize int

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr bytes.Buffer

	waitOnce sync.Once
	waitErr  error

	mu     sync.Mutex
	closed bool
}

// Start launches a decoder that scales its output to width x height.
func Start(ffmpegPath string, width, height int) (*Pipe, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ffmpegdec: invalid size %dx%d", width, height)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-probesize", "1048576", // Start decoding as soon as the first IDR is parsed
		"-f", "h264", // Raw Annex B input
		"-i", "pipe:0",
		"-an", "-sn",
		"-fps_mode", "passthrough", // One output picture per decoded picture
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}

	p := &Pipe{
		width:     width,
		height:    height,
		frameSize: width * height * 3,
	}
	p.cmd = exec.Command(ffmpegPath, args...)
	p.cmd.Stderr = &p.stderr

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	p.stdin = stdin
	p.stdout = bufio.NewReaderSize(stdout, p.frameSize)
	return p, nil
}

// Width returns the output picture width.
func (p *Pipe) Width() int { return p.width }

// Height returns the output picture height.
func (p *Pipe) Height() int { return p.height }

// Write feeds one or more access units to the decoder.
func (p *Pipe) Write(au []byte) (int, error) {
	return p.stdin.Write(au)
}

// CloseInput signals end of stream; the decoder flushes its delayed
// pictures and exits.
func (p *Pipe) CloseInput() error {
	return p.stdin.Close()
}

// ReadFrame reads the next picture into a new buffer. It returns io.EOF once
// the decoder has flushed everything and exited cleanly. Canceling ctx kills
// the process.
func (p *Pipe) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, p.kill)
	defer stop()

	buf := make([]byte, p.frameSize)
	_, err := io.ReadFull(p.stdout, buf)
	switch {
	case err == nil:
		return buf, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, io.EOF):
		if werr := p.wait(); werr != nil && !p.isClosed() {
			return nil, fmt.Errorf("%w: %v: %s", ErrDecodeFailed, werr, p.stderrText())
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		_ = p.wait()
		return nil, fmt.Errorf("%w: truncated picture: %s", ErrDecodeFailed, p.stderrText())
	default:
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
}

// Close kills the process if it is still running and reaps it.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.stdin.Close()
	p.kill()
	_ = p.wait()
	return nil
}

func (p *Pipe) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *Pipe) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

func (p *Pipe) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// stderrText is only read after the process has been reaped.
func (p *Pipe) stderrText() string {
	return strings.TrimSpace(p.stderr.String())
}
