//go:build !darwin || !cgo

package hwsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/user/framecue/pkg/adapters/ffmpegdec"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// seekLead places the input seek a quarter frame before the target so the
// first picture kept by ffmpeg's accurate seek is the target itself.
const seekLead = 0.25

var showinfoPTS = regexp.MustCompile(`\bn:\s*\d+\s+pts:\s*-?\d+\s+pts_time:\s*(-?[0-9.]+(?:e[-+]?\d+)?)`)

type ffmpegGrabber struct {
	ffmpeg  string
	loc     ports.Location
	meta    ports.MediaInfo
	timeout time.Duration
	log     ports.Logger
}

func openGrabber(ctx context.Context, loc ports.Location, opts Options, log ports.Logger) (grabber, error) {
	ffmpeg, err := ffmpegdec.Find("ffmpeg", opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrUnsupportedFormat, err)
	}
	ffprobe, err := ffmpegdec.Find("ffprobe", opts.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrUnsupportedFormat, err)
	}

	g := &ffmpegGrabber{ffmpeg: ffmpeg, loc: loc, timeout: networkTimeout(opts), log: log}

	out, err := g.probe(ctx, ffprobe)
	if err != nil {
		return nil, err
	}
	meta, err := parseProbe(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc.Name(), err)
	}
	meta.Location = loc
	meta.Backend = Backend
	g.meta = meta
	return g, nil
}

// inputArgs returns the options placed before -i.
func (g *ffmpegGrabber) inputArgs() []string {
	if !g.loc.IsURL() {
		return nil
	}
	return []string{"-rw_timeout", strconv.FormatInt(g.timeout.Microseconds(), 10)}
}

func (g *ffmpegGrabber) probe(ctx context.Context, ffprobe string) ([]byte, error) {
	if g.loc.IsURL() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	args := []string{"-v", "error"}
	args = append(args, g.inputArgs()...)
	args = append(args,
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate,time_base,nb_frames,duration:format=duration",
		"-of", "json",
		g.loc.Path,
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobe, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			if g.loc.IsURL() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s: timed out after %v", ports.ErrNetwork, g.loc.Path, g.timeout)
			}
			return nil, ctx.Err()
		}
		return nil, classifyFailure(g.loc, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// classifyFailure maps ffmpeg's error text onto the error taxonomy.
func classifyFailure(loc ports.Location, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no such file"):
		return fmt.Errorf("%w: %s", ports.ErrSourceNotFound, loc.Path)
	case strings.Contains(lower, "404 not found"):
		return fmt.Errorf("%w: %s: %s", ports.ErrSourceNotFound, loc.Path, stderr)
	case loc.IsURL() && !strings.Contains(lower, "invalid data"):
		return fmt.Errorf("%w: %s: %s", ports.ErrNetwork, loc.Path, stderr)
	default:
		return fmt.Errorf("%w: %s: %s", ports.ErrUnsupportedFormat, loc.Name(), stderr)
	}
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		TimeBase     string `json:"time_base"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbe builds MediaInfo from ffprobe's JSON. The frame count is the
// container's when it has one, else floor(duration * fps).
func parseProbe(data []byte) (ports.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ports.MediaInfo{}, fmt.Errorf("%w: ffprobe output: %v", ports.ErrUnsupportedFormat, err)
	}
	if len(out.Streams) == 0 {
		return ports.MediaInfo{}, fmt.Errorf("%w: no video stream", ports.ErrUnsupportedFormat)
	}
	st := out.Streams[0]
	if st.Width <= 0 || st.Height <= 0 {
		return ports.MediaInfo{}, fmt.Errorf("%w: no picture size", ports.ErrUnsupportedFormat)
	}

	rate, err := timebase.ParseRational(st.AvgFrameRate)
	if err != nil {
		rate, err = timebase.ParseRational(st.RFrameRate)
	}
	if err != nil {
		return ports.MediaInfo{}, fmt.Errorf("%w: frame rate: %v", ports.ErrUnsupportedFormat, err)
	}
	tb, err := timebase.ParseRational(st.TimeBase)
	if err != nil {
		tb = rate.Inverse()
	}

	count, _ := strconv.Atoi(st.NbFrames)
	if count <= 0 {
		dur := st.Duration
		if dur == "" || dur == "N/A" {
			dur = out.Format.Duration
		}
		seconds, err := strconv.ParseFloat(dur, 64)
		if err != nil {
			return ports.MediaInfo{}, fmt.Errorf("%w: unknown duration", ports.ErrUnsupportedFormat)
		}
		count = timebase.TimeToFrame(seconds, rate)
	}
	if count <= 0 {
		return ports.MediaInfo{}, fmt.Errorf("%w: empty video stream", ports.ErrUnsupportedFormat)
	}

	return ports.MediaInfo{
		Width:      st.Width,
		Height:     st.Height,
		FrameRate:  rate,
		TimeBase:   tb,
		FrameCount: count,
		Codec:      st.CodecName,
	}, nil
}

func (g *ffmpegGrabber) info() ports.MediaInfo {
	return g.meta
}

func (g *ffmpegGrabber) grab(ctx context.Context, first, count int) ([]grabbed, error) {
	rate := g.meta.FrameRate
	ss := timebase.FrameToTime(first, rate) - seekLead/rate.Float64()
	if ss < 0 {
		ss = 0
	}

	args := []string{"-hide_banner", "-nostats", "-loglevel", "info", "-hwaccel", "auto", "-noautorotate"}
	args = append(args, g.inputArgs()...)
	args = append(args,
		"-ss", strconv.FormatFloat(ss, 'f', 6, 64),
		"-i", g.loc.Path,
		"-map", "0:v:0", "-an", "-sn",
		"-frames:v", strconv.Itoa(count),
		"-fps_mode", "passthrough",
		"-vf", "showinfo",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.ffmpeg, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyFailure(g.loc, lastLines(stderr.String(), 3))
	}

	times := parseShowinfo(stderr.String())
	size := g.meta.Width * g.meta.Height * 3
	n := stdout.Len() / size
	if len(times) < n {
		n = len(times)
	}
	pics := make([]grabbed, n)
	for i := range pics {
		pix := make([]byte, size)
		copy(pix, stdout.Bytes()[i*size:])
		pics[i] = grabbed{pix: pix, actual: ss + times[i]}
	}
	g.log.Debug("Grabbed %d of %d frames from %.6fs", n, count, ss)
	return pics, nil
}

// parseShowinfo returns the pts_time of every picture the showinfo filter
// logged, in output order.
func parseShowinfo(stderr string) []float64 {
	var times []float64
	for _, m := range showinfoPTS.FindAllStringSubmatch(stderr, -1) {
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

func (g *ffmpegGrabber) close() error {
	return nil
}
