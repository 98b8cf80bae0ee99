// Package main provides the CLI entry point for framecue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"

	"github.com/user/framecue/pkg/adapters/filesink"
	"github.com/user/framecue/pkg/adapters/ggrenderer"
	"github.com/user/framecue/pkg/adapters/logger"
	"github.com/user/framecue/pkg/adapters/nullsink"
	"github.com/user/framecue/pkg/adapters/osfilesystem"
	"github.com/user/framecue/pkg/adapters/preview"
	"github.com/user/framecue/pkg/adapters/smartsource"
	"github.com/user/framecue/pkg/config"
	"github.com/user/framecue/pkg/controller"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/remote"
	"github.com/user/framecue/pkg/source"
	"github.com/user/framecue/pkg/timebase"
)

// Globals are flags shared by every subcommand. Flags override the config
// file and FRAMECUE_* environment variables.
type Globals struct {
	Config  string   `short:"c" type:"path" help:"YAML configuration file."`
	EnvFile []string `name:"env-file" help:"Environment files to load (default: .env when present)."`

	// Decoding
	Backend        string        `short:"b" help:"Decoding backend (auto, software, hardware)."`
	FFmpegPath     string        `name:"ffmpeg" help:"Path to the ffmpeg executable (falls back to FFMPEG_PATH env, then PATH)."`
	FFprobePath    string        `name:"ffprobe" help:"Path to the ffprobe executable."`
	NetworkTimeout time.Duration `help:"Timeout for opening and reading URLs (for example 20s)."`

	// Logging options
	LogLevel string `short:"l" help:"Log level (debug, info, warn, error)."`
	Quiet    bool   `short:"Q" help:"Suppress all log output."`
}

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Globals

	Play    PlayCmd    `cmd:"" help:"Open a video and control it through the preview server."`
	Follow  FollowCmd  `cmd:"" help:"Follow the remote timecode channel."`
	Grab    GrabCmd    `cmd:"" help:"Save exact frames to image files."`
	Probe   ProbeCmd   `cmd:"" help:"Print video metadata."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// PlayCmd defines the play subcommand.
type PlayCmd struct {
	Path     string   `arg:"" help:"Local file or http(s) URL."`
	Frame    *int     `short:"f" help:"Initial frame number."`
	Time     *float64 `short:"t" help:"Initial position in seconds."`
	Autoplay bool     `short:"a" help:"Start playback immediately."`
	Addr     string   `help:"Preview server address (default from config)."`
}

// FollowCmd defines the follow subcommand.
type FollowCmd struct {
	URL        string `short:"u" help:"Remote server URL (ws:// or wss://)."`
	ClientType string `help:"Client type announced when registering."`
	Path       string `short:"p" help:"Video to show until the server announces one."`
	NoPreview  bool   `help:"Do not start the preview server."`
	Addr       string `help:"Preview server address (default from config)."`
}

// GrabCmd defines the grab subcommand.
type GrabCmd struct {
	Path     string   `arg:"" help:"Local file or http(s) URL."`
	Output   string   `short:"o" required:"" help:"Output path; a printf verb such as frame_%06d.png numbers each frame. The extension selects PNG, JPEG or BMP."`
	Frame    *int     `short:"f" xor:"position" help:"Frame number to save."`
	Time     *float64 `short:"t" xor:"position" help:"Position in seconds to save."`
	To       *int     `help:"Save every frame up to and including this one."`
	Overlay  bool     `help:"Burn the timecode and frame number into the image."`
	FontPath string   `type:"path" help:"TrueType font for the overlay."`
	Quality  int      `short:"q" default:"90" help:"JPEG quality (1-100)."`
}

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	Path string `arg:"" help:"Local file or http(s) URL."`
	JSON bool   `help:"Print JSON instead of text."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("framecue"),
		kong.Description("Frame-accurate video seeking with a remote timecode channel."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// settings resolves configuration in order: defaults, file, environment, flags.
func (g *Globals) settings() (config.Config, ports.Logger, error) {
	if err := config.LoadEnv(g.EnvFile...); err != nil && (len(g.EnvFile) > 0 || !errors.Is(err, fs.ErrNotExist)) {
		return config.Config{}, nil, fmt.Errorf("load env: %w", err)
	}

	cfg := config.Defaults()
	if g.Config != "" {
		loaded, err := config.LoadFromFile(g.Config)
		if err != nil {
			return cfg, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg)

	if g.Backend != "" {
		cfg.Backend = g.Backend
	}
	if g.FFmpegPath != "" {
		cfg.FFmpegPath = g.FFmpegPath
	}
	if g.FFprobePath != "" {
		cfg.FFprobePath = g.FFprobePath
	}
	if g.NetworkTimeout > 0 {
		cfg.NetworkTimeout = g.NetworkTimeout
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	var log ports.Logger
	if g.Quiet {
		log = logger.NewNoop()
	} else {
		level, _ := ports.ParseLogLevel(cfg.LogLevel)
		log = logger.NewConsole(level)
	}
	return cfg, log, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// player bundles the adapters shared by play and follow.
type player struct {
	ctrl    *controller.Controller
	preview *preview.Server
	metrics *metrics.Metrics
}

func newPlayer(cfg config.Config, m *metrics.Metrics, headless bool, rs preview.RemoteStatus, log ports.Logger) (*player, error) {
	fsys := osfilesystem.New()
	opener, err := smartsource.New(fsys, cfg.SourceOptions(m), log)
	if err != nil {
		return nil, err
	}

	p := &player{metrics: m}
	var display ports.Display = nullsink.New()
	if !headless {
		opts := cfg.PreviewOptions(m)
		opts.Remote = rs
		p.preview = preview.New(nil, ggrenderer.New(), log, opts)
		display = p.preview
	}
	p.ctrl = controller.New(opener, source.NewResolver(fsys, cfg.MediaBaseURL), display, log, cfg.ControllerOptions(m))
	if p.preview != nil {
		p.preview.SetPlayer(p.ctrl)
	}
	return p, nil
}

func (p *player) serve(ctx context.Context, addr string, log ports.Logger) {
	if p.preview == nil {
		return
	}
	go func() {
		if err := p.preview.ListenAndServe(ctx, addr); err != nil {
			log.Error("Preview server failed: %v", err)
		}
	}()
}

// Run executes the play command.
func (cmd *PlayCmd) Run(g *Globals) error {
	cfg, log, err := g.settings()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(log)
	defer cancel()

	p, err := newPlayer(cfg, metrics.New(), false, nil, log)
	if err != nil {
		return err
	}
	defer p.ctrl.Close()

	if err := p.ctrl.Load(ctx, cmd.Path); err != nil {
		return err
	}
	switch {
	case cmd.Frame != nil:
		if _, err := p.ctrl.Seek(ctx, *cmd.Frame); err != nil {
			return err
		}
	case cmd.Time != nil:
		if _, err := p.ctrl.SeekTime(ctx, *cmd.Time); err != nil {
			return err
		}
	}
	if cmd.Autoplay {
		if err := p.ctrl.Play(); err != nil {
			return err
		}
	}

	addr := cfg.Preview.Addr
	if cmd.Addr != "" {
		addr = cmd.Addr
	}
	p.serve(ctx, addr, log)
	log.Info("%s", p.ctrl.Status())

	<-ctx.Done()
	log.Info("%s", p.ctrl.Status())
	return nil
}

// Run executes the follow command.
func (cmd *FollowCmd) Run(g *Globals) error {
	cfg, log, err := g.settings()
	if err != nil {
		return err
	}
	if cmd.URL != "" {
		cfg.Remote.URL = cmd.URL
	}
	if cmd.ClientType != "" {
		cfg.Remote.ClientType = cmd.ClientType
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	m := metrics.New()
	client := remote.NewClient(cfg.RemoteOptions(m), log)
	p, err := newPlayer(cfg, m, cmd.NoPreview, client, log)
	if err != nil {
		return err
	}
	defer p.ctrl.Close()

	if cmd.Path != "" {
		if err := p.ctrl.Load(ctx, cmd.Path); err != nil {
			log.Warn("Initial video not loaded: %v", err)
		}
	}

	addr := cfg.Preview.Addr
	if cmd.Addr != "" {
		addr = cmd.Addr
	}
	p.serve(ctx, addr, log)

	go client.Run(ctx)
	p.ctrl.Follow(ctx, client.Commands())

	log.Info("%s", p.ctrl.Status())
	return nil
}

// Run executes the grab command.
func (cmd *GrabCmd) Run(g *Globals) error {
	cfg, log, err := g.settings()
	if err != nil {
		return err
	}
	if cmd.Frame == nil && cmd.Time == nil {
		return errors.New(l10n.T("Either --frame or --time is required"))
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	fsys := osfilesystem.New()
	sink, err := filesink.New(cmd.Output, fsys, ggrenderer.New(), filesink.Options{
		Quality:  cmd.Quality,
		Overlay:  cmd.Overlay,
		FontPath: cmd.FontPath,
	})
	if err != nil {
		return err
	}

	src, err := openSource(ctx, cfg, fsys, cmd.Path, log)
	if err != nil {
		return err
	}
	defer src.Close()
	info := src.Info()

	first := 0
	if cmd.Frame != nil {
		first = *cmd.Frame
	} else {
		if *cmd.Time < 0 {
			return ports.OutOfRange(-1, info.FrameCount)
		}
		first = timebase.TimeToFrame(*cmd.Time, info.FrameRate)
	}
	last := first
	if cmd.To != nil {
		last = *cmd.To
		if last < first {
			return errors.New(l10n.F("--to (%d) is before the first frame (%d)", last, first))
		}
	}

	_, err = grabFrames(ctx, src, sink, first, last, log)
	return err
}

// grabFrames saves frames first..last inclusive, seeking once, and returns
// the written paths.
func grabFrames(ctx context.Context, src ports.MediaSource, sink ports.FrameSink, first, last int, log ports.Logger) ([]string, error) {
	info := src.Info()

	var frames []*ports.Frame
	if last == first {
		f, err := src.SeekToFrame(ctx, first)
		if err != nil {
			return nil, err
		}
		frames = []*ports.Frame{f}
	} else {
		var err error
		frames, err = src.FrameRange(ctx, first, last)
		if err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		path, err := sink.SaveFrame(f, info)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
		log.Info("Saved frame %d (%s) to %s", f.Number,
			timebase.Timecode(timebase.FrameToTime(f.Number, info.FrameRate)), path)
	}
	return paths, nil
}

func openSource(ctx context.Context, cfg config.Config, fsys ports.FileSystem, raw string, log ports.Logger) (ports.MediaSource, error) {
	loc, err := source.NewResolver(fsys, cfg.MediaBaseURL).Classify(raw)
	if err != nil {
		return nil, err
	}
	opener, err := smartsource.New(fsys, cfg.SourceOptions(nil), log)
	if err != nil {
		return nil, err
	}
	return opener.Open(ctx, loc)
}

type probeOutput struct {
	Name       string  `json:"name"`
	Location   string  `json:"location"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  string  `json:"frame_rate"`
	FPS        float64 `json:"fps"`
	TimeBase   string  `json:"time_base"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration"`
	Codec      string  `json:"codec"`
	Backend    string  `json:"backend"`
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run(g *Globals) error {
	cfg, log, err := g.settings()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(log)
	defer cancel()

	src, err := openSource(ctx, cfg, osfilesystem.New(), cmd.Path, log)
	if err != nil {
		return err
	}
	info := src.Info()
	if err := src.Close(); err != nil {
		log.Warn("Closing %s failed: %v", info.Location, err)
	}

	out := probeOutput{
		Name:       info.Location.Name(),
		Location:   info.Location.Path,
		Width:      info.Width,
		Height:     info.Height,
		FrameRate:  info.FrameRate.String(),
		FPS:        info.FrameRate.Float64(),
		TimeBase:   info.TimeBase.String(),
		FrameCount: info.FrameCount,
		Duration:   info.Duration(),
		Codec:      info.Codec,
		Backend:    info.Backend,
	}
	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("%-11s %s\n", l10n.T("File:"), out.Name)
	fmt.Printf("%-11s %s\n", l10n.T("Location:"), out.Location)
	fmt.Printf("%-11s %dx%d\n", l10n.T("Size:"), out.Width, out.Height)
	fmt.Printf("%-11s %s (%.3f fps)\n", l10n.T("Frame rate:"), out.FrameRate, out.FPS)
	fmt.Printf("%-11s %s\n", l10n.T("Time base:"), out.TimeBase)
	fmt.Printf("%-11s %d\n", l10n.T("Frames:"), out.FrameCount)
	fmt.Printf("%-11s %s\n", l10n.T("Duration:"), timebase.Timecode(out.Duration))
	fmt.Printf("%-11s %s\n", l10n.T("Codec:"), out.Codec)
	fmt.Printf("%-11s %s\n", l10n.T("Backend:"), out.Backend)
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run(g *Globals) error {
	fmt.Println(l10n.F("framecue version %s", version))
	return nil
}
