// Package preview serves the displayed frame and a small control API over
// HTTP. The Server is a ports.Display: the controller presents frames to it
// and clients fetch the latest one as an image.
package preview

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/user/framecue/pkg/controller"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
)

const shutdownTimeout = 5 * time.Second

// Player is the part of the controller the API drives.
type Player interface {
	Seek(ctx context.Context, frame int) (*ports.Frame, error)
	SeekTime(ctx context.Context, seconds float64) (*ports.Frame, error)
	Scrub(frame int)
	ScrubTime(seconds float64)
	Step(ctx context.Context, delta int) (*ports.Frame, error)
	Play() error
	Pause()
	Load(ctx context.Context, raw string) error
	Snapshot() controller.Snapshot
}

// RemoteStatus reports the remote channel's state for /state.
type RemoteStatus interface {
	State() ports.ConnectionState
	Status() string
	Session() string
}

// Options configures a Server.
type Options struct {
	// MaxWidth scales /frame.jpg down to at most this width. Zero disables.
	MaxWidth int
	// JPEGQuality is used for /frame.jpg.
	JPEGQuality int
	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string
	// Remote may be nil when no remote channel runs.
	Remote RemoteStatus
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Server is the preview display and control API.
type Server struct {
	player   Player
	renderer ports.Renderer
	log      ports.Logger
	opts     Options

	mu    sync.RWMutex
	frame *ports.Frame
	info  ports.MediaInfo
}

// New creates a server. SetPlayer must be called before serving if player
// is nil, since the controller usually needs the server as its display.
func New(player Player, renderer ports.Renderer, log ports.Logger, opts Options) *Server {
	return &Server{
		player:   player,
		renderer: renderer,
		log:      log.WithComponent("preview"),
		opts:     opts,
	}
}

// SetPlayer attaches the controller.
func (s *Server) SetPlayer(p Player) {
	s.player = p
}

// Present keeps a copy of f as the frame served by the image endpoints.
func (s *Server) Present(f *ports.Frame, info ports.MediaInfo) {
	cp := *f
	cp.Pix = append([]byte(nil), f.Pix...)

	s.mu.Lock()
	s.frame = &cp
	s.info = info
	s.mu.Unlock()
}

// Latest returns the most recently presented frame, or nil.
func (s *Server) Latest() (*ports.Frame, ports.MediaInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.info
}

// Handler returns the routed, CORS-wrapped API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger(s.log))

	r.Get("/frame.jpg", s.handleFrame(ports.FormatJPEG))
	r.Get("/frame.png", s.handleFrame(ports.FormatPNG))
	r.Get("/state", s.handleState)
	r.Post("/seek", s.handleSeek)
	r.Post("/scrub", s.handleScrub)
	r.Post("/step", s.handleStep)
	r.Post("/play", s.handlePlay)
	r.Post("/pause", s.handlePause)
	r.Post("/load", s.handleLoad)
	r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("Preview server listening on http://%s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Debug("Preview server stopped")
	return nil
}

var _ ports.Display = (*Server)(nil)
