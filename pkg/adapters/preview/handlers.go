package preview

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/framecue/pkg/controller"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

type frameResponse struct {
	Frame int    `json:"frame"`
	Time  string `json:"time"`
}

type remoteState struct {
	State   string `json:"state"`
	Status  string `json:"status"`
	Session string `json:"session,omitempty"`
}

type stateResponse struct {
	controller.Snapshot
	Remote *remoteState `json:"remote,omitempty"`
}

type loadRequest struct {
	Path string `json:"path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrFrameOutOfRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ports.ErrNoSource), errors.Is(err, controller.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ports.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ports.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) frameResult(w http.ResponseWriter, f *ports.Frame, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	_, info := s.Latest()
	writeJSON(w, http.StatusOK, frameResponse{
		Frame: f.Number,
		Time:  timebase.Timecode(timebase.FrameToTime(f.Number, info.FrameRate)),
	})
}

// handleFrame serves the latest presented frame encoded as format.
func (s *Server) handleFrame(format ports.ImageFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, _ := s.Latest()
		if f == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no frame displayed"})
			return
		}

		var img image.Image = f.Image()
		quality := 0
		if format == ports.FormatJPEG {
			quality = s.opts.JPEGQuality
			if s.opts.MaxWidth > 0 && f.Width > s.opts.MaxWidth {
				h := f.Height * s.opts.MaxWidth / f.Width
				if h < 1 {
					h = 1
				}
				img = s.renderer.ResizeImage(img, s.opts.MaxWidth, h)
			}
		}

		data, err := s.renderer.EncodeImage(img, format, quality)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Frame-Number", strconv.Itoa(f.Number))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{Snapshot: s.player.Snapshot()}
	if s.opts.Remote != nil {
		resp.Remote = &remoteState{
			State:   s.opts.Remote.State().String(),
			Status:  s.opts.Remote.Status(),
			Session: s.opts.Remote.Session(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSeek is the strict, synchronous seek: POST /seek?frame=N or ?time=S.
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("frame"):
		n, err := strconv.Atoi(q.Get("frame"))
		if err != nil {
			badRequest(w, "frame must be an integer")
			return
		}
		f, err := s.player.Seek(r.Context(), n)
		s.frameResult(w, f, err)
	case q.Has("time"):
		sec, err := strconv.ParseFloat(q.Get("time"), 64)
		if err != nil {
			badRequest(w, "time must be a number of seconds")
			return
		}
		f, err := s.player.SeekTime(r.Context(), sec)
		s.frameResult(w, f, err)
	default:
		badRequest(w, "frame or time is required")
	}
}

// handleScrub queues a lenient, coalesced seek and returns immediately.
func (s *Server) handleScrub(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("frame"):
		n, err := strconv.Atoi(q.Get("frame"))
		if err != nil {
			badRequest(w, "frame must be an integer")
			return
		}
		s.player.Scrub(n)
	case q.Has("time"):
		sec, err := strconv.ParseFloat(q.Get("time"), 64)
		if err != nil {
			badRequest(w, "time must be a number of seconds")
			return
		}
		s.player.ScrubTime(sec)
	default:
		badRequest(w, "frame or time is required")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	delta := 1
	if v := r.URL.Query().Get("delta"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "delta must be an integer")
			return
		}
		delta = n
	}
	f, err := s.player.Step(r.Context(), delta)
	s.frameResult(w, f, err)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := s.player.Play(); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.player.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.player.Pause()
	writeJSON(w, http.StatusOK, s.player.Snapshot())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		badRequest(w, "path is required")
		return
	}
	if err := s.player.Load(r.Context(), req.Path); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.player.Snapshot())
}
