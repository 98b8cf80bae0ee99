package preview

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/framecue/pkg/adapters/logger"
	"github.com/user/framecue/pkg/controller"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/mocks"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/source"
	"github.com/user/framecue/pkg/timebase"
)

const clipPath = "/v/clip.mp4"

type fakeRemote struct{}

func (fakeRemote) State() ports.ConnectionState { return ports.Registered }
func (fakeRemote) Status() string               { return "Registered as player" }
func (fakeRemote) Session() string              { return "3f0c9a52" }

func newTestServer(t *testing.T, opts Options) (*Server, *controller.Controller, http.Handler) {
	t.Helper()
	fs := mocks.NewFileSystem()
	_ = fs.WriteFile(clipPath, nil)

	srv := New(nil, &mocks.Renderer{}, logger.NewNoop(), opts)
	ctrl := controller.New(
		mocks.NewOpener(mocks.NewMediaSource(clipPath, 100, timebase.R(25, 1))),
		source.NewResolver(fs, ""),
		srv,
		logger.NewNoop(),
		controller.Options{Debounce: 5 * time.Millisecond},
	)
	t.Cleanup(func() { _ = ctrl.Close() })
	srv.SetPlayer(ctrl)
	return srv, ctrl, srv.Handler()
}

func do(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func loadClip(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(h, http.MethodPost, "/load", []byte(`{"path":"`+clipPath+`"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var s stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return s
}

func TestServer_NoFrameBeforeLoad(t *testing.T) {
	_, _, h := newTestServer(t, Options{})

	if rec := do(h, http.MethodGet, "/frame.jpg", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/seek?frame=1", nil); rec.Code != http.StatusConflict {
		t.Errorf("seek without video: expected 409, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/play", nil); rec.Code != http.StatusConflict {
		t.Errorf("play without video: expected 409, got %d", rec.Code)
	}
}

func TestServer_LoadAndFrame(t *testing.T) {
	_, _, h := newTestServer(t, Options{})
	loadClip(t, h)

	rec := do(h, http.MethodGet, "/frame.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if n := rec.Header().Get("X-Frame-Number"); n != "0" {
		t.Errorf("expected frame 0, got %q", n)
	}
	if rec.Body.String() != "png" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	s := decodeState(t, do(h, http.MethodGet, "/state", nil))
	if s.State != "ready" || s.FrameCount != 100 || s.Name != "clip.mp4" {
		t.Errorf("unexpected state %+v", s)
	}
	if s.Remote != nil {
		t.Error("no remote status expected")
	}
}

func TestServer_LoadErrors(t *testing.T) {
	_, _, h := newTestServer(t, Options{})

	if rec := do(h, http.MethodPost, "/load", []byte(`{"path":"/v/missing.mp4"}`)); rec.Code != http.StatusNotFound {
		t.Errorf("missing file: expected 404, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/load", []byte(`not json`)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/load", []byte(`{"path":" "}`)); rec.Code != http.StatusBadRequest {
		t.Errorf("empty path: expected 400, got %d", rec.Code)
	}
}

func TestServer_Seek(t *testing.T) {
	_, ctrl, h := newTestServer(t, Options{})
	loadClip(t, h)

	rec := do(h, http.MethodPost, "/seek?frame=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var fr frameResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &fr); err != nil {
		t.Fatal(err)
	}
	if fr.Frame != 10 || fr.Time != "00:00:00.400" {
		t.Errorf("unexpected response %+v", fr)
	}

	rec = do(h, http.MethodPost, "/seek?time=2", nil)
	if rec.Code != http.StatusOK || ctrl.Current() != 50 {
		t.Errorf("seek by time: code %d, current %d", rec.Code, ctrl.Current())
	}

	if rec := do(h, http.MethodPost, "/seek?frame=100", nil); rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("out of range: expected 416, got %d", rec.Code)
	}
	if ctrl.Current() != 50 {
		t.Errorf("failed seek changed the frame to %d", ctrl.Current())
	}
	if rec := do(h, http.MethodPost, "/seek?frame=ten", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad frame: expected 400, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/seek", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("no params: expected 400, got %d", rec.Code)
	}
}

func TestServer_StepAndScrub(t *testing.T) {
	_, ctrl, h := newTestServer(t, Options{})
	loadClip(t, h)

	if rec := do(h, http.MethodPost, "/step", nil); rec.Code != http.StatusOK || ctrl.Current() != 1 {
		t.Errorf("step: code %d, current %d", rec.Code, ctrl.Current())
	}
	if rec := do(h, http.MethodPost, "/step?delta=-1", nil); rec.Code != http.StatusOK || ctrl.Current() != 0 {
		t.Errorf("step back: code %d, current %d", rec.Code, ctrl.Current())
	}

	for _, n := range []string{"30", "40", "250"} {
		if rec := do(h, http.MethodPost, "/scrub?frame="+n, nil); rec.Code != http.StatusAccepted {
			t.Fatalf("scrub: expected 202, got %d", rec.Code)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Current() != 99 {
		if time.Now().After(deadline) {
			t.Fatalf("scrub was not clamped to the last frame, current %d", ctrl.Current())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestServer_PlayPause(t *testing.T) {
	_, _, h := newTestServer(t, Options{})
	loadClip(t, h)

	rec := do(h, http.MethodPost, "/play", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("play: expected 200, got %d", rec.Code)
	}
	if s := decodeState(t, rec); s.State != "playing" {
		t.Errorf("expected playing, got %s", s.State)
	}
	rec = do(h, http.MethodPost, "/pause", nil)
	if s := decodeState(t, rec); s.State != "ready" {
		t.Errorf("expected ready, got %s", s.State)
	}
}

func TestServer_RemoteState(t *testing.T) {
	_, _, h := newTestServer(t, Options{Remote: fakeRemote{}})

	s := decodeState(t, do(h, http.MethodGet, "/state", nil))
	if s.Remote == nil || s.Remote.State != "registered" || s.Remote.Status != "Registered as player" || s.Remote.Session != "3f0c9a52" {
		t.Errorf("unexpected remote state %+v", s.Remote)
	}
}

func TestServer_FrameScaling(t *testing.T) {
	renderer := &mocks.Renderer{}
	var gotW, gotH int
	renderer.ResizeImageFunc = func(img image.Image, w, h int) image.Image {
		gotW, gotH = w, h
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}
	srv := New(nil, renderer, logger.NewNoop(), Options{MaxWidth: 320})
	srv.Present(ports.NewFrame(7, 1280, 720), ports.MediaInfo{})

	rec := do(srv.Handler(), http.MethodGet, "/frame.jpg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotW != 320 || gotH != 180 {
		t.Errorf("expected resize to 320x180, got %dx%d", gotW, gotH)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}

	// PNG is served at full size.
	gotW = 0
	do(srv.Handler(), http.MethodGet, "/frame.png", nil)
	if gotW != 0 {
		t.Error("frame.png should not be resized")
	}
}

func TestServer_PresentCopiesFrame(t *testing.T) {
	srv := New(nil, &mocks.Renderer{}, logger.NewNoop(), Options{})
	f := mocks.MockFrame(3)
	srv.Present(f, ports.MediaInfo{})
	f.Pix[0] = 0xff

	got, _ := srv.Latest()
	if got.Pix[0] != 3 {
		t.Error("Present must not retain the caller's buffer")
	}
}

func TestServer_MiddlewareAndMetrics(t *testing.T) {
	_, _, h := newTestServer(t, Options{Metrics: metrics.New(), AllowedOrigins: []string{"http://ui.test"}})

	rec := do(h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set(requestIDHeader, "abc")
	req.Header.Set("Origin", "http://ui.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc" {
		t.Errorf("expected the client's request id, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.test" {
		t.Errorf("expected CORS header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected CORS header %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ports.OutOfRange(5, 3), http.StatusRequestedRangeNotSatisfiable},
		{ports.ErrNoSource, http.StatusConflict},
		{ports.ErrSourceNotFound, http.StatusNotFound},
		{ports.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{ports.ErrNetwork, http.StatusBadGateway},
		{ports.ErrFrameUnavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if !strings.Contains(ports.OutOfRange(5, 3).Error(), "5") {
		t.Error("out of range error should name the frame")
	}
}
