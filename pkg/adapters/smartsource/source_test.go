package smartsource

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/user/framecue/pkg/adapters/logger"
	"github.com/user/framecue/pkg/mocks"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

func TestParseBackend(t *testing.T) {
	tests := map[string]Backend{
		"":          BackendAuto,
		"auto":      BackendAuto,
		"Software":  BackendSoftware,
		" hardware": BackendHardware,
	}
	for in, want := range tests {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Errorf("ParseBackend(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseBackend("gpu"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func failing(err error) *mocks.Opener {
	o := mocks.NewOpener()
	o.OpenFunc = func(ctx context.Context, loc ports.Location) (ports.MediaSource, error) {
		return nil, err
	}
	return o
}

func serving(path string) *mocks.Opener {
	return mocks.NewOpener(mocks.NewMediaSource(path, 10, timebase.R(25, 1)))
}

func TestOpen_ExplicitBackends(t *testing.T) {
	loc := ports.Location{Kind: ports.LocalFile, Path: "/v/a.mp4"}

	sw, hw := serving(loc.Path), serving(loc.Path)
	o, err := NewWithOpeners(BackendSoftware, sw, hw, logger.NewNoop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Open(context.Background(), loc); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(sw.Opened()) != 1 || len(hw.Opened()) != 0 {
		t.Errorf("software backend: sw=%d hw=%d opens", len(sw.Opened()), len(hw.Opened()))
	}

	sw, hw = serving(loc.Path), serving(loc.Path)
	o, _ = NewWithOpeners(BackendHardware, sw, hw, logger.NewNoop())
	if _, err := o.Open(context.Background(), loc); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(sw.Opened()) != 0 || len(hw.Opened()) != 1 {
		t.Errorf("hardware backend: sw=%d hw=%d opens", len(sw.Opened()), len(hw.Opened()))
	}
}

func TestOpen_AutoFallsBackOnUnsupportedFormat(t *testing.T) {
	loc := ports.Location{Kind: ports.LocalFile, Path: "/v/a.webm"}
	sw := failing(fmt.Errorf("%w: vp9", ports.ErrUnsupportedFormat))
	hw := serving(loc.Path)

	o, err := NewWithOpeners(BackendAuto, sw, hw, logger.NewNoop())
	if err != nil {
		t.Fatal(err)
	}
	src, err := o.Open(context.Background(), loc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if src.Info().FrameCount != 10 {
		t.Errorf("unexpected source %+v", src.Info())
	}
	if len(hw.Opened()) != 1 {
		t.Error("expected the hardware backend to be tried")
	}
}

func TestOpen_AutoKeepsOtherErrors(t *testing.T) {
	loc := ports.Location{Kind: ports.RemoteURL, Path: "https://media.test/a.mp4"}
	sw := failing(fmt.Errorf("%w: timeout", ports.ErrNetwork))
	hw := serving(loc.Path)

	o, _ := NewWithOpeners(BackendAuto, sw, hw, logger.NewNoop())
	if _, err := o.Open(context.Background(), loc); !errors.Is(err, ports.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
	if len(hw.Opened()) != 0 {
		t.Error("hardware backend should not be tried after a network error")
	}
}

func TestOpen_AutoReportsHardwareError(t *testing.T) {
	loc := ports.Location{Kind: ports.LocalFile, Path: "/v/a.mkv"}
	sw := failing(fmt.Errorf("%w: not mp4", ports.ErrUnsupportedFormat))
	hw := failing(fmt.Errorf("%w: no video track", ports.ErrUnsupportedFormat))

	o, _ := NewWithOpeners(BackendAuto, sw, hw, logger.NewNoop())
	if _, err := o.Open(context.Background(), loc); !errors.Is(err, ports.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	if _, err := New(mocks.NewFileSystem(), Options{Backend: "gpu"}, logger.NewNoop()); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}
