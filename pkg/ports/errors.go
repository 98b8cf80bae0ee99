package ports

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every backend. Adapters wrap these with context;
// callers classify with errors.Is.
var (
	// ErrSourceNotFound is returned when a local path does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrUnsupportedFormat is returned when the container has no usable
	// video track or the codec cannot be decoded by the backend.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrNetwork is returned when a URL is unreachable or times out.
	ErrNetwork = errors.New("network error")

	// ErrFrameOutOfRange is returned when a frame or time lies outside the stream.
	ErrFrameOutOfRange = errors.New("frame out of range")

	// ErrFrameUnavailable is returned when the hardware backend cannot
	// produce the exact requested frame.
	ErrFrameUnavailable = errors.New("frame unavailable")

	// ErrMalformedMessage is returned for unparseable remote payloads.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrNoSource is returned when a frame is requested before any video is loaded.
	ErrNoSource = errors.New("no video loaded")

	// ErrClosed is returned when a closed media source is used.
	ErrClosed = errors.New("media source closed")
)

// FrameError ties a frame-level failure to the requested frame number.
type FrameError struct {
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// OutOfRange builds a FrameError for frame outside [0, total).
func OutOfRange(frame, total int) error {
	return &FrameError{Frame: frame, Err: fmt.Errorf("%w (total %d)", ErrFrameOutOfRange, total)}
}
