// Package nullsink provides a display that discards every frame.
package nullsink

import (
	"sync/atomic"

	"github.com/user/framecue/pkg/ports"
)

// Sink is a no-op implementation of ports.Display for headless use.
// It only remembers how many frames went by and which one was last.
type Sink struct {
	presented atomic.Int64
	last      atomic.Int64
}

// New creates a new null display.
func New() *Sink {
	s := &Sink{}
	s.last.Store(-1)
	return s
}

// Present drops f.
func (s *Sink) Present(f *ports.Frame, _ ports.MediaInfo) {
	s.presented.Add(1)
	s.last.Store(int64(f.Number))
}

// Presented returns the number of frames discarded so far.
func (s *Sink) Presented() int {
	return int(s.presented.Load())
}

// Last returns the number of the most recent frame, or -1.
func (s *Sink) Last() int {
	return int(s.last.Load())
}

// Ensure Sink implements ports.Display
var _ ports.Display = (*Sink)(nil)
