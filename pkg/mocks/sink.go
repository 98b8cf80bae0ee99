package mocks

import (
	"fmt"
	"sync"

	"github.com/user/framecue/pkg/ports"
)

// FrameSink is a mock implementation of ports.FrameSink.
type FrameSink struct {
	mu    sync.Mutex
	saved []int

	SaveFrameFunc func(f *ports.Frame, info ports.MediaInfo) (string, error)
}

func (m *FrameSink) SaveFrame(f *ports.Frame, info ports.MediaInfo) (string, error) {
	m.mu.Lock()
	m.saved = append(m.saved, f.Number)
	m.mu.Unlock()
	if m.SaveFrameFunc != nil {
		return m.SaveFrameFunc(f, info)
	}
	return fmt.Sprintf("frame-%05d.png", f.Number), nil
}

// Saved returns the frame numbers written so far.
func (m *FrameSink) Saved() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.saved...)
}

var _ ports.FrameSink = (*FrameSink)(nil)
