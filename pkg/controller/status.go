package controller

import (
	"fmt"

	"github.com/user/framecue/pkg/timebase"
)

// Snapshot is a point-in-time view of the controller for status displays.
type Snapshot struct {
	State         string  `json:"state"`
	Source        string  `json:"source,omitempty"`
	Name          string  `json:"name,omitempty"`
	Frame         int     `json:"frame"`
	FrameCount    int     `json:"frame_count"`
	FrameRate     string  `json:"frame_rate,omitempty"`
	FPS           float64 `json:"fps"`
	Seconds       float64 `json:"seconds"`
	Time          string  `json:"time"`
	Duration      string  `json:"duration"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Backend       string  `json:"backend,omitempty"`
	RemotePlaying bool    `json:"remote_playing"`
	Error         string  `json:"error,omitempty"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:         c.state.String(),
		Frame:         c.current,
		RemotePlaying: c.remotePlay,
		Time:          timebase.Timecode(0),
		Duration:      timebase.Timecode(0),
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	if c.src == nil {
		return s
	}
	seconds := timebase.FrameToTime(c.current, c.info.FrameRate)
	s.Source = c.info.Location.Path
	s.Name = c.info.Location.Name()
	s.FrameCount = c.info.FrameCount
	s.FrameRate = c.info.FrameRate.String()
	s.FPS = c.info.FrameRate.Float64()
	s.Seconds = seconds
	s.Time = timebase.Timecode(seconds)
	s.Duration = timebase.Timecode(c.info.Duration())
	s.Width = c.info.Width
	s.Height = c.info.Height
	s.Backend = c.info.Backend
	return s
}

// Status renders a one-line status such as
// "clip.mp4 | 00:00:16.683 / 00:01:53.113 @ 59.94 fps | frame 1000/6780 | ready".
func (c *Controller) Status() string {
	s := c.Snapshot()
	if s.Source == "" {
		return "no video | " + s.State
	}
	return fmt.Sprintf("%s | %s / %s @ %.2f fps | frame %d/%d | %s",
		s.Name, s.Time, s.Duration, s.FPS, s.Frame, s.FrameCount, s.State)
}
