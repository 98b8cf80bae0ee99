package remote

import (
	"fmt"

	"github.com/user/framecue/pkg/timebase"
)

// CommandKind identifies what the controller should do with a Command.
type CommandKind int

const (
	// SeekCommand moves the displayed position to Frame.
	SeekCommand CommandKind = iota
	// LoadCommand replaces the current video with VideoPath.
	LoadCommand
	// PlayCommand reports that the remote side started playback.
	PlayCommand
	// PauseCommand reports that the remote side paused playback.
	PauseCommand
)

func (k CommandKind) String() string {
	switch k {
	case SeekCommand:
		return "seek"
	case LoadCommand:
		return "load"
	case PlayCommand:
		return "play"
	case PauseCommand:
		return "pause"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a validated, strongly typed instruction decoded from a server
// message. The controller never sees raw payloads.
type Command struct {
	Kind CommandKind

	// Frame is the target frame for SeekCommand, computed from the
	// message's currentTime and its own fps.
	Frame int
	// Seconds is the raw currentTime of a timecode message.
	Seconds float64
	// FrameRate is the rate announced by the message, DefaultTimecodeFPS
	// for a timecode without one.
	FrameRate timebase.Rational

	// VideoPath is the URL or bare file name of a LoadCommand.
	VideoPath string
	// Filename is the display name announced by the server.
	Filename string
	// Duration is the announced length in seconds.
	Duration float64
}
