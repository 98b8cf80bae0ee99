package remote

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

// Server message types.
const (
	TypeConnection = "connection"
	TypeRegistered = "registered"
	TypeTimecode   = "timecode"
	TypeVideoInfo  = "video_info"
	TypePlay       = "play"
	TypePause      = "pause"
	TypePong       = "pong"
	TypeRegister   = "register"
)

// DefaultTimecodeFPS is assumed for timecodes that do not carry a rate.
const DefaultTimecodeFPS = 60.0

// Message is a decoded server message. Command is set for the types that
// drive the controller.
type Message struct {
	Type       string
	Greeting   string
	ClientType string
	Command    *Command
}

// RegisterMessage is sent by the client right after connecting.
type RegisterMessage struct {
	Type       string `json:"type"`
	ClientType string `json:"clientType"`
}

type rawMessage struct {
	Type        string   `json:"type"`
	Message     string   `json:"message"`
	ClientType  string   `json:"clientType"`
	CurrentTime *float64 `json:"currentTime"`
	Duration    *float64 `json:"duration"`
	FPS         *float64 `json:"fps"`
	Filename    string   `json:"filename"`
	VideoPath   *string  `json:"videoPath"`
}

// Parse decodes one server payload. Unparseable payloads and messages missing
// required fields fail with ports.ErrMalformedMessage. Unknown types parse
// successfully with a nil Command.
func Parse(data []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ports.ErrMalformedMessage, err)
	}
	if raw.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ports.ErrMalformedMessage)
	}

	msg := Message{Type: raw.Type, Greeting: raw.Message, ClientType: raw.ClientType}
	switch raw.Type {
	case TypeTimecode:
		if raw.CurrentTime == nil {
			return msg, malformed(raw.Type, "currentTime")
		}
		fps := raw.FPS
		if fps == nil {
			def := DefaultTimecodeFPS
			fps = &def
		}
		rate, err := parseFPS(fps)
		if err != nil {
			return msg, fmt.Errorf("%w: timecode: %v", ports.ErrMalformedMessage, err)
		}
		seconds := *raw.CurrentTime
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return msg, fmt.Errorf("%w: timecode: currentTime %v", ports.ErrMalformedMessage, seconds)
		}
		msg.Command = &Command{
			Kind:      SeekCommand,
			Frame:     timebase.TimeToFrame(seconds, rate),
			Seconds:   seconds,
			FrameRate: rate,
			Filename:  raw.Filename,
			Duration:  deref(raw.Duration),
		}

	case TypeVideoInfo:
		if raw.VideoPath == nil || strings.TrimSpace(*raw.VideoPath) == "" {
			return msg, malformed(raw.Type, "videoPath")
		}
		cmd := &Command{
			Kind:      LoadCommand,
			VideoPath: strings.TrimSpace(*raw.VideoPath),
			Filename:  raw.Filename,
			Duration:  deref(raw.Duration),
		}
		// fps is informative here; a bad value is not worth dropping the load.
		if rate, err := parseFPS(raw.FPS); err == nil {
			cmd.FrameRate = rate
		}
		msg.Command = cmd

	case TypePlay:
		msg.Command = &Command{Kind: PlayCommand}

	case TypePause:
		msg.Command = &Command{Kind: PauseCommand}
	}
	return msg, nil
}

func parseFPS(fps *float64) (timebase.Rational, error) {
	if fps == nil {
		return timebase.Rational{}, fmt.Errorf("missing fps")
	}
	return timebase.FromFloat(*fps)
}

func malformed(msgType, field string) error {
	return fmt.Errorf("%w: %s: missing %s", ports.ErrMalformedMessage, msgType, field)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
