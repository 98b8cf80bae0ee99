package remote

import (
	"errors"
	"testing"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

func TestParse_Timecode(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"timecode","currentTime":16.7,"duration":120.5,"fps":29.97,"filename":"clip.mp4"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := msg.Command
	if cmd == nil || cmd.Kind != SeekCommand {
		t.Fatalf("expected a seek command, got %+v", cmd)
	}
	if cmd.FrameRate != timebase.R(30000, 1001) {
		t.Errorf("FrameRate = %v, want 30000/1001", cmd.FrameRate)
	}
	if cmd.Frame != 500 {
		t.Errorf("Frame = %d, want 500", cmd.Frame)
	}
	if cmd.Filename != "clip.mp4" || cmd.Duration != 120.5 {
		t.Errorf("unexpected command %+v", cmd)
	}
}

func TestParse_TimecodeUsesMessageRate(t *testing.T) {
	// The same currentTime maps to different frames depending on the rate
	// the remote side announces.
	msg25, err := Parse([]byte(`{"type":"timecode","currentTime":2,"fps":25}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg60, err := Parse([]byte(`{"type":"timecode","currentTime":2,"fps":60}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg25.Command.Frame != 50 || msg60.Command.Frame != 120 {
		t.Errorf("frames = %d, %d; want 50, 120", msg25.Command.Frame, msg60.Command.Frame)
	}
}

func TestParse_VideoInfo(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"video_info","filename":"Clip One","videoPath":" clip1.webm ","duration":10,"fps":25}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := msg.Command
	if cmd == nil || cmd.Kind != LoadCommand {
		t.Fatalf("expected a load command, got %+v", cmd)
	}
	if cmd.VideoPath != "clip1.webm" || cmd.Filename != "Clip One" {
		t.Errorf("unexpected command %+v", cmd)
	}

	// fps is optional for video_info.
	if _, err := Parse([]byte(`{"type":"video_info","videoPath":"https://h/a.mp4"}`)); err != nil {
		t.Errorf("video_info without fps: %v", err)
	}
}

func TestParse_Informational(t *testing.T) {
	tests := []struct {
		payload string
		typ     string
	}{
		{`{"type":"connection","message":"Welcome"}`, TypeConnection},
		{`{"type":"registered","clientType":"player"}`, TypeRegistered},
		{`{"type":"pong"}`, TypePong},
		{`{"type":"something_new","x":1}`, "something_new"},
	}
	for _, tt := range tests {
		msg, err := Parse([]byte(tt.payload))
		if err != nil {
			t.Errorf("Parse(%s): %v", tt.payload, err)
			continue
		}
		if msg.Type != tt.typ || msg.Command != nil {
			t.Errorf("Parse(%s) = %+v", tt.payload, msg)
		}
	}

	msg, _ := Parse([]byte(`{"type":"connection","message":"Welcome"}`))
	if msg.Greeting != "Welcome" {
		t.Errorf("Greeting = %q", msg.Greeting)
	}

	for payload, kind := range map[string]CommandKind{`{"type":"play"}`: PlayCommand, `{"type":"pause"}`: PauseCommand} {
		msg, err := Parse([]byte(payload))
		if err != nil || msg.Command == nil || msg.Command.Kind != kind {
			t.Errorf("Parse(%s) = %+v, %v", payload, msg, err)
		}
	}
}

func TestParse_TimecodeWithoutRateAssumes60(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"timecode","currentTime":2.5}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := msg.Command
	if cmd == nil || cmd.Kind != SeekCommand {
		t.Fatalf("expected a seek command, got %+v", cmd)
	}
	if cmd.FrameRate != timebase.R(60, 1) || cmd.Frame != 150 {
		t.Errorf("rate %v frame %d, want 60/1 and 150", cmd.FrameRate, cmd.Frame)
	}
}

func TestParse_Malformed(t *testing.T) {
	payloads := []string{
		`{"type":"timecode"}`,
		`{"type":"timecode","currentTime":1.5,"fps":0}`,
		`{"type":"timecode","currentTime":1.5,"fps":-25}`,
		`{"type":"timecode","currentTime":"1.5","fps":25}`,
		`{"type":"video_info","filename":"a"}`,
		`{"type":"video_info","videoPath":"   "}`,
		`{"currentTime":1}`,
		`not json`,
		``,
	}
	for _, p := range payloads {
		if _, err := Parse([]byte(p)); !errors.Is(err, ports.ErrMalformedMessage) {
			t.Errorf("Parse(%q): expected ErrMalformedMessage, got %v", p, err)
		}
	}
}
