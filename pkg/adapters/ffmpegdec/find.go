// Package ffmpegdec drives ffmpeg and ffprobe as external processes: locating
// the binaries and running a long-lived H.264 to RGB decode pipe.
package ffmpegdec

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var (
	// ErrFFmpegNotFound is returned when the requested binary cannot be located.
	ErrFFmpegNotFound = errors.New("ffmpegdec: ffmpeg not found")
	// ErrDecodeFailed is returned when the decoder process exits with an error.
	ErrDecodeFailed = errors.New("ffmpegdec: decode failed")
	// ErrClosed is returned when a closed pipe is used.
	ErrClosed = errors.New("ffmpegdec: pipe closed")
)

// Find searches for an ffmpeg suite binary such as "ffmpeg" or "ffprobe".
// Priority: 1) custom, 2) <NAME>_PATH env (FFMPEG_PATH, FFPROBE_PATH), 3) PATH, 4) common locations
func Find(name, custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	envName := strings.ToUpper(name) + "_PATH"
	if envPath := os.Getenv(envName); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: %s %s not found", ErrFFmpegNotFound, envName, envPath)
	}

	execName := name
	if runtime.GOOS == "windows" {
		execName = name + ".exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	for _, p := range commonPaths(execName) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrFFmpegNotFound, name)
}

func commonPaths(execName string) []string {
	var dirs []string
	switch runtime.GOOS {
	case "windows":
		dirs = []string{
			`C:\ffmpeg\bin\`,
			`C:\Program Files\ffmpeg\bin\`,
			`C:\Program Files (x86)\ffmpeg\bin\`,
		}
	case "darwin":
		dirs = []string{"/opt/homebrew/bin/", "/usr/local/bin/", "/usr/bin/"}
	default:
		dirs = []string{"/usr/bin/", "/usr/local/bin/", "/opt/homebrew/bin/", "/snap/bin/"}
	}
	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = d + execName
	}
	return paths
}

// Available reports whether name can be found without a custom path.
func Available(name string) bool {
	_, err := Find(name, "")
	return err == nil
}
