// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/framecue/pkg/adapters/preview"
	"github.com/user/framecue/pkg/adapters/smartsource"
	"github.com/user/framecue/pkg/controller"
	"github.com/user/framecue/pkg/metrics"
	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/remote"
)

// Config represents the full configuration for framecue.
type Config struct {
	// Decoding
	Backend        string        `yaml:"backend"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	FFprobePath    string        `yaml:"ffprobe_path"`
	NetworkTimeout time.Duration `yaml:"network_timeout"`

	// Controller
	Debounce time.Duration `yaml:"debounce"`

	// MediaBaseURL resolves bare file names received from the remote channel.
	MediaBaseURL string `yaml:"media_base_url"`

	Remote  RemoteConfig  `yaml:"remote"`
	Preview PreviewConfig `yaml:"preview"`

	LogLevel string `yaml:"log_level"`
}

// RemoteConfig configures the timecode channel.
type RemoteConfig struct {
	URL            string        `yaml:"url"`
	ClientType     string        `yaml:"client_type"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	SeekDebounce   time.Duration `yaml:"seek_debounce"`
}

// PreviewConfig configures the HTTP preview surface.
type PreviewConfig struct {
	Addr           string   `yaml:"addr"`
	MaxWidth       int      `yaml:"max_width"`
	JPEGQuality    int      `yaml:"jpeg_quality"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Backend:        string(smartsource.BackendAuto),
		NetworkTimeout: 20 * time.Second,

		Debounce: 50 * time.Millisecond,

		MediaBaseURL: "https://media.signcollect.nl",

		Remote: RemoteConfig{
			URL:            "wss://signcollect.nl/zin_wss",
			ClientType:     "player",
			ReconnectDelay: 3 * time.Second,
			DialTimeout:    10 * time.Second,
			SeekDebounce:   30 * time.Millisecond,
		},

		Preview: PreviewConfig{
			Addr:        "127.0.0.1:8765",
			MaxWidth:    960,
			JPEGQuality: 85,
		},

		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file on top of Defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if _, err := smartsource.ParseBackend(c.Backend); err != nil {
		return err
	}
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("network_timeout must be positive, got %v", c.NetworkTimeout)
	}
	if c.Debounce < 0 || c.Remote.SeekDebounce < 0 {
		return fmt.Errorf("debounce windows must not be negative")
	}
	if c.Preview.JPEGQuality < 0 || c.Preview.JPEGQuality > 100 {
		return fmt.Errorf("preview.jpeg_quality must be within 0-100, got %d", c.Preview.JPEGQuality)
	}
	if c.Preview.MaxWidth < 0 {
		return fmt.Errorf("preview.max_width must not be negative, got %d", c.Preview.MaxWidth)
	}
	if _, err := ports.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// SourceOptions converts Config to smartsource.Options.
func (c Config) SourceOptions(m *metrics.Metrics) smartsource.Options {
	return smartsource.Options{
		Backend:        smartsource.Backend(c.Backend),
		FFmpegPath:     c.FFmpegPath,
		FFprobePath:    c.FFprobePath,
		NetworkTimeout: c.NetworkTimeout,
		Metrics:        m,
	}
}

// ControllerOptions converts Config to controller.Options.
func (c Config) ControllerOptions(m *metrics.Metrics) controller.Options {
	return controller.Options{
		Debounce:       c.Debounce,
		RemoteDebounce: c.Remote.SeekDebounce,
		Metrics:        m,
	}
}

// RemoteOptions converts Config to remote.Options.
func (c Config) RemoteOptions(m *metrics.Metrics) remote.Options {
	return remote.Options{
		URL:            c.Remote.URL,
		ClientType:     c.Remote.ClientType,
		ReconnectDelay: c.Remote.ReconnectDelay,
		DialTimeout:    c.Remote.DialTimeout,
		Metrics:        m,
	}
}

// PreviewOptions converts Config to preview.Options.
func (c Config) PreviewOptions(m *metrics.Metrics) preview.Options {
	return preview.Options{
		MaxWidth:       c.Preview.MaxWidth,
		JPEGQuality:    c.Preview.JPEGQuality,
		AllowedOrigins: c.Preview.AllowedOrigins,
		Metrics:        m,
	}
}
